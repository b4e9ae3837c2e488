package vm

import (
	"github.com/chidb-go/chidb/internal/btree"
	"github.com/chidb-go/chidb/internal/chidberr"
	"github.com/chidb-go/chidb/internal/pager"
	"github.com/chidb-go/chidb/internal/record"
)

// recordBytes marks a stack value as an encoded record ready for
// INSERT, keeping it distinct from a decoded []record.Value tuple
// (produced by DATA) even though both are byte-shaped data about a
// row; a type switch in the VM loop tells them apart.
type recordBytes []byte

// VM executes a compiled Program against a Pager's trees (spec §4.8).
// One VM is cheap to construct and is not safe for concurrent use by
// multiple goroutines, matching original_source/chidb/dbm.py's
// DatabaseMachine, which owns a single cursor table and stack.
type VM struct {
	p   *pager.Pager
	log pager.Logger

	cursors map[int]*btree.Cursor
	trees   map[uint32]*btree.Tree

	stack []any
	rows  [][]record.Value

	pc      int
	program Program
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// New builds a VM bound to p. Pass nil for logger to discard log output.
func New(p *pager.Pager, logger pager.Logger) *VM {
	if logger == nil {
		logger = nopLogger{}
	}
	return &VM{p: p, log: logger}
}

// control tells Execute what to do with the program counter after an
// instruction runs.
type control int

const (
	ctlAdvance control = iota // pc++
	ctlJumped                 // step already set vm.pc; leave it alone
	ctlHalt                   // stop
)

// Execute runs program to completion (HALT or an error) and returns
// every row RESULT_ROW produced, in emission order (spec §4.8).
func (vm *VM) Execute(program Program) ([][]record.Value, error) {
	vm.program = program
	vm.pc = 0
	vm.cursors = make(map[int]*btree.Cursor)
	vm.trees = make(map[uint32]*btree.Tree)
	vm.stack = nil
	vm.rows = nil

	for vm.pc < len(program) {
		instr := program[vm.pc]
		ctl, err := vm.step(instr)
		if err != nil {
			return nil, chidberr.Wrap(chidberr.VmError, err, "executing %s at pc=%d", instr.Op, vm.pc)
		}
		switch ctl {
		case ctlHalt:
			return vm.rows, nil
		case ctlAdvance:
			vm.pc++
		case ctlJumped:
			// vm.pc already points at the target; no pre-increment
			// (spec §4.7: "the engine sets the counter to the target
			// directly").
		}
	}
	return vm.rows, nil
}

// step executes one instruction and reports how the program counter
// should move next.
func (vm *VM) step(instr Instruction) (control, error) {
	switch instr.Op {
	case OpOpenRead:
		vm.openCursor(instr.P1, uint32(instr.P2), false)
		return ctlAdvance, nil

	case OpOpenWrite:
		vm.openCursor(instr.P1, uint32(instr.P2), true)
		return ctlAdvance, nil

	case OpClose:
		delete(vm.cursors, instr.P1)
		return ctlAdvance, nil

	case OpRewind:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		if err := cur.Rewind(); err != nil {
			return ctlAdvance, err
		}
		if !cur.Valid() {
			vm.pc = instr.P2
			return ctlJumped, nil
		}
		return ctlAdvance, nil

	case OpNext:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		cur.Next()
		if cur.Valid() {
			vm.pc = instr.P2
			return ctlJumped, nil
		}
		return ctlAdvance, nil

	case OpSeek:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		key, err := vm.popInt()
		if err != nil {
			return ctlAdvance, err
		}
		if err := cur.Seek(uint64(key)); err != nil {
			return ctlAdvance, err
		}
		return ctlAdvance, nil

	case OpKey:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		key, err := cur.Key()
		if err != nil {
			return ctlAdvance, err
		}
		vm.push(record.Int(int64(key)))
		return ctlAdvance, nil

	case OpData:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		payload, err := cur.Data()
		if err != nil {
			return ctlAdvance, err
		}
		values, _, err := record.Decode(payload, 0)
		if err != nil {
			return ctlAdvance, err
		}
		vm.push(values)
		return ctlAdvance, nil

	case OpColumn:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		payload, err := cur.Data()
		if err != nil {
			return ctlAdvance, err
		}
		values, _, err := record.Decode(payload, 0)
		if err != nil {
			return ctlAdvance, err
		}
		if instr.P2 < 0 || instr.P2 >= len(values) {
			return ctlAdvance, chidberr.New(chidberr.OutOfRange, "column index %d out of range (arity %d)", instr.P2, len(values))
		}
		vm.push(values[instr.P2])
		return ctlAdvance, nil

	case OpInteger:
		vm.push(record.Int(int64(instr.P1)))
		return ctlAdvance, nil

	case OpString:
		vm.push(record.Text(instr.P4))
		return ctlAdvance, nil

	case OpNull:
		vm.push(record.Null())
		return ctlAdvance, nil

	case OpMakeRecord:
		values := make([]record.Value, instr.P1)
		for i := instr.P1 - 1; i >= 0; i-- {
			v, err := vm.popValue()
			if err != nil {
				return ctlAdvance, err
			}
			values[i] = v
		}
		vm.push(recordBytes(record.Encode(values)))
		return ctlAdvance, nil

	case OpInsert:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		payload, err := vm.popRecordBytes()
		if err != nil {
			return ctlAdvance, err
		}
		key, err := vm.popInt()
		if err != nil {
			return ctlAdvance, err
		}
		if err := cur.Insert(uint64(key), payload); err != nil {
			return ctlAdvance, err
		}
		return ctlAdvance, nil

	case OpDelete:
		cur, err := vm.cursor(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		if err := cur.Delete(); err != nil {
			return ctlAdvance, err
		}
		return ctlAdvance, nil

	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return ctlAdvance, vm.compare(instr.Op)

	case OpJump:
		vm.pc = instr.P1
		return ctlJumped, nil

	case OpJumpIfFalse:
		v, err := vm.popValue()
		if err != nil {
			return ctlAdvance, err
		}
		if !truthy(v) {
			vm.pc = instr.P1
			return ctlJumped, nil
		}
		return ctlAdvance, nil

	case OpResultRow:
		row, err := vm.buildResultRow(instr.P1)
		if err != nil {
			return ctlAdvance, err
		}
		vm.rows = append(vm.rows, row)
		return ctlAdvance, nil

	case OpHalt:
		return ctlHalt, nil
	}
	return ctlAdvance, chidberr.New(chidberr.VmError, "unknown opcode %d", instr.Op)
}

// CurrentRoot returns the current root page of the tree that was
// opened against originalRoot during the last Execute call, reporting
// false if no cursor ever opened that tree. A mutating program can
// split its tree's root; callers that persist table metadata need this
// to detect that and update their own bookkeeping (spec §4.10 step 5).
func (vm *VM) CurrentRoot(originalRoot uint32) (uint32, bool) {
	tree, ok := vm.trees[originalRoot]
	if !ok {
		return 0, false
	}
	return tree.Root(), true
}

func (vm *VM) openCursor(id int, rootPage uint32, writable bool) {
	tree, ok := vm.trees[rootPage]
	if !ok {
		tree = btree.Open(vm.p, rootPage)
		vm.trees[rootPage] = tree
	}
	vm.cursors[id] = btree.NewCursor(tree, writable)
}

func (vm *VM) cursor(id int) (*btree.Cursor, error) {
	cur, ok := vm.cursors[id]
	if !ok {
		return nil, chidberr.New(chidberr.VmError, "no open cursor %d", id)
	}
	return cur, nil
}

func (vm *VM) push(v any) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() (any, error) {
	if len(vm.stack) == 0 {
		return nil, chidberr.New(chidberr.VmError, "stack underflow")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func (vm *VM) popValue() (record.Value, error) {
	v, err := vm.pop()
	if err != nil {
		return record.Value{}, err
	}
	scalar, ok := v.(record.Value)
	if !ok {
		return record.Value{}, chidberr.New(chidberr.VmError, "expected scalar value on stack, got %T", v)
	}
	return scalar, nil
}

func (vm *VM) popInt() (int64, error) {
	v, err := vm.popValue()
	if err != nil {
		return 0, err
	}
	if v.Type != record.TypeInteger {
		return 0, chidberr.New(chidberr.VmError, "expected integer on stack, got %s", v.Type)
	}
	return v.Int, nil
}

func (vm *VM) popRecordBytes() ([]byte, error) {
	v, err := vm.pop()
	if err != nil {
		return nil, err
	}
	rb, ok := v.(recordBytes)
	if !ok {
		return nil, chidberr.New(chidberr.VmError, "expected encoded record on stack, got %T", v)
	}
	return rb, nil
}

func (vm *VM) compare(op Opcode) error {
	right, err := vm.popValue()
	if err != nil {
		return err
	}
	left, err := vm.popValue()
	if err != nil {
		return err
	}
	result, err := evalComparison(left, op, right)
	if err != nil {
		return err
	}
	vm.push(record.Bool(result))
	return nil
}

func evalComparison(left record.Value, op Opcode, right record.Value) (bool, error) {
	if op == OpEq || op == OpNe {
		eq := left.Equal(right)
		if op == OpEq {
			return eq, nil
		}
		return !eq, nil
	}

	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if lok && rok {
		switch op {
		case OpLt:
			return lf < rf, nil
		case OpLe:
			return lf <= rf, nil
		case OpGt:
			return lf > rf, nil
		case OpGe:
			return lf >= rf, nil
		}
	}
	if left.Type == record.TypeText && right.Type == record.TypeText {
		switch op {
		case OpLt:
			return left.Text < right.Text, nil
		case OpLe:
			return left.Text <= right.Text, nil
		case OpGt:
			return left.Text > right.Text, nil
		case OpGe:
			return left.Text >= right.Text, nil
		}
	}
	return false, chidberr.New(chidberr.VmError, "cannot order %s and %s", left.Type, right.Type)
}

func asFloat(v record.Value) (float64, bool) {
	switch v.Type {
	case record.TypeInteger:
		return float64(v.Int), true
	case record.TypeFloat:
		return v.Float, true
	}
	return 0, false
}

func truthy(v record.Value) bool {
	switch v.Type {
	case record.TypeInteger:
		return v.Int != 0
	case record.TypeFloat:
		return v.Float != 0
	case record.TypeNull:
		return false
	default:
		return true
	}
}

// buildResultRow pops n stack items (pushed in row order, so the top
// of stack is the last column) and flattens them into a single output
// row. A popped []record.Value (from DATA) splices all of its columns
// in; a popped record.Value (from COLUMN) contributes one column.
func (vm *VM) buildResultRow(n int) ([]record.Value, error) {
	items := make([]any, n)
	for i := n - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return nil, err
		}
		items[i] = v
	}
	var row []record.Value
	for _, item := range items {
		switch v := item.(type) {
		case []record.Value:
			row = append(row, v...)
		case record.Value:
			row = append(row, v)
		default:
			return nil, chidberr.New(chidberr.VmError, "unexpected stack shape %T in result row", item)
		}
	}
	return row, nil
}
