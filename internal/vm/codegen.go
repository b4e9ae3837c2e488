package vm

import (
	"github.com/chidb-go/chidb/internal/record"
	"github.com/chidb-go/chidb/internal/sqlfront"
)

// ColumnIndex resolves a column name to its position in a table's
// declared column order, for compiling WHERE column references into
// COLUMN instructions.
type ColumnIndex func(name string) (int, bool)

// GenerateSelect compiles a SELECT statement into a program that scans
// the tree rooted at rootPage, applying WHERE if it compiles to a
// single comparison or a folded literal (spec §4.7 "Shapes of
// generated programs"). A WHERE shape codegen can't compile (e.g. a
// compound AND/OR over column references, for which the opcode set
// has no logical-combinator instruction) is treated as always-true,
// matching the "unsupported WHERE shapes evaluate to TRUE" fallback
// spec §4.10 specifies for the controller's own evaluator — this
// package reuses that fallback rather than rejecting the statement,
// consistent with DESIGN.md's note on WHERE-in-the-VM incompleteness.
func GenerateSelect(stmt *sqlfront.SelectStatement, rootPage uint32, columnIndex ColumnIndex) Program {
	const cursor = 0
	var prog Program

	prog = append(prog, Instruction{Op: OpOpenRead, P1: cursor, P2: int(rootPage)})
	rewindIdx := len(prog)
	prog = append(prog, Instruction{Op: OpRewind, P1: cursor}) // P2 patched below

	loopStart := len(prog)
	prog = append(prog, Instruction{Op: OpData, P1: cursor})

	var filter Program
	compiled := false
	if stmt.Where != nil {
		filter, compiled = compileWhereFilter(stmt.Where, cursor, columnIndex)
	}
	if compiled {
		prog = append(prog, filter...)
		jumpIfFalseIdx := len(prog)
		prog = append(prog, Instruction{Op: OpJumpIfFalse}) // target patched below
		prog = append(prog, Instruction{Op: OpResultRow, P1: 1})
		nextIdx := len(prog)
		prog = append(prog, Instruction{Op: OpNext, P1: cursor, P2: loopStart})
		prog[jumpIfFalseIdx].P1 = nextIdx
	} else {
		prog = append(prog, Instruction{Op: OpResultRow, P1: 1})
		prog = append(prog, Instruction{Op: OpNext, P1: cursor, P2: loopStart})
	}

	closeIdx := len(prog)
	prog = append(prog, Instruction{Op: OpClose, P1: cursor})
	prog = append(prog, Instruction{Op: OpHalt})

	prog[rewindIdx].P2 = closeIdx
	return prog
}

// compileWhereFilter emits instructions that leave a boolean on the
// stack for a single `identifier OP literal` comparison (either
// operand order) or an already-folded literal. It reports false when
// the shape isn't one codegen can compile.
func compileWhereFilter(expr sqlfront.Expression, cursor int, columnIndex ColumnIndex) (Program, bool) {
	switch e := expr.(type) {
	case *sqlfront.Literal:
		instr, ok := literalInstruction(e)
		if !ok {
			return nil, false
		}
		return Program{instr}, true

	case *sqlfront.BinaryOp:
		op, ok := comparisonOp(e.Operator)
		if !ok {
			return nil, false
		}
		left, leftOK := compileOperand(e.Left, cursor, columnIndex)
		right, rightOK := compileOperand(e.Right, cursor, columnIndex)
		if !leftOK || !rightOK {
			return nil, false
		}
		var prog Program
		prog = append(prog, left...)
		prog = append(prog, right...)
		prog = append(prog, Instruction{Op: op})
		return prog, true
	}
	return nil, false
}

func compileOperand(expr sqlfront.Expression, cursor int, columnIndex ColumnIndex) (Program, bool) {
	switch e := expr.(type) {
	case *sqlfront.Literal:
		instr, ok := literalInstruction(e)
		if !ok {
			return nil, false
		}
		return Program{instr}, true
	case *sqlfront.Identifier:
		idx, ok := columnIndex(e.Name)
		if !ok {
			return nil, false
		}
		return Program{{Op: OpColumn, P1: cursor, P2: idx}}, true
	}
	return nil, false
}

func literalInstruction(lit *sqlfront.Literal) (Instruction, bool) {
	switch lit.Kind {
	case sqlfront.LiteralNull:
		return Instruction{Op: OpNull}, true
	case sqlfront.LiteralInt:
		return Instruction{Op: OpInteger, P1: int(lit.Int)}, true
	case sqlfront.LiteralBool:
		v := 0
		if lit.Bool {
			v = 1
		}
		return Instruction{Op: OpInteger, P1: v}, true
	case sqlfront.LiteralString:
		return Instruction{Op: OpString, P4: lit.Str}, true
	}
	return Instruction{}, false
}

func comparisonOp(operator string) (Opcode, bool) {
	switch operator {
	case "=":
		return OpEq, true
	case "!=":
		return OpNe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	}
	return 0, false
}

// GenerateInsert compiles a single-row INSERT into OPEN_WRITE; push
// key; push values; MAKE_RECORD; INSERT; CLOSE; HALT (spec §4.7). key
// and values are fully resolved by the caller (the controller owns
// NULL-substitution and auto-increment bookkeeping, per spec §4.10).
func GenerateInsert(rootPage uint32, key uint64, values []record.Value) Program {
	const cursor = 0
	var prog Program
	prog = append(prog, Instruction{Op: OpOpenWrite, P1: cursor, P2: int(rootPage)})
	prog = append(prog, Instruction{Op: OpInteger, P1: int(key)})
	for _, v := range values {
		prog = append(prog, valueInstruction(v))
	}
	prog = append(prog, Instruction{Op: OpMakeRecord, P1: len(values)})
	prog = append(prog, Instruction{Op: OpInsert, P1: cursor})
	prog = append(prog, Instruction{Op: OpClose, P1: cursor})
	prog = append(prog, Instruction{Op: OpHalt})
	return prog
}

func valueInstruction(v record.Value) Instruction {
	switch v.Type {
	case record.TypeNull:
		return Instruction{Op: OpNull}
	case record.TypeText:
		return Instruction{Op: OpString, P4: v.Text}
	case record.TypeInteger:
		return Instruction{Op: OpInteger, P1: int(v.Int)}
	case record.TypeFloat:
		// The opcode set has no FLOAT push; truncate to the nearest
		// integer, matching original_source/chidb/sql/codegen.py's
		// generate_insert, which does the same "simplified" cast.
		return Instruction{Op: OpInteger, P1: int(v.Float)}
	}
	return Instruction{Op: OpNull}
}
