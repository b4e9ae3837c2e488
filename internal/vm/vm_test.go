package vm

import (
	"path/filepath"
	"testing"

	"github.com/chidb-go/chidb/internal/btree"
	"github.com/chidb-go/chidb/internal/chidberr"
	"github.com/chidb-go/chidb/internal/pager"
	"github.com/chidb-go/chidb/internal/record"
	"github.com/chidb-go/chidb/internal/sqlfront"
)

func openPager(t *testing.T) *pager.Pager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.chidb")
	p, err := pager.Open(path, 4096, nil)
	if err != nil {
		t.Fatalf("open pager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestExecuteInsertAndSelectAll(t *testing.T) {
	p := openPager(t)
	tr, err := btree.New(p)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}

	machine := New(p, nil)
	rows := [][]record.Value{
		{record.Text("gear"), record.Int(3)},
		{record.Text("bolt"), record.Int(7)},
	}
	for i, vals := range rows {
		prog := GenerateInsert(tr.Root(), uint64(i+1), vals)
		if _, err := machine.Execute(prog); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	sel := &sqlfront.SelectStatement{Columns: []string{"*"}, Table: "widgets"}
	prog := GenerateSelect(sel, tr.Root(), func(string) (int, bool) { return 0, false })
	out, err := machine.Execute(prog)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(out), out)
	}
	if out[0][0].Text != "gear" || out[1][0].Text != "bolt" {
		t.Fatalf("unexpected row order/content: %+v", out)
	}
}

func TestExecuteSelectWithColumnComparisonFilter(t *testing.T) {
	p := openPager(t)
	tr, err := btree.New(p)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	machine := New(p, nil)

	data := []struct {
		name   string
		weight int64
	}{
		{"gear", 3}, {"bolt", 7}, {"nut", 7},
	}
	for i, d := range data {
		vals := []record.Value{record.Text(d.name), record.Int(d.weight)}
		prog := GenerateInsert(tr.Root(), uint64(i+1), vals)
		if _, err := machine.Execute(prog); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	where := &sqlfront.BinaryOp{
		Left:     &sqlfront.Identifier{Name: "weight"},
		Operator: "=",
		Right:    &sqlfront.Literal{Kind: sqlfront.LiteralInt, Int: 7},
	}
	sel := &sqlfront.SelectStatement{Columns: []string{"*"}, Table: "widgets", Where: where}
	columnIndex := func(name string) (int, bool) {
		switch name {
		case "name":
			return 0, true
		case "weight":
			return 1, true
		}
		return 0, false
	}
	prog := GenerateSelect(sel, tr.Root(), columnIndex)
	out, err := machine.Execute(prog)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 filtered rows, got %d: %+v", len(out), out)
	}
	for _, row := range out {
		if row[1].Int != 7 {
			t.Fatalf("filter leaked non-matching row: %+v", row)
		}
	}
}

func TestExecuteSelectUnfilterableWhereLetsAllRowsThrough(t *testing.T) {
	p := openPager(t)
	tr, err := btree.New(p)
	if err != nil {
		t.Fatalf("new tree: %v", err)
	}
	machine := New(p, nil)

	for i := 0; i < 3; i++ {
		prog := GenerateInsert(tr.Root(), uint64(i+1), []record.Value{record.Int(int64(i))})
		if _, err := machine.Execute(prog); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	where := &sqlfront.BinaryOp{
		Left: &sqlfront.BinaryOp{
			Left:     &sqlfront.Identifier{Name: "a"},
			Operator: "=",
			Right:    &sqlfront.Literal{Kind: sqlfront.LiteralInt, Int: 1},
		},
		Operator: "AND",
		Right: &sqlfront.BinaryOp{
			Left:     &sqlfront.Identifier{Name: "b"},
			Operator: "=",
			Right:    &sqlfront.Literal{Kind: sqlfront.LiteralInt, Int: 2},
		},
	}
	sel := &sqlfront.SelectStatement{Columns: []string{"*"}, Table: "t", Where: where}
	prog := GenerateSelect(sel, tr.Root(), func(string) (int, bool) { return 0, false })
	out, err := machine.Execute(prog)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected all 3 rows through an uncompilable filter, got %d", len(out))
	}
}

func TestExecuteStackUnderflowIsVmError(t *testing.T) {
	p := openPager(t)
	machine := New(p, nil)
	prog := Program{{Op: OpEq}, {Op: OpHalt}}
	if _, err := machine.Execute(prog); !chidberr.Is(err, chidberr.VmError) {
		t.Fatalf("expected stack underflow VmError, got %v", err)
	}
}

func TestExecuteUnknownOpcodeErrors(t *testing.T) {
	p := openPager(t)
	machine := New(p, nil)
	prog := Program{{Op: Opcode(200)}}
	if _, err := machine.Execute(prog); err == nil {
		t.Fatal("expected error for unknown opcode")
	}
}

func TestExecuteComparisonOpcodes(t *testing.T) {
	p := openPager(t)
	machine := New(p, nil)
	prog := Program{
		{Op: OpInteger, P1: 5},
		{Op: OpInteger, P1: 3},
		{Op: OpGt},
		{Op: OpResultRow, P1: 1},
		{Op: OpHalt},
	}
	out, err := machine.Execute(prog)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out) != 1 || out[0][0].Int != 1 {
		t.Fatalf("expected TRUE (5 > 3), got %+v", out)
	}
}
