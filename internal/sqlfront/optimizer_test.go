package sqlfront

import "testing"

func TestOptimizeFoldsConstantComparison(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE 1 = 1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opt := Optimize(stmt).(*SelectStatement)
	lit, ok := opt.Where.(*Literal)
	if !ok || lit.Kind != LiteralBool || !lit.Bool {
		t.Fatalf("expected folded TRUE literal, got %+v", opt.Where)
	}
}

func TestOptimizeFoldsStringComparison(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE 'a' < 'b'")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opt := Optimize(stmt).(*SelectStatement)
	lit := opt.Where.(*Literal)
	if lit.Kind != LiteralBool || !lit.Bool {
		t.Fatalf("expected folded TRUE, got %+v", lit)
	}
}

func TestOptimizeSimplifiesIdentityComparison(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE id = id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opt := Optimize(stmt).(*SelectStatement)
	lit, ok := opt.Where.(*Literal)
	if !ok || lit.Kind != LiteralBool || !lit.Bool {
		t.Fatalf("expected x=x folded to TRUE, got %+v", opt.Where)
	}

	stmt, err = Parse("SELECT * FROM t WHERE id != id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opt = Optimize(stmt).(*SelectStatement)
	lit = opt.Where.(*Literal)
	if lit.Kind != LiteralBool || lit.Bool {
		t.Fatalf("expected x!=x folded to FALSE, got %+v", opt.Where)
	}
}

func TestOptimizeLeavesColumnComparisonUnfolded(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE id = 5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opt := Optimize(stmt).(*SelectStatement)
	b, ok := opt.Where.(*BinaryOp)
	if !ok || b.Operator != "=" {
		t.Fatalf("expected unfolded comparison, got %+v", opt.Where)
	}
}

func TestOptimizeFoldsNestedAndOr(t *testing.T) {
	stmt, err := Parse("SELECT * FROM t WHERE (1 = 1) AND (2 = 3)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opt := Optimize(stmt).(*SelectStatement)
	lit, ok := opt.Where.(*Literal)
	if !ok || lit.Kind != LiteralBool || lit.Bool {
		t.Fatalf("expected folded FALSE, got %+v", opt.Where)
	}
}
