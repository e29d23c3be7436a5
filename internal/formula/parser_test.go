package formula

import (
	"errors"
	"testing"
)

var gaussianDecls = []string{"x = Vi(3)", "y = Vj(3)", "b = Vj(6)", "s = Pm(1)"}

func TestParse_GaussianKernel(t *testing.T) {
	f, err := Parse("Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)", gaussianDecls)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if f.Red.Kind != SumReduction {
		t.Errorf("Expected SumReduction, got %v", f.Red.Kind)
	}
	if f.Red.Axis != 0 {
		t.Errorf("Expected axis 0, got %d", f.Red.Axis)
	}
	if f.OutputDim() != 6 {
		t.Errorf("Expected output dim 6, got %d", f.OutputDim())
	}
	if f.Args.Len() != 4 {
		t.Errorf("Expected 4 arguments, got %d", f.Args.Len())
	}
}

func TestParse_DimInference(t *testing.T) {
	cases := []struct {
		src string
		dim int
	}{
		{"Sum_Reduction(x+y, 0)", 3},
		{"Sum_Reduction(x-y, 0)", 3},
		{"Sum_Reduction(s*x, 0)", 3}, // scalar broadcast
		{"Sum_Reduction(x/s, 0)", 3},
		{"Sum_Reduction(Sum(x), 0)", 1},
		{"Sum_Reduction(SqNorm2(x-y), 0)", 1},
		{"Sum_Reduction(Norm2(x), 0)", 1},
		{"Sum_Reduction(Scalprod(x, y), 0)", 1},
		{"Sum_Reduction(SumT(s, 5), 0)", 5},
		{"Sum_Reduction(Concat(x, b), 0)", 9},
		{"Sum_Reduction(Extract(b, 2, 3), 0)", 3},
		{"Sum_Reduction(ExtractT(x, 1, 6), 0)", 6},
		{"Sum_Reduction(Pow(x, 3), 0)", 3},
		{"Sum_Reduction(2*x + 1, 0)", 3},
		{"Sum_Reduction(Square(Abs(Sign(x))), 0)", 3},
	}
	for _, tc := range cases {
		f, err := Parse(tc.src, gaussianDecls)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.src, err)
			continue
		}
		if f.OutputDim() != tc.dim {
			t.Errorf("Parse(%q): expected dim %d, got %d", tc.src, tc.dim, f.OutputDim())
		}
	}
}

func TestParse_Axis1(t *testing.T) {
	f, err := Parse("Max_Reduction(Scalprod(x, y), 1)", gaussianDecls)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if f.Red.Axis != 1 {
		t.Errorf("Expected axis 1, got %d", f.Red.Axis)
	}
	if f.Red.OutputCategory() != Vj {
		t.Errorf("Expected Vj output category for axis 1, got %v", f.Red.OutputCategory())
	}
}

func TestParse_Errors(t *testing.T) {
	var parseErr *ParseError
	var bindErr *BindingError
	var dimErr *DimensionMismatchError

	cases := []struct {
		name   string
		src    string
		target any
	}{
		{"unknown reduction", "Frob_Reduction(x, 0)", &parseErr},
		{"missing axis", "Sum_Reduction(x)", &parseErr},
		{"bad axis", "Sum_Reduction(x, 2)", &parseErr},
		{"trailing input", "Sum_Reduction(x, 0) junk", &parseErr},
		{"unknown operator", "Sum_Reduction(Frobnicate(x), 0)", &parseErr},
		{"unbalanced paren", "Sum_Reduction((x, 0)", &parseErr},
		{"undeclared symbol", "Sum_Reduction(x+z, 0)", &bindErr},
		{"dim mismatch add", "Sum_Reduction(x+b, 0)", &dimErr},
		{"dim mismatch scalprod", "Sum_Reduction(Scalprod(x, b), 0)", &dimErr},
		{"extract out of range", "Sum_Reduction(Extract(x, 2, 3), 0)", &dimErr},
		{"lse non-scalar", "LogSumExp_Reduction(x, 0)", &dimErr},
	}
	for _, tc := range cases {
		_, err := Parse(tc.src, gaussianDecls)
		if err == nil {
			t.Errorf("%s: expected error, got none", tc.name)
			continue
		}
		var ok bool
		switch target := tc.target.(type) {
		case **ParseError:
			ok = errors.As(err, target)
		case **BindingError:
			ok = errors.As(err, target)
		case **DimensionMismatchError:
			ok = errors.As(err, target)
		}
		if !ok {
			t.Errorf("%s: wrong error type: %v (%T)", tc.name, err, err)
		}
	}
}

func TestParse_NoRuntimeErrors(t *testing.T) {
	// Everything wrong is caught at parse time: a successfully parsed
	// formula carries validated dims throughout the tree.
	f, err := Parse("Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)", gaussianDecls)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	f.Root.Walk(func(n *Node) {
		if n.Dim <= 0 {
			t.Errorf("Node %v has unvalidated dim %d", n.Op, n.Dim)
		}
	})
}

func TestFormula_StringRoundTrip(t *testing.T) {
	src := "Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)"
	f, err := Parse(src, gaussianDecls)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// The canonical render must parse back to an identical render.
	g, err := ParseWith(f.String(), f.Args)
	if err != nil {
		t.Fatalf("reparse of %q failed: %v", f.String(), err)
	}
	if g.String() != f.String() {
		t.Errorf("render not canonical: %q vs %q", g.String(), f.String())
	}
}

func TestParseArgs_Errors(t *testing.T) {
	if _, err := ParseArgs([]string{"x = Vi(3)", "x = Vj(2)"}); err == nil {
		t.Error("duplicate declaration accepted")
	}
	if _, err := ParseArgs([]string{"x = Vk(3)"}); err == nil {
		t.Error("unknown category accepted")
	}
	if _, err := ParseArgs([]string{"x = Vi(0)"}); err == nil {
		t.Error("zero dimension accepted")
	}
	if _, err := ParseArgs([]string{"x Vi(3)"}); err == nil {
		t.Error("missing '=' accepted")
	}
	if _, err := ParseArgs([]string{"2x = Vi(3)"}); err == nil {
		t.Error("invalid identifier accepted")
	}
}

func TestArgTable_SlotOrder(t *testing.T) {
	table, err := ParseArgs(gaussianDecls)
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	for i, b := range table.All() {
		if b.Slot != i {
			t.Errorf("Binding %s: expected slot %d, got %d", b.Name, i, b.Slot)
		}
	}
	if table.Lookup("b").Dim != 6 {
		t.Errorf("Expected dim 6 for b, got %d", table.Lookup("b").Dim)
	}
	if table.Lookup("nope") != nil {
		t.Error("Lookup of undeclared symbol should return nil")
	}
}
