package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/parallel"
	"github.com/symkern-ml/symkern/internal/tensor"
)

var testDecls = []string{"x = Vi(3)", "y = Vj(3)", "b = Vj(6)", "s = Pm(1)"}

func compileTest(t *testing.T, src string) *Kernel {
	t.Helper()
	f, err := formula.Parse(src, testDecls)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	k, err := Compile(f)
	if err != nil {
		t.Fatalf("Compile(%q) failed: %v", src, err)
	}
	return k
}

func randBuffer(t *testing.T, rng *rand.Rand, shape tensor.Shape) *tensor.RawTensor {
	t.Helper()
	data := make([]float64, shape.NumElements())
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	buf, err := tensor.FromSlice(data, shape)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	return buf
}

func testArgs(t *testing.T, rng *rand.Rand, m, n int) []*tensor.RawTensor {
	t.Helper()
	return []*tensor.RawTensor{
		randBuffer(t, rng, tensor.Shape{m, 3}),
		randBuffer(t, rng, tensor.Shape{n, 3}),
		randBuffer(t, rng, tensor.Shape{n, 6}),
		randBuffer(t, rng, tensor.Shape{1}),
	}
}

// runTiled evaluates with the given worker and tile configuration.
func runTiled(t *testing.T, k *Kernel, data []*tensor.RawTensor, workers, tileJ int) *tensor.RawTensor {
	t.Helper()
	m, n, dtype, err := k.CheckArgs(data)
	if err != nil {
		t.Fatalf("CheckArgs failed: %v", err)
	}
	out, err := tensor.NewRaw(k.OutputShape(m, n), k.OutputDType(dtype), tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	cfg := Config{Parallel: parallel.WithWorkers(workers), TileJ: tileJ}
	Reduce[float64](k, data, m, n, out, cfg)
	return out
}

func TestReduce_MatchesDense_AllKinds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	formulas := []string{
		"Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)",
		"Sum_Reduction(Scalprod(x, y)*b, 1)",
		"Min_Reduction(SqNorm2(x-y), 0)",
		"Max_Reduction(Scalprod(x, y), 0)",
		"ArgMin_Reduction(SqNorm2(x-y), 0)",
		"ArgMax_Reduction(Scalprod(x, y), 1)",
		"LogSumExp_Reduction(-s*SqNorm2(x-y), 0)",
	}
	m, n := 37, 53

	for _, src := range formulas {
		k := compileTest(t, src)
		data := testArgs(t, rng, m, n)
		want := Dense[float64](k, data, m, n)

		for _, tileJ := range []int{1, 7, 64, DefaultTileJ} {
			for _, workers := range []int{1, 4} {
				got := runTiled(t, k, data, workers, tileJ)
				if !got.Shape().Equal(want.Shape()) {
					t.Fatalf("%s: shape %v, want %v", src, got.Shape(), want.Shape())
				}
				if k.Formula.Red.Kind.IsArg() {
					g, w := got.AsInt32(), want.AsInt32()
					for i := range g {
						if g[i] != w[i] {
							t.Fatalf("%s (tile %d, workers %d): index[%d] = %d, want %d",
								src, tileJ, workers, i, g[i], w[i])
						}
					}
					continue
				}
				g, w := got.AsFloat64(), want.AsFloat64()
				for i := range g {
					if math.Abs(g[i]-w[i]) > 1e-10*(1+math.Abs(w[i])) {
						t.Fatalf("%s (tile %d, workers %d): out[%d] = %g, want %g",
							src, tileJ, workers, i, g[i], w[i])
					}
				}
			}
		}
	}
}

func TestReduce_GaussianKernel_BruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	m, n := 100, 150
	x := randBuffer(t, rng, tensor.Shape{m, 3})
	y := randBuffer(t, rng, tensor.Shape{n, 3})
	b := randBuffer(t, rng, tensor.Shape{n, 6})
	s, err := tensor.FromSlice([]float64{0.2}, tensor.Shape{1})
	if err != nil {
		t.Fatal(err)
	}

	k := compileTest(t, "Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)")
	out := runTiled(t, k, []*tensor.RawTensor{x, y, b, s}, 4, 32)

	xd, yd, bd := x.AsFloat64(), y.AsFloat64(), b.AsFloat64()
	od := out.AsFloat64()
	for i := 0; i < m; i++ {
		want := make([]float64, 6)
		for j := 0; j < n; j++ {
			var sq float64
			for d := 0; d < 3; d++ {
				diff := xd[i*3+d] - yd[j*3+d]
				sq += diff * diff
			}
			w := math.Exp(-0.2 * sq)
			for d := 0; d < 6; d++ {
				want[d] += w * bd[j*6+d]
			}
		}
		for d := 0; d < 6; d++ {
			if math.Abs(od[i*6+d]-want[d]) > 1e-9*(1+math.Abs(want[d])) {
				t.Fatalf("row %d, col %d: got %g, want %g", i, d, od[i*6+d], want[d])
			}
		}
	}
}

func TestReduce_ArgMax_TieBreak(t *testing.T) {
	// All formula values equal: every tile size must report index 0.
	decls := []string{"x = Vi(1)", "y = Vj(1)"}
	f, err := formula.Parse("ArgMax_Reduction(x*0+y*0+1, 0)", decls)
	if err != nil {
		t.Fatal(err)
	}
	k, err := Compile(f)
	if err != nil {
		t.Fatal(err)
	}

	m, n := 13, 97
	ones := make([]float64, n)
	x, _ := tensor.FromSlice(make([]float64, m), tensor.Shape{m, 1})
	y, _ := tensor.FromSlice(ones, tensor.Shape{n, 1})

	for _, tileJ := range []int{1, 8, 100} {
		for _, workers := range []int{1, 3} {
			out := runTiled(t, k, []*tensor.RawTensor{x, y}, workers, tileJ)
			for i, idx := range out.AsInt32() {
				if idx != 0 {
					t.Fatalf("tile %d, workers %d: out[%d] = %d, want 0 (lowest tied index)",
						tileJ, workers, i, idx)
				}
			}
		}
	}

	// Axis 1: five tied rows reduced over i, one output per column.
	f1, err := formula.Parse("ArgMax_Reduction(x*0+y*0+1, 1)", decls)
	if err != nil {
		t.Fatal(err)
	}
	k1, err := Compile(f1)
	if err != nil {
		t.Fatal(err)
	}
	x5, _ := tensor.FromSlice(make([]float64, 5), tensor.Shape{5, 1})
	y1, _ := tensor.FromSlice(make([]float64, 1), tensor.Shape{1, 1})
	for _, tileJ := range []int{1, 2, 5} {
		out := runTiled(t, k1, []*tensor.RawTensor{x5, y1}, 1, tileJ)
		if got := out.AsInt32()[0]; got != 0 {
			t.Fatalf("tile %d: tied arg-max picked row %d, want 0", tileJ, got)
		}
	}
}

func TestReduce_LogSumExp_Stability(t *testing.T) {
	// Large magnitudes overflow a naive exp-sum-log; the online rescaling
	// must not.
	decls := []string{"x = Vi(1)", "y = Vj(1)"}
	f, err := formula.Parse("LogSumExp_Reduction(Scalprod(x, y), 0)", decls)
	if err != nil {
		t.Fatal(err)
	}
	k, err := Compile(f)
	if err != nil {
		t.Fatal(err)
	}

	x, _ := tensor.FromSlice([]float64{1}, tensor.Shape{1, 1})
	y, _ := tensor.FromSlice([]float64{1000, 1001, 999}, tensor.Shape{3, 1})

	out := runTiled(t, k, []*tensor.RawTensor{x, y}, 1, 2)
	got := out.AsFloat64()[0]
	want := 1001 + math.Log(math.Exp(-1)+1+math.Exp(-2))
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %g, want %g", got, want)
	}
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Errorf("unstable result %g", got)
	}
}

func TestOutputShape(t *testing.T) {
	k0 := compileTest(t, "Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)")
	if !k0.OutputShape(100, 150).Equal(tensor.Shape{100, 6}) {
		t.Errorf("axis 0: got %v", k0.OutputShape(100, 150))
	}
	k1 := compileTest(t, "Sum_Reduction(Scalprod(x, y), 1)")
	if !k1.OutputShape(100, 150).Equal(tensor.Shape{150, 1}) {
		t.Errorf("axis 1: got %v", k1.OutputShape(100, 150))
	}

	if compileTest(t, "ArgMin_Reduction(SqNorm2(x-y), 0)").OutputDType(tensor.Float64) != tensor.Int32 {
		t.Error("arg reduction must output Int32")
	}
	if k0.OutputDType(tensor.Float32) != tensor.Float32 {
		t.Error("value reduction must keep the input dtype")
	}
}

func TestCheckArgs_Errors(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	k := compileTest(t, "Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)")
	good := testArgs(t, rng, 10, 20)

	var dimErr *formula.DimensionMismatchError
	var bindErr *formula.BindingError

	t.Run("wrong arg count", func(t *testing.T) {
		_, _, _, err := k.CheckArgs(good[:3])
		if !errors.As(err, &bindErr) {
			t.Errorf("expected BindingError, got %v", err)
		}
	})

	t.Run("wrong inner dim", func(t *testing.T) {
		bad := append([]*tensor.RawTensor{}, good...)
		bad[0] = randBuffer(t, rng, tensor.Shape{10, 4})
		_, _, _, err := k.CheckArgs(bad)
		if !errors.As(err, &dimErr) {
			t.Errorf("expected DimensionMismatchError, got %v", err)
		}
	})

	t.Run("inconsistent rows", func(t *testing.T) {
		bad := append([]*tensor.RawTensor{}, good...)
		bad[2] = randBuffer(t, rng, tensor.Shape{21, 6}) // b disagrees with y's N
		_, _, _, err := k.CheckArgs(bad)
		if !errors.As(err, &dimErr) {
			t.Errorf("expected DimensionMismatchError, got %v", err)
		}
	})

	t.Run("mixed dtypes", func(t *testing.T) {
		bad := append([]*tensor.RawTensor{}, good...)
		f32, _ := tensor.FromSlice(make([]float32, 30), tensor.Shape{10, 3})
		bad[0] = f32
		_, _, _, err := k.CheckArgs(bad)
		if !errors.As(err, &bindErr) {
			t.Errorf("expected BindingError, got %v", err)
		}
	})

	t.Run("param buffer size", func(t *testing.T) {
		bad := append([]*tensor.RawTensor{}, good...)
		bad[3] = randBuffer(t, rng, tensor.Shape{2})
		_, _, _, err := k.CheckArgs(bad)
		if !errors.As(err, &dimErr) {
			t.Errorf("expected DimensionMismatchError, got %v", err)
		}
	})

	t.Run("axes inferred", func(t *testing.T) {
		m, n, dtype, err := k.CheckArgs(good)
		if err != nil {
			t.Fatalf("CheckArgs failed: %v", err)
		}
		if m != 10 || n != 20 || dtype != tensor.Float64 {
			t.Errorf("got m=%d n=%d dtype=%v", m, n, dtype)
		}
	})
}

func TestCompile_RequiresBothAxes(t *testing.T) {
	f, err := formula.Parse("Sum_Reduction(x, 0)", []string{"x = Vi(3)"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Compile(f); err == nil {
		t.Error("expected error for formula with no Vj argument")
	}
}

func TestProgram_SharedSubtreesLoweredOnce(t *testing.T) {
	// Derivative trees reuse forward nodes by pointer; the compiler must
	// lower a shared subtree exactly once.
	table, err := formula.ParseArgs([]string{"x = Vi(3)", "y = Vj(3)"})
	if err != nil {
		t.Fatal(err)
	}
	diff, err := formula.NewNode(formula.OpSub,
		[]*formula.Node{formula.NewVar(table.At(0)), formula.NewVar(table.At(1))}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	prod, err := formula.NewNode(formula.OpScalprod, []*formula.Node{diff, diff}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	p := CompileNode(prod)
	subs := 0
	for _, in := range p.Instrs {
		if in.Op == formula.OpSub {
			subs++
		}
	}
	if subs != 1 {
		t.Errorf("shared subtree lowered %d times, want 1", subs)
	}
}
