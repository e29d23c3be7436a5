package diff_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/symkern-ml/symkern/internal/diff"
	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/tensor"
)

var gradDecls = []string{"x = Vi(2)", "y = Vj(2)", "b = Vj(3)", "s = Pm(1)"}

const (
	gradM = 5
	gradN = 7
	fdH   = 1e-6
	fdTol = 1e-4
)

// gradArgs returns buffers in [0.5, 1.5] so Log, Sqrt, Div and Abs stay
// away from their singular points during finite differencing.
func gradArgs(t *testing.T, seed int64) []*tensor.RawTensor {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	shapes := []tensor.Shape{{gradM, 2}, {gradN, 2}, {gradN, 3}, {1}}
	bufs := make([]*tensor.RawTensor, len(shapes))
	for i, shape := range shapes {
		data := make([]float64, shape.NumElements())
		for j := range data {
			data[j] = 0.5 + rng.Float64()
		}
		buf, err := tensor.FromSlice(data, shape)
		if err != nil {
			t.Fatal(err)
		}
		bufs[i] = buf
	}
	return bufs
}

func reduceF64(t *testing.T, f *formula.Formula, bufs []*tensor.RawTensor) []float64 {
	t.Helper()
	k, err := engine.Compile(f)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	m, n, dtype, err := k.CheckArgs(bufs)
	if err != nil {
		t.Fatalf("CheckArgs failed: %v", err)
	}
	out, err := tensor.NewRaw(k.OutputShape(m, n), k.OutputDType(dtype), tensor.CPU)
	if err != nil {
		t.Fatal(err)
	}
	engine.Reduce[float64](k, bufs, m, n, out, engine.DefaultConfig())
	return out.AsFloat64()
}

// loss is Σ adj ⊙ F(args), the scalar whose x-gradient the symbolic
// gradient operator computes when applied with adjoint buffer adj.
func loss(t *testing.T, f *formula.Formula, bufs []*tensor.RawTensor, adj []float64) float64 {
	t.Helper()
	out := reduceF64(t, f, bufs)
	var sum float64
	for i, v := range out {
		sum += adj[i] * v
	}
	return sum
}

// checkGrad compares the symbolic gradient of src with respect to target
// against central finite differences of the adjoint-weighted loss.
func checkGrad(t *testing.T, src, target string) {
	t.Helper()
	f, err := formula.Parse(src, gradDecls)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	g, sumRows, err := diff.Grad(f, target, "a")
	if err != nil {
		t.Fatalf("Grad(%q, %s) failed: %v", src, target, err)
	}

	bufs := gradArgs(t, 7)
	rows := gradM
	if f.Red.Axis == 1 {
		rows = gradN
	}
	adj := make([]float64, rows*f.OutputDim())
	rng := rand.New(rand.NewSource(11))
	for i := range adj {
		adj[i] = rng.Float64()*2 - 1
	}
	adjShape := tensor.Shape{rows, f.OutputDim()}
	adjBuf, err := tensor.FromSlice(adj, adjShape)
	if err != nil {
		t.Fatal(err)
	}

	got := reduceF64(t, g, append(append([]*tensor.RawTensor{}, bufs...), adjBuf))
	if sumRows {
		// Parameter gradients fold the remaining axis.
		dim := g.OutputDim()
		folded := make([]float64, dim)
		for i, v := range got {
			folded[i%dim] += v
		}
		got = folded
	}

	tb := f.Args.Lookup(target)
	data := tensor.AsSlice[float64](bufs[tb.Slot])
	if len(got) != len(data) {
		t.Fatalf("gradient has %d elements, target buffer %d", len(got), len(data))
	}

	for i := range data {
		orig := data[i]
		data[i] = orig + fdH
		lp := loss(t, f, bufs, adj)
		data[i] = orig - fdH
		lm := loss(t, f, bufs, adj)
		data[i] = orig

		want := (lp - lm) / (2 * fdH)
		if math.Abs(got[i]-want) > fdTol*(1+math.Abs(want)) {
			t.Fatalf("%s d/d%s[%d]: symbolic %g, finite difference %g", src, target, i, got[i], want)
		}
	}
}

func TestGrad_Elementwise(t *testing.T) {
	cases := []string{
		"Sum_Reduction(x+y, 0)",
		"Sum_Reduction(x-y, 0)",
		"Sum_Reduction(x*y, 0)",
		"Sum_Reduction(x/y, 0)",
		"Sum_Reduction(-x*y, 0)",
		"Sum_Reduction(Exp(x)*y, 0)",
		"Sum_Reduction(Log(x)*y, 0)",
		"Sum_Reduction(Sin(x)+y, 0)",
		"Sum_Reduction(Cos(x)*y, 0)",
		"Sum_Reduction(Sqrt(x)*y, 0)",
		"Sum_Reduction(Square(x-y), 0)",
		"Sum_Reduction(Abs(x)*y, 0)",
		"Sum_Reduction(Pow(x, 3)+y, 0)",
		"Sum_Reduction(s*x+y, 0)",
	}
	for _, src := range cases {
		checkGrad(t, src, "x")
	}
}

func TestGrad_Reductions(t *testing.T) {
	cases := []string{
		"Sum_Reduction(SumT(Sum(x)*Sum(y), 3), 0)",
		"Sum_Reduction(SqNorm2(x-y), 0)",
		"Sum_Reduction(Norm2(x)+Sum(y), 0)",
		"Sum_Reduction(Scalprod(x, y)*b, 0)",
	}
	for _, src := range cases {
		checkGrad(t, src, "x")
	}
}

func TestGrad_Rearrangement(t *testing.T) {
	cases := []string{
		"Sum_Reduction(Concat(x, y), 0)",
		"Sum_Reduction(Extract(Concat(x, y), 1, 2), 0)",
		"Sum_Reduction(ExtractT(x, 1, 4), 0)",
	}
	for _, src := range cases {
		checkGrad(t, src, "x")
	}
}

func TestGrad_GaussianKernel_AllTargets(t *testing.T) {
	src := "Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)"
	checkGrad(t, src, "x")
	checkGrad(t, src, "y")
	checkGrad(t, src, "b")
	checkGrad(t, src, "s")
}

func TestGrad_SignIsZero(t *testing.T) {
	f, err := formula.Parse("Sum_Reduction(Sign(x)*y, 0)", gradDecls)
	if err != nil {
		t.Fatal(err)
	}
	g, _, err := diff.Grad(f, "x", "a")
	if err != nil {
		t.Fatal(err)
	}

	bufs := gradArgs(t, 13)
	adj := make([]float64, gradM*f.OutputDim())
	for i := range adj {
		adj[i] = 1
	}
	adjBuf, _ := tensor.FromSlice(adj, tensor.Shape{gradM, f.OutputDim()})
	got := reduceF64(t, g, append(append([]*tensor.RawTensor{}, bufs...), adjBuf))
	for i, v := range got {
		if v != 0 {
			t.Errorf("grad[%d] = %g, want exactly 0", i, v)
		}
	}
}

func TestGrad_SecondOrder(t *testing.T) {
	// d²/dx² of the Gaussian kernel via Grad twice, checked against finite
	// differences of the first gradient's loss.
	src := "Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)"
	f, err := formula.Parse(src, gradDecls)
	if err != nil {
		t.Fatal(err)
	}
	g, _, err := diff.Grad(f, "x", "a")
	if err != nil {
		t.Fatal(err)
	}
	g2, sumRows2, err := diff.Grad(g, "x", "a2")
	if err != nil {
		t.Fatalf("second-order Grad failed: %v", err)
	}
	if sumRows2 {
		t.Fatal("x is row-indexed; no host fold expected")
	}

	bufs := gradArgs(t, 17)
	rng := rand.New(rand.NewSource(19))
	adj := make([]float64, gradM*f.OutputDim())
	for i := range adj {
		adj[i] = rng.Float64()*2 - 1
	}
	adjBuf, _ := tensor.FromSlice(adj, tensor.Shape{gradM, f.OutputDim()})

	adj2 := make([]float64, gradM*g.OutputDim())
	for i := range adj2 {
		adj2[i] = rng.Float64()*2 - 1
	}
	adj2Buf, _ := tensor.FromSlice(adj2, tensor.Shape{gradM, g.OutputDim()})

	firstArgs := append(append([]*tensor.RawTensor{}, bufs...), adjBuf)
	got := reduceF64(t, g2, append(append([]*tensor.RawTensor{}, firstArgs...), adj2Buf))

	data := tensor.AsSlice[float64](bufs[0])
	for i := range data {
		orig := data[i]
		data[i] = orig + fdH
		lp := loss(t, g, firstArgs, adj2)
		data[i] = orig - fdH
		lm := loss(t, g, firstArgs, adj2)
		data[i] = orig

		want := (lp - lm) / (2 * fdH)
		if math.Abs(got[i]-want) > fdTol*(1+math.Abs(want)) {
			t.Fatalf("second order d/dx[%d]: symbolic %g, finite difference %g", i, got[i], want)
		}
	}
}

func TestGrad_Errors(t *testing.T) {
	var unsupported *formula.UnsupportedOperatorError
	var bindErr *formula.BindingError

	f, err := formula.Parse("Min_Reduction(SqNorm2(x-y), 0)", gradDecls)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := diff.Grad(f, "x", "a"); !errors.As(err, &unsupported) {
		t.Errorf("expected UnsupportedOperatorError for Min_Reduction, got %v", err)
	}

	f, err = formula.Parse("Sum_Reduction(x+y, 0)", gradDecls)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := diff.Grad(f, "nope", "a"); !errors.As(err, &bindErr) {
		t.Errorf("expected BindingError for undeclared target, got %v", err)
	}
	if _, _, err := diff.Grad(f, "x", "x"); err == nil {
		t.Error("expected error when adjoint name collides with a declaration")
	}
}

func TestGrad_AxisAndShape(t *testing.T) {
	f, err := formula.Parse("Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)", gradDecls)
	if err != nil {
		t.Fatal(err)
	}

	gx, sumX, err := diff.Grad(f, "x", "a")
	if err != nil {
		t.Fatal(err)
	}
	if sumX || gx.Red.Axis != 0 || gx.OutputDim() != 2 {
		t.Errorf("x grad: sumRows=%v axis=%d dim=%d", sumX, gx.Red.Axis, gx.OutputDim())
	}

	gy, sumY, err := diff.Grad(f, "y", "a")
	if err != nil {
		t.Fatal(err)
	}
	if sumY || gy.Red.Axis != 1 || gy.OutputDim() != 2 {
		t.Errorf("y grad: sumRows=%v axis=%d dim=%d", sumY, gy.Red.Axis, gy.OutputDim())
	}

	gs, sumS, err := diff.Grad(f, "s", "a")
	if err != nil {
		t.Fatal(err)
	}
	if !sumS || gs.OutputDim() != 1 {
		t.Errorf("s grad: sumRows=%v dim=%d", sumS, gs.OutputDim())
	}

	// The adjoint is appended as a declaration of the output axis/dim.
	adj := gx.Args.Lookup("a")
	if adj == nil || adj.Cat != formula.Vi || adj.Dim != 6 {
		t.Errorf("adjoint binding: %+v", adj)
	}
}
