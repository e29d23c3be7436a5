package engine

import (
	"math"

	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// accumulator folds formula values for one outer index across the reduced
// axis. Folding is strictly sequential in ascending inner index, which
// makes results reproducible for any tile size and gives arg reductions
// their lowest-index tie-break for free.
type accumulator[T tensor.Float] interface {
	reset()
	fold(vals []T, j int)
	write(vals []T, idx []int32)
}

func newAccumulator[T tensor.Float](kind formula.ReductionKind, dim int) accumulator[T] {
	switch kind {
	case formula.SumReduction:
		return &sumAcc[T]{vals: make([]T, dim)}
	case formula.MinReduction, formula.ArgMinReduction:
		return &extremumAcc[T]{vals: make([]T, dim), idx: make([]int32, dim), takeMax: false}
	case formula.MaxReduction, formula.ArgMaxReduction:
		return &extremumAcc[T]{vals: make([]T, dim), idx: make([]int32, dim), takeMax: true}
	case formula.LogSumExpReduction:
		return &lseAcc[T]{}
	}
	panic("engine: unknown reduction kind " + kind.String())
}

// sumAcc is the plain running-sum accumulator.
type sumAcc[T tensor.Float] struct {
	vals []T
}

func (a *sumAcc[T]) reset() {
	for i := range a.vals {
		a.vals[i] = 0
	}
}

func (a *sumAcc[T]) fold(vals []T, _ int) {
	for i, v := range vals {
		a.vals[i] += v
	}
}

func (a *sumAcc[T]) write(vals []T, _ []int32) {
	copy(vals, a.vals)
}

// extremumAcc tracks the running min or max per coordinate together with
// the inner index that produced it. Strict comparison on ascending folds
// keeps the lowest index among ties.
type extremumAcc[T tensor.Float] struct {
	vals    []T
	idx     []int32
	takeMax bool
	started bool
}

func (a *extremumAcc[T]) reset() {
	a.started = false
}

func (a *extremumAcc[T]) fold(vals []T, j int) {
	if !a.started {
		copy(a.vals, vals)
		//nolint:gosec // G115: inner axis length < 2^31
		jj := int32(j)
		for i := range a.idx {
			a.idx[i] = jj
		}
		a.started = true
		return
	}
	for i, v := range vals {
		better := v < a.vals[i]
		if a.takeMax {
			better = v > a.vals[i]
		}
		if better {
			a.vals[i] = v
			//nolint:gosec // G115: inner axis length < 2^31
			a.idx[i] = int32(j)
		}
	}
}

func (a *extremumAcc[T]) write(vals []T, idx []int32) {
	if vals != nil {
		copy(vals, a.vals)
	}
	if idx != nil {
		copy(idx, a.idx)
	}
}

// lseAcc computes log(Σ exp(v)) for a scalar formula with running-max
// rescaling, the online-softmax scheme: tracking the maximum seen so far
// keeps every exponential in [0, 1].
type lseAcc[T tensor.Float] struct {
	m T // running maximum
	s T // running Σ exp(v - m)
}

func (a *lseAcc[T]) reset() {
	a.m = T(math.Inf(-1))
	a.s = 0
}

func (a *lseAcc[T]) fold(vals []T, _ int) {
	v := vals[0]
	if v <= a.m {
		a.s += T(math.Exp(float64(v - a.m)))
		return
	}
	a.s = a.s*T(math.Exp(float64(a.m-v))) + 1
	a.m = v
}

func (a *lseAcc[T]) write(vals []T, _ []int32) {
	vals[0] = a.m + T(math.Log(float64(a.s)))
}
