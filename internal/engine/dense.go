package engine

import (
	"math"

	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// Dense evaluates the reduction naively, one formula value at a time with
// no tiling and no online rescaling (log-sum-exp runs a separate max pass).
// It exists as an independent reference for the tiled path in tests.
func Dense[T tensor.Float](k *Kernel, data []*tensor.RawTensor, m, n int) *tensor.RawTensor {
	outer, inner := m, n
	outerCat := k.Formula.Red.OutputCategory()
	if k.Formula.Red.Axis == 1 {
		outer, inner = n, m
	}

	views := make([]argView[T], k.Formula.Args.Len())
	for _, b := range k.Formula.Args.All() {
		views[b.Slot] = argView[T]{data: tensor.AsSlice[T](data[b.Slot]), dim: b.Dim, cat: b.Cat}
	}

	outDim := k.Prog.OutDim
	out, err := tensor.NewRaw(k.OutputShape(m, n), k.OutputDType(data[0].DType()), tensor.CPU)
	if err != nil {
		panic(err)
	}

	scratch := make([]T, k.Prog.ScratchSize)
	vars := make([][]T, len(views))
	for s := range views {
		if views[s].cat == formula.Pm {
			vars[s] = views[s].data
		}
	}

	// Materialize every formula value for one outer row, then reduce.
	row := make([]T, inner*outDim)
	for i := 0; i < outer; i++ {
		for s := range views {
			if views[s].cat == outerCat {
				vars[s] = views[s].row(i)
			}
		}
		for j := 0; j < inner; j++ {
			for s := range views {
				if views[s].cat != outerCat && views[s].cat != formula.Pm {
					vars[s] = views[s].row(j)
				}
			}
			copy(row[j*outDim:], evalPoint(k.Prog, scratch, vars))
		}
		denseReduceRow(k.Formula.Red.Kind, row, inner, outDim, out, i)
	}
	return out
}

func denseReduceRow[T tensor.Float](kind formula.ReductionKind, row []T, inner, dim int, out *tensor.RawTensor, i int) {
	switch kind {
	case formula.SumReduction:
		dst := tensor.AsSlice[T](out)[i*dim : (i+1)*dim]
		for j := 0; j < inner; j++ {
			for d := 0; d < dim; d++ {
				dst[d] += row[j*dim+d]
			}
		}

	case formula.MinReduction, formula.MaxReduction:
		dst := tensor.AsSlice[T](out)[i*dim : (i+1)*dim]
		copy(dst, row[:dim])
		for j := 1; j < inner; j++ {
			for d := 0; d < dim; d++ {
				v := row[j*dim+d]
				if (kind == formula.MinReduction && v < dst[d]) || (kind == formula.MaxReduction && v > dst[d]) {
					dst[d] = v
				}
			}
		}

	case formula.ArgMinReduction, formula.ArgMaxReduction:
		dst := out.AsInt32()[i*dim : (i+1)*dim]
		best := make([]T, dim)
		copy(best, row[:dim])
		for d := range dst {
			dst[d] = 0
		}
		for j := 1; j < inner; j++ {
			for d := 0; d < dim; d++ {
				v := row[j*dim+d]
				if (kind == formula.ArgMinReduction && v < best[d]) || (kind == formula.ArgMaxReduction && v > best[d]) {
					best[d] = v
					dst[d] = int32(j)
				}
			}
		}

	case formula.LogSumExpReduction:
		dst := tensor.AsSlice[T](out)[i : i+1]
		m := row[0]
		for j := 1; j < inner; j++ {
			if row[j] > m {
				m = row[j]
			}
		}
		var s float64
		for j := 0; j < inner; j++ {
			s += math.Exp(float64(row[j] - m))
		}
		dst[0] = m + T(math.Log(s))
	}
}
