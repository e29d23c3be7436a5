package engine

import (
	"fmt"

	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/parallel"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// Kernel is the immutable compiled form of a formula: the reduction
// descriptor, the argument bindings and the lowered register program. A
// Kernel owns no data and may be evaluated concurrently.
type Kernel struct {
	Formula *formula.Formula
	Prog    *Program
}

// Compile lowers a parsed formula into a Kernel. The declarations must
// cover both data axes: the engine infers M and N from the first
// row-indexed and column-indexed argument buffers.
func Compile(f *formula.Formula) (*Kernel, error) {
	hasVi, hasVj := false, false
	for _, b := range f.Args.All() {
		switch b.Cat {
		case formula.Vi:
			hasVi = true
		case formula.Vj:
			hasVj = true
		}
	}
	if !hasVi {
		return nil, &formula.BindingError{Symbol: "Vi", Msg: "at least one row-indexed argument must be declared to fix the M axis"}
	}
	if !hasVj {
		return nil, &formula.BindingError{Symbol: "Vj", Msg: "at least one column-indexed argument must be declared to fix the N axis"}
	}
	return &Kernel{Formula: f, Prog: CompileNode(f.Root)}, nil
}

// OutputDType returns the element type of the reduction output for inputs
// of the given type. Arg reductions emit indices.
func (k *Kernel) OutputDType(in tensor.DataType) tensor.DataType {
	if k.Formula.Red.Kind.IsArg() {
		return tensor.Int32
	}
	return in
}

// OutputShape returns the output buffer shape for the given axis lengths.
func (k *Kernel) OutputShape(m, n int) tensor.Shape {
	rows := m
	if k.Formula.Red.Axis == 1 {
		rows = n
	}
	return tensor.Shape{rows, k.Formula.OutputDim()}
}

// CheckArgs validates the supplied buffers against the binding table and
// infers the axis lengths M and N. All floating-point buffers must share
// one dtype; shapes must match the declared category and dimension.
func (k *Kernel) CheckArgs(data []*tensor.RawTensor) (m, n int, dtype tensor.DataType, err error) {
	args := k.Formula.Args
	if len(data) != args.Len() {
		return 0, 0, 0, &formula.BindingError{
			Symbol: "arguments",
			Msg:    fmt.Sprintf("formula declares %d arguments, got %d buffers", args.Len(), len(data)),
		}
	}

	m, n = -1, -1
	dtype = data[0].DType()
	for _, b := range args.All() {
		buf := data[b.Slot]
		if buf.DType() != dtype {
			return 0, 0, 0, &formula.BindingError{
				Symbol: b.Name,
				Msg:    fmt.Sprintf("buffer dtype %s disagrees with %s of earlier arguments", buf.DType(), dtype),
			}
		}

		switch b.Cat {
		case formula.Pm:
			if buf.NumElements() != b.Dim {
				return 0, 0, 0, &formula.DimensionMismatchError{Op: b.Name, Expected: b.Dim, Actual: buf.NumElements(), Msg: "parameter buffer size"}
			}
		case formula.Vi, formula.Vj:
			rows, dim, ok := matrixShape(buf.Shape(), b.Dim)
			if !ok {
				return 0, 0, 0, &formula.DimensionMismatchError{Op: b.Name, Expected: b.Dim, Actual: dim, Msg: "buffer inner dimension"}
			}
			if b.Cat == formula.Vi {
				if m >= 0 && rows != m {
					return 0, 0, 0, &formula.DimensionMismatchError{Op: b.Name, Expected: m, Actual: rows, Msg: "row count disagrees with earlier Vi arguments"}
				}
				m = rows
			} else {
				if n >= 0 && rows != n {
					return 0, 0, 0, &formula.DimensionMismatchError{Op: b.Name, Expected: n, Actual: rows, Msg: "row count disagrees with earlier Vj arguments"}
				}
				n = rows
			}
		}
	}
	return m, n, dtype, nil
}

// matrixShape accepts [rows, dim] buffers, plus 1D [rows] when dim is 1.
func matrixShape(s tensor.Shape, dim int) (rows, gotDim int, ok bool) {
	switch len(s) {
	case 2:
		return s[0], s[1], s[1] == dim
	case 1:
		if dim == 1 {
			return s[0], 1, true
		}
		return s[0], 1, false
	default:
		return 0, 0, false
	}
}

// Config tunes the tiled evaluation.
type Config struct {
	Parallel parallel.Config
	TileJ    int // inner-axis block size; numeric results do not depend on it
}

// DefaultTileJ bounds per-block bookkeeping without affecting results:
// folding stays sequential in ascending inner index inside and across
// blocks.
const DefaultTileJ = 1024

// DefaultConfig returns the default evaluation configuration.
func DefaultConfig() Config {
	return Config{Parallel: parallel.DefaultConfig(), TileJ: DefaultTileJ}
}

// Reduce evaluates the kernel over the supplied buffers into out, which
// must have the shape from OutputShape and dtype from OutputDType. Tiles of
// the non-reduced axis go to the worker pool; each worker folds the reduced
// axis sequentially into its private accumulator.
func Reduce[T tensor.Float](k *Kernel, data []*tensor.RawTensor, m, n int, out *tensor.RawTensor, cfg Config) {
	if cfg.TileJ <= 0 {
		cfg.TileJ = DefaultTileJ
	}

	outer, inner := m, n
	outerCat := k.Formula.Red.OutputCategory()
	if k.Formula.Red.Axis == 1 {
		outer, inner = n, m
	}

	args := k.Formula.Args
	views := make([]argView[T], args.Len())
	for _, b := range args.All() {
		views[b.Slot] = argView[T]{data: tensor.AsSlice[T](data[b.Slot]), dim: b.Dim, cat: b.Cat}
	}

	outDim := k.Prog.OutDim
	isArg := k.Formula.Red.Kind.IsArg()
	var outVals []T
	var outIdx []int32
	if isArg {
		outIdx = out.AsInt32()
	} else {
		outVals = tensor.AsSlice[T](out)
	}

	parallel.ForTiles(outer, func(start, end int) {
		scratch := make([]T, k.Prog.ScratchSize)
		vars := make([][]T, len(views))
		acc := newAccumulator[T](k.Formula.Red.Kind, outDim)

		// Parameter rows never change.
		for s := range views {
			if views[s].cat == formula.Pm {
				vars[s] = views[s].data
			}
		}

		for i := start; i < end; i++ {
			for s := range views {
				if views[s].cat == outerCat {
					vars[s] = views[s].row(i)
				}
			}
			acc.reset()
			for blk := 0; blk < inner; blk += cfg.TileJ {
				blkEnd := min(blk+cfg.TileJ, inner)
				for j := blk; j < blkEnd; j++ {
					for s := range views {
						if views[s].cat != outerCat && views[s].cat != formula.Pm {
							vars[s] = views[s].row(j)
						}
					}
					acc.fold(evalPoint(k.Prog, scratch, vars), j)
				}
			}
			if isArg {
				acc.write(nil, outIdx[i*outDim:(i+1)*outDim])
			} else {
				acc.write(outVals[i*outDim:(i+1)*outDim], nil)
			}
		}
	}, cfg.Parallel)
}

// argView is a typed window over one argument buffer.
type argView[T tensor.Float] struct {
	data []T
	dim  int
	cat  formula.Category
}

func (v argView[T]) row(i int) []T {
	return v.data[i*v.dim : (i+1)*v.dim]
}
