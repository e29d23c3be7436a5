package diff

import (
	"github.com/symkern-ml/symkern/internal/formula"
)

// Grad derives the gradient formula of f with respect to the declared
// variable target, seeded by a fresh adjoint variable named adjoint. The
// adjoint is indexed by the original output axis and has the original
// output dimension, so chaining Grad yields higher-order derivatives.
//
// The reduction axis of the result follows the target's category: gradients
// with respect to a row-indexed variable reduce over j (output per row),
// column-indexed over i (output per column). For a parameter target the
// result still carries a per-row reduction; sumRows reports that the caller
// must additionally sum the surviving axis to obtain the final gradient.
//
// Only sum reductions are differentiable; other reduction kinds return an
// UnsupportedOperatorError.
func Grad(f *formula.Formula, target, adjoint string) (g *formula.Formula, sumRows bool, err error) {
	if f.Red.Kind != formula.SumReduction {
		return nil, false, &formula.UnsupportedOperatorError{Op: f.Red.Kind.String(), Context: "gradient"}
	}

	tb := f.Args.Lookup(target)
	if tb == nil {
		return nil, false, &formula.BindingError{Symbol: target, Msg: "gradient target is not a declared argument"}
	}

	args := f.Args.Clone()
	ab, err := args.Add(adjoint, f.Red.OutputCategory(), f.OutputDim())
	if err != nil {
		return nil, false, err
	}

	root, err := push(f.Root, formula.NewVar(ab), tb.Slot)
	if err != nil {
		return nil, false, err
	}
	if root == nil {
		root = formula.NewZero(tb.Dim)
	}

	axis := 0 // gradient indexed by i, reduce over j
	if tb.Cat == formula.Vj {
		axis = 1 // gradient indexed by j, reduce over i
	}

	return &formula.Formula{
		Red:  formula.Reduction{Kind: formula.SumReduction, Axis: axis},
		Root: root,
		Args: args,
	}, tb.Cat == formula.Pm, nil
}
