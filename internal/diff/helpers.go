package diff

import (
	"fmt"

	"github.com/symkern-ml/symkern/internal/formula"
)

// Smart constructors for derivative trees. Inputs are already
// well-dimensioned, so construction failures are internal invariant
// violations and panic. Known zeros and ones are folded away to keep
// generated trees small; without this, second derivatives blow up.

func mustNode(op formula.Op, children []*formula.Node, p0, p1 int) *formula.Node {
	n, err := formula.NewNode(op, children, p0, p1)
	if err != nil {
		panic(fmt.Sprintf("diff: invalid derivative node: %v", err))
	}
	return n
}

func elemDim(a, b *formula.Node) int {
	if a.Dim > b.Dim {
		return a.Dim
	}
	return b.Dim
}

func add(a, b *formula.Node) *formula.Node {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	return mustNode(formula.OpAdd, []*formula.Node{a, b}, 0, 0)
}

func mul(a, b *formula.Node) *formula.Node {
	if a.IsZero() || b.IsZero() {
		return formula.NewZero(elemDim(a, b))
	}
	if a.IsOne() {
		return b
	}
	if b.IsOne() {
		return a
	}
	return mustNode(formula.OpMul, []*formula.Node{a, b}, 0, 0)
}

func div(a, b *formula.Node) *formula.Node {
	if a.IsZero() {
		return formula.NewZero(elemDim(a, b))
	}
	if b.IsOne() {
		return a
	}
	return mustNode(formula.OpDiv, []*formula.Node{a, b}, 0, 0)
}

func neg(a *formula.Node) *formula.Node {
	if a.IsZero() {
		return a
	}
	return mustNode(formula.OpMinus, []*formula.Node{a}, 0, 0)
}

func sum(a *formula.Node) *formula.Node {
	if a.Dim == 1 {
		return a
	}
	if a.IsZero() {
		return formula.NewZero(1)
	}
	return mustNode(formula.OpSum, []*formula.Node{a}, 0, 0)
}

func lit(v float64) *formula.Node {
	return formula.NewLit(v)
}

func unary(op formula.Op, a *formula.Node) *formula.Node {
	return mustNode(op, []*formula.Node{a}, 0, 0)
}
