// Package diff implements reverse-mode symbolic differentiation of formula
// ASTs. Differentiation is a pure tree-to-tree transform: every operator
// kind has a registered rule pushing an adjoint expression onto its
// children, and the walker composes rules bottom-up into a new AST obeying
// the same dimension invariants as the input.
//
// Because the emitted trees use only registered operators, the transform is
// composable: differentiating a derivative again (for second-order
// gradients) needs no special cases.
package diff

import (
	"github.com/symkern-ml/symkern/internal/formula"
)

// childAdjoint pairs an operator child with the adjoint expression pushed
// onto it by the operator's rule.
type childAdjoint struct {
	child *formula.Node
	adj   *formula.Node
}

// rule computes the child adjoints for one operator node. n is the node
// being differentiated, adj the adjoint of its output (same dimension as n).
// A rule returning an empty slice has derivative zero (e.g. Sign).
type rule func(n, adj *formula.Node) []childAdjoint

// rules is the fixed registry of differentiation rules, keyed by node kind.
// Variables, literals and zeros are handled directly by the walker.
var rules = map[formula.Op]rule{
	formula.OpAdd:      addRule,
	formula.OpSub:      subRule,
	formula.OpMul:      mulRule,
	formula.OpDiv:      divRule,
	formula.OpMinus:    minusRule,
	formula.OpExp:      expRule,
	formula.OpLog:      logRule,
	formula.OpSin:      sinRule,
	formula.OpCos:      cosRule,
	formula.OpSqrt:     sqrtRule,
	formula.OpSquare:   squareRule,
	formula.OpAbs:      absRule,
	formula.OpSign:     signRule,
	formula.OpPow:      powRule,
	formula.OpSum:      sumRule,
	formula.OpSumT:     sumTRule,
	formula.OpSqNorm2:  sqNorm2Rule,
	formula.OpNorm2:    norm2Rule,
	formula.OpScalprod: scalprodRule,
	formula.OpConcat:   concatRule,
	formula.OpExtract:  extractRule,
	formula.OpExtractT: extractTRule,
}

// push computes the contribution of subtree n, seeded with adjoint adj, to
// the derivative with respect to the argument slot target. Returns nil when
// the subtree does not depend on the target.
//
// Invariant: adj.Dim == n.Dim on entry. When a rule pushes a wide adjoint
// onto a scalar child (the broadcast case of elementwise arithmetic), the
// walker collapses it with Sum before recursing, so the invariant holds at
// every level.
func push(n, adj *formula.Node, target int) (*formula.Node, error) {
	switch n.Op {
	case formula.OpVar:
		if n.Slot == target {
			return adj, nil
		}
		return nil, nil
	case formula.OpLit, formula.OpZero:
		return nil, nil
	}

	r, ok := rules[n.Op]
	if !ok {
		return nil, &formula.UnsupportedOperatorError{Op: n.Op.String(), Context: "differentiation"}
	}

	var total *formula.Node
	for _, ca := range r(n, adj) {
		a := ca.adj
		if ca.child.Dim == 1 && a.Dim > 1 {
			a = sum(a)
		}
		g, err := push(ca.child, a, target)
		if err != nil {
			return nil, err
		}
		if g == nil {
			continue
		}
		if total == nil {
			total = g
		} else {
			total = add(total, g)
		}
	}
	return total, nil
}
