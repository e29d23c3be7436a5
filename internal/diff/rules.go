package diff

import "github.com/symkern-ml/symkern/internal/formula"

// Differentiation rules, one per operator. Each rule states the calculus
// identity it implements; the walker handles recursion, broadcast collapse
// and contribution summing.

// d(u+w): adjoint flows unchanged to both children.
func addRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{
		{n.Children[0], adj},
		{n.Children[1], adj},
	}
}

// d(u-w): adjoint flows to u, negated to w.
func subRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{
		{n.Children[0], adj},
		{n.Children[1], neg(adj)},
	}
}

// d(-u) = -du.
func minusRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], neg(adj)}}
}

// d(u*w)/du = w, d(u*w)/dw = u.
func mulRule(n, adj *formula.Node) []childAdjoint {
	u, w := n.Children[0], n.Children[1]
	return []childAdjoint{
		{u, mul(adj, w)},
		{w, mul(adj, u)},
	}
}

// d(u/w)/du = 1/w, d(u/w)/dw = -u/w².
func divRule(n, adj *formula.Node) []childAdjoint {
	u, w := n.Children[0], n.Children[1]
	return []childAdjoint{
		{u, div(adj, w)},
		{w, neg(div(mul(adj, u), mul(w, w)))},
	}
}

// d(exp(u)) = exp(u)*du; the node itself is reused as exp(u).
func expRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], mul(adj, n)}}
}

// d(log(u)) = du/u.
func logRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], div(adj, n.Children[0])}}
}

// d(sin(u)) = cos(u)*du.
func sinRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], mul(adj, unary(formula.OpCos, n.Children[0]))}}
}

// d(cos(u)) = -sin(u)*du.
func cosRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], neg(mul(adj, unary(formula.OpSin, n.Children[0])))}}
}

// d(sqrt(u)) = du/(2*sqrt(u)); the node itself is reused as sqrt(u).
func sqrtRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], div(adj, mul(lit(2), n))}}
}

// d(u²) = 2*u*du.
func squareRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], mul(mul(lit(2), adj), n.Children[0])}}
}

// d|u| = sign(u)*du.
func absRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], mul(adj, unary(formula.OpSign, n.Children[0]))}}
}

// sign is piecewise constant; its derivative is zero everywhere it exists.
func signRule(_, _ *formula.Node) []childAdjoint {
	return nil
}

// d(uⁿ) = n*uⁿ⁻¹*du.
func powRule(n, adj *formula.Node) []childAdjoint {
	u := n.Children[0]
	switch n.P0 {
	case 0:
		return nil
	case 1:
		return []childAdjoint{{u, adj}}
	case 2:
		return []childAdjoint{{u, mul(mul(lit(2), adj), u)}}
	}
	return []childAdjoint{{u, mul(mul(lit(float64(n.P0)), adj), mustNode(formula.OpPow, []*formula.Node{u}, n.P0-1, 0))}}
}

// d(Σₖ uₖ): the scalar adjoint broadcasts back to every coordinate.
func sumRule(n, adj *formula.Node) []childAdjoint {
	u := n.Children[0]
	if u.Dim == 1 {
		return []childAdjoint{{u, adj}}
	}
	return []childAdjoint{{u, mustNode(formula.OpSumT, []*formula.Node{adj}, u.Dim, 0)}}
}

// SumT is the adjoint of Sum, so its own adjoint is Sum.
func sumTRule(n, adj *formula.Node) []childAdjoint {
	return []childAdjoint{{n.Children[0], sum(adj)}}
}

// d(‖u‖²) = 2*u·du.
func sqNorm2Rule(n, adj *formula.Node) []childAdjoint {
	u := n.Children[0]
	return []childAdjoint{{u, mul(mul(lit(2), adj), u)}}
}

// d(‖u‖) = (u/‖u‖)·du; the node itself is reused as ‖u‖.
func norm2Rule(n, adj *formula.Node) []childAdjoint {
	u := n.Children[0]
	return []childAdjoint{{u, div(mul(adj, u), n)}}
}

// d(u·w)/du = w, d(u·w)/dw = u.
func scalprodRule(n, adj *formula.Node) []childAdjoint {
	u, w := n.Children[0], n.Children[1]
	return []childAdjoint{
		{u, mul(adj, w)},
		{w, mul(adj, u)},
	}
}

// The adjoint of concatenation splits back into the two coordinate ranges.
func concatRule(n, adj *formula.Node) []childAdjoint {
	u, w := n.Children[0], n.Children[1]
	return []childAdjoint{
		{u, mustNode(formula.OpExtract, []*formula.Node{adj}, 0, u.Dim)},
		{w, mustNode(formula.OpExtract, []*formula.Node{adj}, u.Dim, w.Dim)},
	}
}

// The adjoint of extraction embeds back at the source offset, zero elsewhere.
func extractRule(n, adj *formula.Node) []childAdjoint {
	u := n.Children[0]
	return []childAdjoint{{u, mustNode(formula.OpExtractT, []*formula.Node{adj}, n.P0, u.Dim)}}
}

// The adjoint of zero-embedding extracts the embedded range.
func extractTRule(n, adj *formula.Node) []childAdjoint {
	u := n.Children[0]
	return []childAdjoint{{u, mustNode(formula.OpExtract, []*formula.Node{adj}, n.P0, u.Dim)}}
}
