package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a tagged-variant AST node. Every node carries its inner dimension,
// computed bottom-up at construction time; a Node is therefore always
// well-dimensioned.
type Node struct {
	Op       Op
	Children []*Node
	Dim      int

	Lit  float64 // OpLit: literal value
	Slot int     // OpVar: argument slot in the binding table
	Name string  // OpVar: symbol name, kept for diagnostics

	P0, P1 int // integer operator parameters (Pow exponent, Extract range, ...)
}

// NewNode builds a node from an operator, children and integer parameters,
// inferring and validating the output dimension.
func NewNode(op Op, children []*Node, p0, p1 int) (*Node, error) {
	dim, err := inferDim(op, children, p0, p1)
	if err != nil {
		return nil, err
	}
	return &Node{Op: op, Children: children, Dim: dim, P0: p0, P1: p1}, nil
}

// NewVar builds a variable reference node for a binding.
func NewVar(b *Binding) *Node {
	return &Node{Op: OpVar, Dim: b.Dim, Slot: b.Slot, Name: b.Name}
}

// NewLit builds a scalar literal node.
func NewLit(v float64) *Node {
	return &Node{Op: OpLit, Dim: 1, Lit: v}
}

// NewZero builds a zero vector node of dimension d.
func NewZero(d int) *Node {
	return &Node{Op: OpZero, Dim: d, P0: d}
}

// IsZero reports whether the node is a known-zero constant.
func (n *Node) IsZero() bool {
	return n.Op == OpZero || (n.Op == OpLit && n.Lit == 0)
}

// IsOne reports whether the node is the scalar literal 1.
func (n *Node) IsOne() bool {
	return n.Op == OpLit && n.Lit == 1
}

// String renders the node back into formula syntax. The rendering is
// canonical (fully parenthesized infix), so it doubles as a cache key for
// compiled shaders.
func (n *Node) String() string {
	var sb strings.Builder
	n.render(&sb)
	return sb.String()
}

func (n *Node) render(sb *strings.Builder) {
	switch n.Op {
	case OpVar:
		sb.WriteString(n.Name)
	case OpLit:
		sb.WriteString(strconv.FormatFloat(n.Lit, 'g', -1, 64))
	case OpZero:
		fmt.Fprintf(sb, "Zero(%d)", n.P0)
	case OpAdd, OpSub, OpMul, OpDiv:
		sb.WriteByte('(')
		n.Children[0].render(sb)
		switch n.Op {
		case OpAdd:
			sb.WriteByte('+')
		case OpSub:
			sb.WriteByte('-')
		case OpMul:
			sb.WriteByte('*')
		case OpDiv:
			sb.WriteByte('/')
		}
		n.Children[1].render(sb)
		sb.WriteByte(')')
	default:
		sb.WriteString(n.Op.String())
		sb.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			c.render(sb)
		}
		info := namedOps[n.Op.String()]
		if info.intParams >= 1 {
			if len(n.Children) > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(n.P0))
		}
		if info.intParams >= 2 {
			fmt.Fprintf(sb, ",%d", n.P1)
		}
		sb.WriteByte(')')
	}
}

// Walk calls fn for every node in the subtree, children first.
func (n *Node) Walk(fn func(*Node)) {
	for _, c := range n.Children {
		c.Walk(fn)
	}
	fn(n)
}

// UsesSlot reports whether the subtree references the given argument slot.
func (n *Node) UsesSlot(slot int) bool {
	found := false
	n.Walk(func(m *Node) {
		if m.Op == OpVar && m.Slot == slot {
			found = true
		}
	})
	return found
}
