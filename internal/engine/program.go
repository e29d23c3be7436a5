// Package engine lowers formula ASTs to flat register programs and
// evaluates reductions over them in fixed-size tiles, never materializing
// the full M×N matrix of formula values.
package engine

import (
	"github.com/symkern-ml/symkern/internal/formula"
)

// Instr is one step of a lowered formula: apply Op to the A (and B)
// registers and write Dim values into the Dst register.
type Instr struct {
	Op         formula.Op
	Dst, A, B  int
	Dim        int // output dimension of this instruction
	ADim, BDim int // operand dimensions (broadcast when 1)
	Lit        float64
	Slot       int // OpVar: argument slot to load
	P0, P1     int // integer operator parameters
}

// Program is a compiled formula body: a postorder instruction list over a
// scratch buffer of registers. Programs are immutable and safe to evaluate
// concurrently with separate scratch buffers.
type Program struct {
	Instrs      []Instr
	RegOffset   []int // scratch offset per register
	ScratchSize int
	OutReg      int
	OutDim      int
}

// CompileNode lowers an AST into a Program. Nodes shared between subtrees
// (derivative trees reuse forward nodes) are lowered once.
func CompileNode(root *formula.Node) *Program {
	c := &compiler{regOf: make(map[*formula.Node]int)}
	out := c.lower(root)
	return &Program{
		Instrs:      c.instrs,
		RegOffset:   c.offsets,
		ScratchSize: c.size,
		OutReg:      out,
		OutDim:      root.Dim,
	}
}

type compiler struct {
	instrs  []Instr
	offsets []int
	size    int
	regOf   map[*formula.Node]int
}

func (c *compiler) newReg(dim int) int {
	reg := len(c.offsets)
	c.offsets = append(c.offsets, c.size)
	c.size += dim
	return reg
}

func (c *compiler) lower(n *formula.Node) int {
	if reg, done := c.regOf[n]; done {
		return reg
	}

	var a, b int
	aDim, bDim := 0, 0
	if len(n.Children) > 0 {
		a = c.lower(n.Children[0])
		aDim = n.Children[0].Dim
	}
	if len(n.Children) > 1 {
		b = c.lower(n.Children[1])
		bDim = n.Children[1].Dim
	}

	dst := c.newReg(n.Dim)
	c.instrs = append(c.instrs, Instr{
		Op:   n.Op,
		Dst:  dst,
		A:    a,
		B:    b,
		Dim:  n.Dim,
		ADim: aDim,
		BDim: bDim,
		Lit:  n.Lit,
		Slot: n.Slot,
		P0:   n.P0,
		P1:   n.P1,
	})
	c.regOf[n] = dst
	return dst
}

// reg returns the scratch slice backing a register.
func reg[T any](p *Program, scratch []T, r, dim int) []T {
	off := p.RegOffset[r]
	return scratch[off : off+dim]
}
