package formula

import "fmt"

// Op identifies the kind of an AST node. The set is fixed: parser, dimension
// inference, differentiation rules and backend lowering are all keyed by it.
type Op int

// Node kinds.
const (
	OpVar Op = iota // reference to a declared argument
	OpLit           // numeric literal, dim 1
	OpZero          // zero vector of dimension P0

	// Elementwise binary arithmetic. A dim-1 operand broadcasts against a
	// dim-d operand.
	OpAdd
	OpSub
	OpMul
	OpDiv

	// Elementwise unary math.
	OpMinus
	OpExp
	OpLog
	OpSin
	OpCos
	OpSqrt
	OpSquare
	OpAbs
	OpSign

	OpPow // Pow(u, n): integer power, P0 = n

	// Coordinate-collapsing operators.
	OpSum      // sum of coordinates, dim 1
	OpSqNorm2  // squared euclidean norm, dim 1
	OpNorm2    // euclidean norm, dim 1
	OpScalprod // inner product of two same-dim children, dim 1

	// Shape surgery.
	OpSumT     // SumT(u, d): broadcast a dim-1 value to dim d (adjoint of Sum)
	OpConcat   // concatenation, dims add
	OpExtract  // Extract(u, start, dim): coordinates [start, start+dim)
	OpExtractT // ExtractT(u, start, dim): embed u at offset start into dim-d zeros
)

// opInfo describes the surface syntax of a named operator: how many
// expression children and how many trailing integer parameters it takes.
type opInfo struct {
	op        Op
	arity     int
	intParams int
}

// namedOps maps operator names in the formula grammar to their node kind.
// Infix arithmetic and literals are handled directly by the parser.
var namedOps = map[string]opInfo{
	"Minus":    {OpMinus, 1, 0},
	"Exp":      {OpExp, 1, 0},
	"Log":      {OpLog, 1, 0},
	"Sin":      {OpSin, 1, 0},
	"Cos":      {OpCos, 1, 0},
	"Sqrt":     {OpSqrt, 1, 0},
	"Square":   {OpSquare, 1, 0},
	"Abs":      {OpAbs, 1, 0},
	"Sign":     {OpSign, 1, 0},
	"Pow":      {OpPow, 1, 1},
	"Sum":      {OpSum, 1, 0},
	"SumT":     {OpSumT, 1, 1},
	"SqNorm2":  {OpSqNorm2, 1, 0},
	"Norm2":    {OpNorm2, 1, 0},
	"Scalprod": {OpScalprod, 2, 0},
	"Concat":   {OpConcat, 2, 0},
	"Extract":  {OpExtract, 1, 2},
	"ExtractT": {OpExtractT, 1, 2},
	"Zero":     {OpZero, 0, 1},
}

// String returns the operator's name in the formula grammar.
func (op Op) String() string {
	switch op {
	case OpVar:
		return "Var"
	case OpLit:
		return "Lit"
	case OpAdd:
		return "Add"
	case OpSub:
		return "Sub"
	case OpMul:
		return "Mul"
	case OpDiv:
		return "Div"
	}
	for name, info := range namedOps {
		if info.op == op {
			return name
		}
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// inferDim computes a node's inner dimension from its children, enforcing
// the per-operator dimension rules. Returns a DimensionMismatchError when
// children are incompatible.
func inferDim(op Op, children []*Node, p0, p1 int) (int, error) {
	childDim := func(i int) int { return children[i].Dim }

	switch op {
	case OpLit:
		return 1, nil
	case OpZero:
		if p0 <= 0 {
			return 0, &DimensionMismatchError{Op: op.String(), Expected: 1, Actual: p0, Msg: "dimension parameter must be positive"}
		}
		return p0, nil

	case OpAdd, OpSub, OpMul, OpDiv:
		a, b := childDim(0), childDim(1)
		switch {
		case a == b:
			return a, nil
		case a == 1:
			return b, nil
		case b == 1:
			return a, nil
		default:
			return 0, &DimensionMismatchError{Op: op.String(), Expected: a, Actual: b, Msg: "elementwise operands must have equal dimensions (or one scalar)"}
		}

	case OpMinus, OpExp, OpLog, OpSin, OpCos, OpSqrt, OpSquare, OpAbs, OpSign, OpPow:
		return childDim(0), nil

	case OpSum, OpSqNorm2, OpNorm2:
		return 1, nil

	case OpScalprod:
		if childDim(0) != childDim(1) {
			return 0, &DimensionMismatchError{Op: op.String(), Expected: childDim(0), Actual: childDim(1), Msg: "inner product operands must have equal dimensions"}
		}
		return 1, nil

	case OpSumT:
		if childDim(0) != 1 {
			return 0, &DimensionMismatchError{Op: op.String(), Expected: 1, Actual: childDim(0), Msg: "SumT input must be scalar"}
		}
		if p0 <= 0 {
			return 0, &DimensionMismatchError{Op: op.String(), Expected: 1, Actual: p0, Msg: "dimension parameter must be positive"}
		}
		return p0, nil

	case OpConcat:
		return childDim(0) + childDim(1), nil

	case OpExtract:
		d := childDim(0)
		if p0 < 0 || p1 <= 0 || p0+p1 > d {
			return 0, &DimensionMismatchError{Op: op.String(), Expected: d, Actual: p0 + p1, Msg: "extracted range out of bounds"}
		}
		return p1, nil

	case OpExtractT:
		d := childDim(0)
		if p0 < 0 || p1 <= 0 || p0+d > p1 {
			return 0, &DimensionMismatchError{Op: op.String(), Expected: p1, Actual: p0 + d, Msg: "embedded range out of bounds"}
		}
		return p1, nil
	}

	return 0, fmt.Errorf("inferDim: unknown operator %s", op)
}
