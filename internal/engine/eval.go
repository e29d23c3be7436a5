package engine

import (
	"fmt"
	"math"

	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// evalPoint runs the program for one (i, j) pair. vars[slot] must hold the
// argument row currently selected for each slot; scratch must have
// p.ScratchSize elements and is owned by a single worker.
func evalPoint[T tensor.Float](p *Program, scratch []T, vars [][]T) []T {
	for k := range p.Instrs {
		in := &p.Instrs[k]
		dst := reg(p, scratch, in.Dst, in.Dim)

		switch in.Op {
		case formula.OpVar:
			copy(dst, vars[in.Slot])

		case formula.OpLit:
			dst[0] = T(in.Lit)

		case formula.OpZero:
			for i := range dst {
				dst[i] = 0
			}

		case formula.OpAdd:
			a := reg(p, scratch, in.A, in.ADim)
			b := reg(p, scratch, in.B, in.BDim)
			binaryOp(dst, a, b, func(x, y T) T { return x + y })

		case formula.OpSub:
			a := reg(p, scratch, in.A, in.ADim)
			b := reg(p, scratch, in.B, in.BDim)
			binaryOp(dst, a, b, func(x, y T) T { return x - y })

		case formula.OpMul:
			a := reg(p, scratch, in.A, in.ADim)
			b := reg(p, scratch, in.B, in.BDim)
			binaryOp(dst, a, b, func(x, y T) T { return x * y })

		case formula.OpDiv:
			a := reg(p, scratch, in.A, in.ADim)
			b := reg(p, scratch, in.B, in.BDim)
			binaryOp(dst, a, b, func(x, y T) T { return x / y })

		case formula.OpMinus:
			a := reg(p, scratch, in.A, in.ADim)
			for i := range dst {
				dst[i] = -a[i]
			}

		case formula.OpExp:
			unaryMath(dst, reg(p, scratch, in.A, in.ADim), math.Exp)
		case formula.OpLog:
			unaryMath(dst, reg(p, scratch, in.A, in.ADim), math.Log)
		case formula.OpSin:
			unaryMath(dst, reg(p, scratch, in.A, in.ADim), math.Sin)
		case formula.OpCos:
			unaryMath(dst, reg(p, scratch, in.A, in.ADim), math.Cos)
		case formula.OpSqrt:
			unaryMath(dst, reg(p, scratch, in.A, in.ADim), math.Sqrt)

		case formula.OpSquare:
			a := reg(p, scratch, in.A, in.ADim)
			for i := range dst {
				dst[i] = a[i] * a[i]
			}

		case formula.OpAbs:
			a := reg(p, scratch, in.A, in.ADim)
			for i := range dst {
				if a[i] < 0 {
					dst[i] = -a[i]
				} else {
					dst[i] = a[i]
				}
			}

		case formula.OpSign:
			a := reg(p, scratch, in.A, in.ADim)
			for i := range dst {
				switch {
				case a[i] > 0:
					dst[i] = 1
				case a[i] < 0:
					dst[i] = -1
				default:
					dst[i] = 0
				}
			}

		case formula.OpPow:
			a := reg(p, scratch, in.A, in.ADim)
			e := float64(in.P0)
			for i := range dst {
				dst[i] = T(math.Pow(float64(a[i]), e))
			}

		case formula.OpSum:
			a := reg(p, scratch, in.A, in.ADim)
			var s T
			for _, v := range a {
				s += v
			}
			dst[0] = s

		case formula.OpSumT:
			a := reg(p, scratch, in.A, in.ADim)
			for i := range dst {
				dst[i] = a[0]
			}

		case formula.OpSqNorm2:
			a := reg(p, scratch, in.A, in.ADim)
			var s T
			for _, v := range a {
				s += v * v
			}
			dst[0] = s

		case formula.OpNorm2:
			a := reg(p, scratch, in.A, in.ADim)
			var s T
			for _, v := range a {
				s += v * v
			}
			dst[0] = T(math.Sqrt(float64(s)))

		case formula.OpScalprod:
			a := reg(p, scratch, in.A, in.ADim)
			b := reg(p, scratch, in.B, in.BDim)
			var s T
			for i := range a {
				s += a[i] * b[i]
			}
			dst[0] = s

		case formula.OpConcat:
			a := reg(p, scratch, in.A, in.ADim)
			b := reg(p, scratch, in.B, in.BDim)
			copy(dst, a)
			copy(dst[in.ADim:], b)

		case formula.OpExtract:
			a := reg(p, scratch, in.A, in.ADim)
			copy(dst, a[in.P0:in.P0+in.P1])

		case formula.OpExtractT:
			a := reg(p, scratch, in.A, in.ADim)
			for i := range dst {
				dst[i] = 0
			}
			copy(dst[in.P0:], a)

		default:
			panic(fmt.Sprintf("engine: unknown instruction %s", in.Op))
		}
	}
	return reg(p, scratch, p.OutReg, p.OutDim)
}

// binaryOp applies f elementwise with dim-1 broadcast on either operand.
func binaryOp[T tensor.Float](dst, a, b []T, f func(x, y T) T) {
	switch {
	case len(a) == len(b):
		for i := range dst {
			dst[i] = f(a[i], b[i])
		}
	case len(a) == 1:
		for i := range dst {
			dst[i] = f(a[0], b[i])
		}
	default: // len(b) == 1
		for i := range dst {
			dst[i] = f(a[i], b[0])
		}
	}
}

func unaryMath[T tensor.Float](dst, a []T, f func(float64) float64) {
	for i := range dst {
		dst[i] = T(f(float64(a[i])))
	}
}
