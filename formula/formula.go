// Copyright 2026 The symkern Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package formula provides the public API for parsing symbolic formulas
// and their argument declarations.
//
// A formula is a reduction over an expression, e.g.
//
//	Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)
//
// with arguments declared separately:
//
//	x = Vi(3)   // row-indexed, inner dimension 3
//	y = Vj(3)   // column-indexed
//	b = Vj(6)
//	s = Pm(1)   // parameter
//
// Axis 0 reduces over the column index j (one output row per i); axis 1
// reduces over i. All grammar, binding and dimension errors are reported
// at parse time.
package formula

import (
	"github.com/symkern-ml/symkern/internal/formula"
)

// Formula is a parsed formula: reduction, expression tree and bindings.
type Formula = formula.Formula

// Node is one expression-tree node.
type Node = formula.Node

// ArgTable holds argument declarations in slot order.
type ArgTable = formula.ArgTable

// Binding is one declared argument.
type Binding = formula.Binding

// Category classifies an argument by the data axis it varies over.
type Category = formula.Category

// Argument categories.
const (
	Vi Category = formula.Vi
	Vj Category = formula.Vj
	Pm Category = formula.Pm
)

// ReductionKind selects how formula values are folded along the reduced axis.
type ReductionKind = formula.ReductionKind

// Reduction kinds.
const (
	SumReduction       ReductionKind = formula.SumReduction
	MinReduction       ReductionKind = formula.MinReduction
	MaxReduction       ReductionKind = formula.MaxReduction
	ArgMinReduction    ReductionKind = formula.ArgMinReduction
	ArgMaxReduction    ReductionKind = formula.ArgMaxReduction
	LogSumExpReduction ReductionKind = formula.LogSumExpReduction
)

// Error types raised at parse time.
type (
	// ParseError reports a grammar error with its byte position.
	ParseError = formula.ParseError
	// BindingError reports an undeclared, duplicate or malformed argument.
	BindingError = formula.BindingError
	// DimensionMismatchError reports incompatible operand dimensions.
	DimensionMismatchError = formula.DimensionMismatchError
	// UnsupportedOperatorError reports an operator outside a transform's scope.
	UnsupportedOperatorError = formula.UnsupportedOperatorError
)

// Parse parses a formula string together with its argument declarations.
func Parse(src string, decls []string) (*Formula, error) {
	return formula.Parse(src, decls)
}

// ParseArgs builds an argument table from declarations like "x = Vi(3)".
func ParseArgs(decls []string) (*ArgTable, error) {
	return formula.ParseArgs(decls)
}
