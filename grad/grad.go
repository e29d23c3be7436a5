// Copyright 2026 The symkern Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package grad differentiates formulas symbolically. The result is itself a
// formula over the original arguments plus a fresh adjoint variable, so it
// can be compiled, evaluated and differentiated again for higher orders.
package grad

import (
	"github.com/symkern-ml/symkern/internal/diff"
	"github.com/symkern-ml/symkern/internal/formula"
)

// Of builds the reverse-mode gradient of f with respect to the declared
// argument target. The adjoint argument is appended to the declarations,
// indexed by f's output axis with f's output dimension.
//
// For row- and column-indexed targets the gradient formula reduces over the
// opposite axis and yields one gradient row per target row. For parameter
// targets sumRows is true: the caller must additionally sum the returned
// rows, since a parameter's gradient accumulates over both axes.
//
// Only Sum_Reduction formulas can be differentiated; other reductions
// return an UnsupportedOperatorError.
func Of(f *formula.Formula, target, adjoint string) (g *formula.Formula, sumRows bool, err error) {
	return diff.Grad(f, target, adjoint)
}
