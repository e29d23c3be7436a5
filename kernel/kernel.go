// Copyright 2026 The symkern Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package kernel compiles symbolic formulas into reusable operators and
// evaluates them without materializing the full kernel matrix.
//
// Example:
//
//	op, err := kernel.Compile(
//		"Sum_Reduction(Exp(-s*SqNorm2(x-y))*b, 0)",
//		[]string{"x = Vi(3)", "y = Vj(3)", "b = Vj(6)", "s = Pm(1)"},
//		kernel.WithMode(kernel.ModeCPU),
//	)
//	out, err := op.Apply(x, y, b, s) // out is [M, 6]
package kernel

import (
	"fmt"

	"github.com/symkern-ml/symkern/internal/backend"
	"github.com/symkern-ml/symkern/internal/backend/cpu"
	"github.com/symkern-ml/symkern/internal/backend/webgpu"
	"github.com/symkern-ml/symkern/internal/diff"
	"github.com/symkern-ml/symkern/internal/engine"
	"github.com/symkern-ml/symkern/internal/formula"
	"github.com/symkern-ml/symkern/internal/parallel"
	"github.com/symkern-ml/symkern/internal/tensor"
)

// BackendUnavailableError reports that the requested backend cannot run on
// this system, e.g. ModeGPU without a WebGPU adapter.
type BackendUnavailableError = backend.UnavailableError

// Operator is a compiled formula bound to an execution backend. Operators
// are immutable and safe for concurrent Apply.
type Operator struct {
	f       *formula.Formula
	k       *engine.Kernel
	be      backend.Backend
	opts    options
	sumRows bool
}

// Compile parses the formula and declarations and binds the result to a
// backend chosen by the options.
func Compile(src string, decls []string, opts ...Option) (*Operator, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	f, err := formula.Parse(src, decls)
	if err != nil {
		return nil, err
	}
	k, err := engine.Compile(f)
	if err != nil {
		return nil, err
	}
	be, err := newBackend(o)
	if err != nil {
		return nil, err
	}
	return &Operator{f: f, k: k, be: be, opts: o}, nil
}

func newBackend(o options) (backend.Backend, error) {
	cfg := engine.Config{Parallel: parallel.WithWorkers(o.workers), TileJ: o.tileSize}

	switch o.mode {
	case ModeCPU:
		return cpu.New(cfg), nil
	case ModeGPU:
		if o.deviceID != 0 {
			return nil, &backend.UnavailableError{Backend: "WebGPU", Reason: fmt.Sprintf("no device with id %d", o.deviceID)}
		}
		return webgpu.New()
	case ModeAuto:
		if o.deviceID == 0 && webgpu.IsAvailable() {
			return webgpu.New()
		}
		return cpu.New(cfg), nil
	default:
		return nil, fmt.Errorf("kernel: unknown mode %d", o.mode)
	}
}

// Apply evaluates the operator over the given buffers, supplied in
// declaration order. It validates shapes, infers the axis lengths M and N
// from the buffers and returns a fresh output of shape [M, outDim] for
// axis 0 or [N, outDim] for axis 1. Arg reductions return Int32 indices.
func (op *Operator) Apply(args ...*tensor.RawTensor) (*tensor.RawTensor, error) {
	out, err := op.be.Reduce(op.k, args)
	if err != nil {
		return nil, err
	}
	if op.sumRows {
		return foldRows(out)
	}
	return out, nil
}

// Grad returns a compiled operator for the gradient of this operator with
// respect to the declared argument target. The new operator expects the
// original buffers plus one adjoint buffer, named adjoint and shaped like
// this operator's output. Gradients compose: calling Grad on the result
// yields second derivatives.
func (op *Operator) Grad(target, adjoint string) (*Operator, error) {
	g, sumRows, err := diff.Grad(op.f, target, adjoint)
	if err != nil {
		return nil, err
	}
	k, err := engine.Compile(g)
	if err != nil {
		return nil, err
	}
	// The backend is shared so gradient shaders land in the same cache.
	return &Operator{f: g, k: k, be: op.be, opts: op.opts, sumRows: sumRows}, nil
}

// String renders the operator's formula in grammar syntax.
func (op *Operator) String() string {
	return op.f.String()
}

// OutputDim returns the inner dimension of the output.
func (op *Operator) OutputDim() int {
	return op.f.OutputDim()
}

// NumArgs returns the number of buffers Apply expects.
func (op *Operator) NumArgs() int {
	return op.f.Args.Len()
}

// BackendName identifies the backend the operator is bound to.
func (op *Operator) BackendName() string {
	return op.be.Name()
}

// foldRows sums an [R, dim] buffer into a length-dim vector. Parameter
// gradients accumulate over both axes; the reduction covers one, this
// covers the other.
func foldRows(out *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := out.Shape()
	rows, dim := shape[0], shape[1]
	res, err := tensor.NewRaw(tensor.Shape{dim}, out.DType(), out.Device())
	if err != nil {
		return nil, err
	}
	switch out.DType() {
	case tensor.Float32:
		sumRowsInto(res.AsFloat32(), out.AsFloat32(), rows, dim)
	case tensor.Float64:
		sumRowsInto(res.AsFloat64(), out.AsFloat64(), rows, dim)
	default:
		return nil, fmt.Errorf("kernel: cannot fold rows of dtype %s", out.DType())
	}
	return res, nil
}

func sumRowsInto[T tensor.Float](dst, src []T, rows, dim int) {
	for r := 0; r < rows; r++ {
		for d := 0; d < dim; d++ {
			dst[d] += src[r*dim+d]
		}
	}
}
