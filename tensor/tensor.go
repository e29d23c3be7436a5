// Copyright 2026 The symkern Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public buffer types used as operator
// arguments and outputs.
//
// Buffers are dense row-major host memory. A row-indexed argument of inner
// dimension d is an [M, d] buffer, a column-indexed one [N, d], and a
// parameter a length-d vector.
//
// Example:
//
//	x, _ := tensor.FromSlice(data, tensor.Shape{100, 3})
package tensor

import (
	"github.com/symkern-ml/symkern/internal/tensor"
)

// Float is the constraint for supported floating-point element types.
type Float = tensor.Float

// DataType represents the underlying data type of a buffer.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
)

// Device represents the device a buffer is evaluated on.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a buffer.
type Shape = tensor.Shape

// RawTensor is a dense row-major data buffer.
type RawTensor = tensor.RawTensor

// NewRaw creates a zero-initialized buffer with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a buffer holding a copy of the given data.
func FromSlice[T Float](data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// AsSlice returns the buffer's data as a typed slice without copying.
// Panics if T does not match the buffer's dtype.
func AsSlice[T Float](r *RawTensor) []T {
	return tensor.AsSlice[T](r)
}
