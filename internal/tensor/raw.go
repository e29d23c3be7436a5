package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents the compute device a buffer is evaluated on.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// RawTensor is the low-level buffer representation used for operator
// arguments and outputs. Data is dense row-major host memory; the GPU
// backend uploads and reads back per invocation.
type RawTensor struct {
	data   []byte
	shape  Shape
	dtype  DataType
	device Device
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromSlice creates a RawTensor holding a copy of the given data.
func FromSlice[T Float](data []T, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	var dummy T
	r, err := NewRaw(shape, inferDataType(dummy), CPU)
	if err != nil {
		return nil, err
	}
	copy(unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), len(data)), data)
	return r, nil
}

// Shape returns the buffer's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the buffer's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the buffer's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the buffer's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("buffer dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the buffer's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("buffer dtype is %s, not float64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the buffer's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("buffer dtype is %s, not int32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsSlice returns the data as a typed slice for the generic element type T.
// Panics if T does not match the buffer's dtype.
func AsSlice[T Float](r *RawTensor) []T {
	var dummy T
	if inferDataType(dummy) != r.dtype {
		panic(fmt.Sprintf("buffer dtype is %s, requested %T", r.dtype, dummy))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*T)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Clone creates a deep copy of the RawTensor.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{
		data:   data,
		shape:  r.shape.Clone(),
		dtype:  r.dtype,
		device: r.device,
	}
}

// String returns a human-readable representation of the buffer.
func (r *RawTensor) String() string {
	return fmt.Sprintf("Tensor[%s]%v on %s", r.dtype, r.shape, r.device)
}
