// Package tensor provides the flat data buffers exchanged with compiled
// operators: argument matrices, parameter vectors and reduction outputs.
package tensor

// Float is the constraint for floating-point element types supported by the
// reduction engine.
type Float interface {
	~float32 | ~float64
}

// DataType represents runtime type information for buffers.
type DataType int

// Supported data types. Int32 is used for arg-min/arg-max index outputs.
const (
	Float32 DataType = iota
	Float64
	Int32
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	default:
		return "unknown"
	}
}

// inferDataType infers DataType from a generic element type T.
func inferDataType[T Float](dummy T) DataType {
	switch any(dummy).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	default:
		panic("unsupported type")
	}
}
