package dtype

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Element is the set of Go types which may be stored in persistent arrays.
// Platform-dependent int, uint and uintptr are deliberately missing.
type Element interface {
	bool |
		int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64 |
		complex64 | complex128
}

// Ordered is the set of element types which may be sorted.
type Ordered interface {
	Element
	constraints.Ordered
}

// Of returns the descriptor of the Go type.
func Of[T Element]() DType {
	var v T
	switch any(v).(type) {
	case bool:
		return Bool8
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	case complex64:
		return Complex64
	default:
		return Complex128
	}
}

// Cast returns the typed view over raw bytes. Length of b must be a multiple of the element width.
func Cast[T Element](b []byte) []T {
	var v T
	width := int(unsafe.Sizeof(v))
	if len(b) < width {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/width)
}
