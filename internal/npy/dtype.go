package npy

import "math"

// DType is one of the numeric element kinds a frame may carry.
type DType uint8

const (
	Uint8 DType = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// descrTable maps header descr codes to element kinds. Single-byte kinds
// have no byte order, so both the "not applicable" and little-endian
// markers are accepted.
var descrTable = map[string]DType{
	"|u1": Uint8,
	"<u1": Uint8,
	"|i1": Int8,
	"<i1": Int8,
	"<u2": Uint16,
	"<i2": Int16,
	"<u4": Uint32,
	"<i4": Int32,
	"<f4": Float32,
	"<f8": Float64,
}

// LookupDescr resolves a descr code such as "<u2".
func LookupDescr(descr string) (DType, bool) {
	dt, ok := descrTable[descr]
	return dt, ok
}

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// Descr returns the canonical descr code written by Encode.
func (d DType) Descr() string {
	switch d {
	case Uint8:
		return "|u1"
	case Int8:
		return "|i1"
	case Uint16:
		return "<u2"
	case Int16:
		return "<i2"
	case Uint32:
		return "<u4"
	case Int32:
		return "<i4"
	case Float32:
		return "<f4"
	case Float64:
		return "<f8"
	}
	return ""
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return "invalid"
}

// IsFloat reports whether the kind is floating point.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Bounds returns the representable value range of the kind.
func (d DType) Bounds() (lo, hi float64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Int8:
		return math.MinInt8, math.MaxInt8
	case Uint16:
		return 0, math.MaxUint16
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Uint32:
		return 0, math.MaxUint32
	case Int32:
		return math.MinInt32, math.MaxInt32
	case Float32:
		return -math.MaxFloat32, math.MaxFloat32
	}
	return -math.MaxFloat64, math.MaxFloat64
}
