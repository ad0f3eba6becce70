// Package npy decodes and encodes frames in the NumPy .npy wire format.
//
// Only one- and two-dimensional little-endian arrays of the eight kinds in
// descrTable are accepted. The header dictionary is read with a structural
// parser; it is never evaluated.
package npy

import "fmt"

// Numeric is the set of element types an Array may hold.
type Numeric interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~float32 | ~float64
}

// Array is a decoded frame. Data holds one of []uint8, []int8, []uint16,
// []int16, []uint32, []int32, []float32 or []float64 matching DType, with
// len(Data) == product(Shape). Arrays are immutable once decoded.
type Array struct {
	Shape        []int
	FortranOrder bool
	DType        DType
	Data         interface{}
}

// Values returns the typed element slice of a.
func Values[T Numeric](a *Array) ([]T, bool) {
	v, ok := a.Data.([]T)
	return v, ok
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return product(a.Shape)
}

// Height is the number of rows; a one-dimensional array is a single row.
func (a *Array) Height() int {
	if len(a.Shape) == 2 {
		return a.Shape[0]
	}
	return 1
}

// Width is the number of columns.
func (a *Array) Width() int {
	if len(a.Shape) == 2 {
		return a.Shape[1]
	}
	if len(a.Shape) == 1 {
		return a.Shape[0]
	}
	return 0
}

// At returns element i of the flat data as float64.
func (a *Array) At(i int) float64 {
	switch d := a.Data.(type) {
	case []uint8:
		return float64(d[i])
	case []int8:
		return float64(d[i])
	case []uint16:
		return float64(d[i])
	case []int16:
		return float64(d[i])
	case []uint32:
		return float64(d[i])
	case []int32:
		return float64(d[i])
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	}
	panic(fmt.Sprintf("npy: unexpected data type %T", a.Data))
}

// RowMajor returns a with its data in row-major order. Column-major
// two-dimensional arrays are transposed into a new Array; anything else is
// returned as is.
func (a *Array) RowMajor() *Array {
	if !a.FortranOrder || len(a.Shape) != 2 {
		return a
	}
	rows, cols := a.Shape[0], a.Shape[1]
	out := &Array{
		Shape: []int{rows, cols},
		DType: a.DType,
	}
	switch d := a.Data.(type) {
	case []uint8:
		out.Data = transpose(d, rows, cols)
	case []int8:
		out.Data = transpose(d, rows, cols)
	case []uint16:
		out.Data = transpose(d, rows, cols)
	case []int16:
		out.Data = transpose(d, rows, cols)
	case []uint32:
		out.Data = transpose(d, rows, cols)
	case []int32:
		out.Data = transpose(d, rows, cols)
	case []float32:
		out.Data = transpose(d, rows, cols)
	case []float64:
		out.Data = transpose(d, rows, cols)
	}
	return out
}

// transpose converts column-major data of a rows x cols array to row-major.
func transpose[T Numeric](src []T, rows, cols int) []T {
	dst := make([]T, len(src))
	for c := 0; c < cols; c++ {
		col := src[c*rows : (c+1)*rows]
		for r, v := range col {
			dst[r*cols+c] = v
		}
	}
	return dst
}

func product(ints []int) int {
	p := 1
	for _, v := range ints {
		p *= v
	}
	return p
}
