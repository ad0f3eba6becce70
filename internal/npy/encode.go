package npy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const headerAlign = 64

// Encode writes data as a version 1.0 .npy buffer. data must be one of the
// slice types listed on Array and hold exactly product(shape) elements.
func Encode(shape []int, fortranOrder bool, data interface{}) ([]byte, error) {
	dt, n, err := dataKind(data)
	if err != nil {
		return nil, err
	}
	if len(shape) < 1 || len(shape) > 2 {
		return nil, fmt.Errorf("npy: encode: rank %d not supported", len(shape))
	}
	if product(shape) != n {
		return nil, fmt.Errorf("npy: encode: shape %v holds %d elements, data has %d", shape, product(shape), n)
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': %s, }",
		dt.Descr(), pyBool(fortranOrder), pyTuple(shape))
	// Pad with spaces so the data starts on an aligned offset, ending in '\n'.
	total := preambleV1 + len(dict) + 1
	pad := (headerAlign - total%headerAlign) % headerAlign
	hdr := dict + strings.Repeat(" ", pad) + "\n"
	if len(hdr) > math.MaxUint16 {
		return nil, fmt.Errorf("npy: encode: header too long (%d bytes)", len(hdr))
	}

	var buf bytes.Buffer
	buf.Grow(preambleV1 + len(hdr) + n*dt.Size())
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	var hl [2]byte
	binary.LittleEndian.PutUint16(hl[:], uint16(len(hdr)))
	buf.Write(hl[:])
	buf.WriteString(hdr)
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("npy: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func dataKind(data interface{}) (DType, int, error) {
	switch d := data.(type) {
	case []uint8:
		return Uint8, len(d), nil
	case []int8:
		return Int8, len(d), nil
	case []uint16:
		return Uint16, len(d), nil
	case []int16:
		return Int16, len(d), nil
	case []uint32:
		return Uint32, len(d), nil
	case []int32:
		return Int32, len(d), nil
	case []float32:
		return Float32, len(d), nil
	case []float64:
		return Float64, len(d), nil
	}
	return 0, 0, fmt.Errorf("npy: encode: unsupported data type %T", data)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func pyTuple(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	if len(parts) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
