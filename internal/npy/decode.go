package npy

import (
	"bytes"
	"encoding/binary"
	"math"
)

var magic = []byte("\x93NUMPY")

const (
	preambleV1 = 10 // magic(6) + version(2) + header_len(2)
	preambleV2 = 12 // magic(6) + version(2) + header_len(4)
)

// Decode parses a complete .npy buffer. The returned Array owns its data;
// buf may be reused afterwards.
func Decode(buf []byte) (*Array, error) {
	if len(buf) < preambleV1 || !bytes.Equal(buf[:len(magic)], magic) {
		return nil, parseErrorf(BadMagic, "missing \\x93NUMPY prefix")
	}

	major := buf[6]
	var headerLen, offset int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(buf[8:10]))
		offset = preambleV1
	case 2, 3:
		if len(buf) < preambleV2 {
			return nil, parseErrorf(MalformedHeader, "truncated preamble")
		}
		headerLen = int(binary.LittleEndian.Uint32(buf[8:12]))
		offset = preambleV2
	default:
		return nil, parseErrorf(BadMagic, "unsupported format version %d.%d", major, buf[7])
	}
	if headerLen < 0 || offset+headerLen > len(buf) {
		return nil, parseErrorf(MalformedHeader, "header length %d exceeds buffer", headerLen)
	}

	h, err := parseHeader(string(buf[offset : offset+headerLen]))
	if err != nil {
		return nil, err
	}

	dt, ok := LookupDescr(h.Descr)
	if !ok {
		return nil, parseErrorf(UnsupportedDType, "%q", h.Descr)
	}
	if len(h.Shape) < 1 || len(h.Shape) > 2 {
		return nil, parseErrorf(UnsupportedShape, "rank %d", len(h.Shape))
	}
	for _, d := range h.Shape {
		if d < 0 {
			return nil, parseErrorf(UnsupportedShape, "negative dimension %d", d)
		}
	}

	body := buf[offset+headerLen:]
	n, ok := elementCount(h.Shape, len(body)/dt.Size())
	if !ok {
		return nil, parseErrorf(SizeMismatch, "shape %v of %s exceeds %d bytes", h.Shape, dt, len(body))
	}
	if n*dt.Size() != len(body) {
		return nil, parseErrorf(SizeMismatch, "shape %v of %s needs %d bytes, have %d", h.Shape, dt, n*dt.Size(), len(body))
	}

	shape := make([]int, len(h.Shape))
	copy(shape, h.Shape)
	return &Array{
		Shape:        shape,
		FortranOrder: h.FortranOrder,
		DType:        dt,
		Data:         decodeData(dt, body, n),
	}, nil
}

// elementCount multiplies the dimensions of shape, reporting false as soon
// as the product exceeds limit.
func elementCount(shape []int, limit int) (int, bool) {
	for _, d := range shape {
		if d == 0 {
			return 0, true
		}
	}
	n := 1
	for _, d := range shape {
		if n > limit/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func decodeData(dt DType, body []byte, n int) interface{} {
	le := binary.LittleEndian
	switch dt {
	case Uint8:
		out := make([]uint8, n)
		copy(out, body)
		return out
	case Int8:
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(body[i])
		}
		return out
	case Uint16:
		out := make([]uint16, n)
		for i := range out {
			out[i] = le.Uint16(body[i*2:])
		}
		return out
	case Int16:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(le.Uint16(body[i*2:]))
		}
		return out
	case Uint32:
		out := make([]uint32, n)
		for i := range out {
			out[i] = le.Uint32(body[i*4:])
		}
		return out
	case Int32:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(le.Uint32(body[i*4:]))
		}
		return out
	case Float32:
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(body[i*4:]))
		}
		return out
	case Float64:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(le.Uint64(body[i*8:]))
		}
		return out
	}
	return nil
}
