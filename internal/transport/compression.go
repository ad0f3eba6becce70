package transport

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression is the container format wrapped around a frame payload.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionXZ
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionXZ:
		return "xz"
	default:
		return "none"
	}
}

// MaxFrameBytes caps a decompressed payload.
const MaxFrameBytes = 1 << 30

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}
)

// Detect sniffs the compression of data from its leading bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, xzMagic):
		return CompressionXZ
	case bytes.HasPrefix(data, gzipMagic):
		return CompressionGzip
	}
	return CompressionNone
}

var (
	zstdOnce sync.Once
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// sharedZstd returns a process-wide decoder; DecodeAll is safe for
// concurrent use.
func sharedZstd() (*zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxFrameBytes))
	})
	return zstdDec, zstdErr
}

// Decompress unwraps data if it carries a known compression header and
// returns it unchanged otherwise.
func Decompress(data []byte) ([]byte, Compression, error) {
	kind := Detect(data)
	var r io.Reader
	switch kind {
	case CompressionNone:
		return data, kind, nil
	case CompressionZstd:
		dec, err := sharedZstd()
		if err != nil {
			return nil, kind, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, kind, fmt.Errorf("zstd decode: %w", err)
		}
		return out, kind, nil
	case CompressionXZ:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, kind, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xr
	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, kind, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gr.Close()
		r = gr
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, MaxFrameBytes+1))
	if err != nil {
		return nil, kind, fmt.Errorf("%s decode: %w", kind, err)
	}
	if n > MaxFrameBytes {
		return nil, kind, fmt.Errorf("%s payload exceeds %d bytes", kind, MaxFrameBytes)
	}
	return buf.Bytes(), kind, nil
}

// Compress wraps data in the given format. Used by tests and clients that
// upload compressed frames.
func Compress(data []byte, kind Compression) ([]byte, error) {
	var buf bytes.Buffer
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := enc.Write(data); err != nil {
			enc.Close()
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	case CompressionXZ:
		w, err := xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported compression %v", kind)
	}
	return buf.Bytes(), nil
}
