// Package histogram computes sampled intensity histograms of decoded frames.
package histogram

import (
	"errors"
	"math"
)

// DefaultStrideDivisor controls how aggressively large frames are
// subsampled: stride = ceil(max(1, sqrt(n)/divisor)).
const DefaultStrideDivisor = 200

// MaxBins caps the bin count; larger hints are clamped.
const MaxBins = 1 << 16

// ErrEmptyInput is returned when there is no finite value to bin.
var ErrEmptyInput = errors.New("histogram: empty input")

// Values is a flat numeric sequence. *npy.Array satisfies it.
type Values interface {
	Len() int
	At(i int) float64
}

// Float64s adapts a plain slice to Values.
type Float64s []float64

func (f Float64s) Len() int         { return len(f) }
func (f Float64s) At(i int) float64 { return f[i] }

// Histogram is an immutable result of Engine.Compute.
type Histogram struct {
	Counts  []uint64  `json:"counts"`
	Centers []float64 `json:"centers"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	BinSize float64   `json:"bin_size"`
	// Stride is the sampling step used for the binning pass.
	Stride int `json:"stride"`
	// Sampled counts the finite values visited under Stride; it equals
	// the sum of Counts.
	Sampled uint64 `json:"sampled"`
}

// Engine computes histograms. The zero value uses DefaultStrideDivisor.
type Engine struct {
	StrideDivisor float64
	// DefaultBins is used when Compute gets no bin hint; zero means
	// floor(sqrt(n)).
	DefaultBins int
}

// Stride returns the sampling step for n elements.
func (e Engine) Stride(n int) int {
	div := e.StrideDivisor
	if div <= 0 {
		div = DefaultStrideDivisor
	}
	return int(math.Ceil(math.Max(1, math.Sqrt(float64(n))/div)))
}

// Compute bins values. bins <= 0 selects the engine default. NaN and
// infinite values are dropped from both the range and the counts.
func (e Engine) Compute(values Values, bins int) (*Histogram, error) {
	n := values.Len()
	if n == 0 {
		return nil, ErrEmptyInput
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		v := values.At(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return nil, ErrEmptyInput
	}

	if bins <= 0 {
		bins = e.DefaultBins
	}
	if bins <= 0 {
		bins = int(math.Sqrt(float64(n)))
	}
	if bins > MaxBins {
		bins = MaxBins
	}
	if bins < 1 || hi == lo {
		bins = 1
	}

	h := &Histogram{
		Counts:  make([]uint64, bins),
		Centers: make([]float64, bins),
		Min:     lo,
		Max:     hi,
		BinSize: (hi - lo) / float64(bins),
		Stride:  e.Stride(n),
	}

	for i := 0; i < n; i += h.Stride {
		v := values.At(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		h.Counts[h.binOf(v)]++
		h.Sampled++
	}
	for i := range h.Centers {
		h.Centers[i] = lo + h.BinSize*(float64(i)+0.5)
	}
	return h, nil
}

func (h *Histogram) binOf(v float64) int {
	if h.BinSize == 0 {
		return 0
	}
	idx := int(math.Floor((v - h.Min) / h.BinSize))
	if idx < 0 {
		return 0
	}
	if idx >= len(h.Counts) {
		return len(h.Counts) - 1
	}
	return idx
}

// DefaultWindow is the colour window covering the whole data range.
func (h *Histogram) DefaultWindow() (low, high float64) {
	return h.Min, h.Max
}

// WindowFromBrush converts a vertical selection [y0, y1] in pixels on a
// histogram axis of the given height into a colour window. The axis runs
// linearly from the lowest bin centre at the bottom (y = axisHeight) to Max
// at the top (y = 0).
func (h *Histogram) WindowFromBrush(y0, y1, axisHeight float64) (low, high float64) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	bottom := h.Min
	if len(h.Centers) > 0 {
		bottom = h.Centers[0]
	}
	invert := func(y float64) float64 {
		if axisHeight <= 0 {
			return bottom
		}
		return bottom + (axisHeight-y)/axisHeight*(h.Max-bottom)
	}
	return invert(y1), invert(y0)
}
