// Package lut builds colour lookup tables that map frame intensities to RGB.
package lut

import (
	"errors"
	"fmt"
	"math"

	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/pkg/colormap"
)

const (
	// MaxEntries bounds an exact integer table.
	MaxEntries = 1 << 16
	// FloatEntries is the table size used when intensities are quantised.
	FloatEntries = 4096
)

// ErrInvalidWindow is returned for windows with Low > High or NaN bounds.
var ErrInvalidWindow = errors.New("lut: invalid window")

// Window is the intensity range stretched over the full palette.
type Window struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Validate reports ErrInvalidWindow for unusable bounds.
func (w Window) Validate() error {
	if math.IsNaN(w.Low) || math.IsNaN(w.High) || math.IsInf(w.Low, 0) || math.IsInf(w.High, 0) {
		return fmt.Errorf("%w: non-finite bound [%v, %v]", ErrInvalidWindow, w.Low, w.High)
	}
	if w.Low > w.High {
		return fmt.Errorf("%w: low %v > high %v", ErrInvalidWindow, w.Low, w.High)
	}
	return nil
}

// Position returns the palette coordinate of intensity x in [0, 1].
func (w Window) Position(x float64) float64 {
	if w.High == w.Low {
		if x <= w.Low {
			return 0
		}
		return 1
	}
	t := (x - w.Low) / (w.High - w.Low)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Domain describes which intensities a table covers. Entry i stands for
// intensity Base + i/Scale; an intensity v lands on floor((v-Base)*Scale).
type Domain struct {
	Base  float64 `json:"base"`
	Scale float64 `json:"scale"`
	Size  int     `json:"size"`
}

// DomainFor picks the table domain for a frame of the given kind whose
// finite values span [min, max]. Narrow integer kinds always get their full
// range so that the table survives frame changes.
func DomainFor(dt npy.DType, min, max float64) Domain {
	switch dt {
	case npy.Uint8, npy.Int8, npy.Uint16, npy.Int16:
		lo, hi := dt.Bounds()
		return Domain{Base: lo, Scale: 1, Size: int(hi-lo) + 1}
	}

	lo, hi := math.Floor(min), math.Ceil(max)
	if !dt.IsFloat() && hi-lo+1 <= MaxEntries {
		return Domain{Base: lo, Scale: 1, Size: int(hi-lo) + 1}
	}
	if dt.IsFloat() {
		lo, hi = min, max
	}
	if hi <= lo {
		return Domain{Base: lo, Scale: 1, Size: 1}
	}
	return Domain{Base: lo, Scale: float64(FloatEntries-1) / (hi - lo), Size: FloatEntries}
}

// Index returns the clamped table index for intensity v. NaN maps to 0.
func (d Domain) Index(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	f := math.Floor((v - d.Base) * d.Scale)
	if f <= 0 {
		return 0
	}
	if f >= float64(d.Size-1) {
		return d.Size - 1
	}
	return int(f)
}

// Intensity returns the intensity entry i stands for.
func (d Domain) Intensity(i int) float64 {
	return d.Base + float64(i)/d.Scale
}

// LookupTable holds one RGB triple per domain entry, packed as
// R,G,B bytes at offset 3*i.
type LookupTable struct {
	Domain
	Window   Window
	Colormap string
	Entries  []uint8
}

// Build evaluates cm once per entry of d under window w.
func Build(d Domain, w Window, cm colormap.Colormap) (*LookupTable, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if d.Size <= 0 || d.Scale <= 0 {
		return nil, fmt.Errorf("lut: empty domain %+v", d)
	}

	t := &LookupTable{
		Domain:   d,
		Window:   w,
		Colormap: cm.Name(),
		Entries:  make([]uint8, 3*d.Size),
	}
	for i := 0; i < d.Size; i++ {
		c := colormap.RGB(cm, w.Position(d.Intensity(i)))
		copy(t.Entries[3*i:3*i+3], c[:])
	}
	return t, nil
}

// Len returns the number of entries; a nil table has none.
func (t *LookupTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Entries) / 3
}

// Entry returns the colour stored at index i.
func (t *LookupTable) Entry(i int) [3]uint8 {
	return [3]uint8{t.Entries[3*i], t.Entries[3*i+1], t.Entries[3*i+2]}
}

// Lookup returns the colour for intensity v.
func (t *LookupTable) Lookup(v float64) [3]uint8 {
	return t.Entry(t.Index(v))
}
