// Package synth generates synthetic detector frames.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/framescope/server/internal/npy"
)

// MaxDim bounds each frame dimension.
const MaxDim = 8192

// DefaultAmplitude is the peak intensity of a generated spot.
const DefaultAmplitude = 65000

// ErrInvalidParams is returned for unusable generator parameters.
var ErrInvalidParams = errors.New("synth: invalid parameters")

// Params describes a rotated 2D gaussian spot. Field names follow the
// /gaussian request body.
type Params struct {
	XDim      int     `json:"x_dim"`
	YDim      int     `json:"y_dim"`
	CenterX   float64 `json:"center_x"`
	CenterY   float64 `json:"center_y"`
	FWHMX     float64 `json:"fwhm_x"`
	FWHMY     float64 `json:"fwhm_y"`
	Theta     float64 `json:"theta"`
	Amplitude float64 `json:"amplitude,omitempty"`
	// Noise is the standard deviation of additive gaussian noise.
	Noise float64 `json:"noise,omitempty"`
	Seed  int64   `json:"seed,omitempty"`
}

// DefaultParams is the spot the viewer requests when nothing is given.
func DefaultParams() Params {
	return Params{
		XDim:    9,
		YDim:    9,
		CenterX: 4,
		CenterY: 5,
		FWHMX:   3,
		FWHMY:   2,
		Theta:   0.3,
	}
}

// Validate checks dimensions and widths.
func (p Params) Validate() error {
	if p.XDim <= 0 || p.YDim <= 0 || p.XDim > MaxDim || p.YDim > MaxDim {
		return fmt.Errorf("%w: dimensions %dx%d out of range (1..%d)", ErrInvalidParams, p.XDim, p.YDim, MaxDim)
	}
	if !(p.FWHMX > 0) || !(p.FWHMY > 0) {
		return fmt.Errorf("%w: fwhm must be positive, got %v x %v", ErrInvalidParams, p.FWHMX, p.FWHMY)
	}
	if p.Noise < 0 {
		return fmt.Errorf("%w: negative noise %v", ErrInvalidParams, p.Noise)
	}
	return nil
}

// fwhmToSigma = 1 / (2*sqrt(2*ln 2)).
var fwhmToSigma = 1 / (2 * math.Sqrt(2*math.Ln2))

// Gaussian renders the spot as a row-major YDim x XDim uint16 frame.
func Gaussian(p Params) ([]uint16, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	amp := p.Amplitude
	if amp <= 0 {
		amp = DefaultAmplitude
	}

	sx := p.FWHMX * fwhmToSigma
	sy := p.FWHMY * fwhmToSigma
	cos, sin := math.Cos(p.Theta), math.Sin(p.Theta)
	a := cos*cos/(2*sx*sx) + sin*sin/(2*sy*sy)
	b := -math.Sin(2*p.Theta)/(4*sx*sx) + math.Sin(2*p.Theta)/(4*sy*sy)
	c := sin*sin/(2*sx*sx) + cos*cos/(2*sy*sy)

	var rng *rand.Rand
	if p.Noise > 0 {
		rng = rand.New(rand.NewSource(p.Seed))
	}

	out := make([]uint16, p.XDim*p.YDim)
	for y := 0; y < p.YDim; y++ {
		dy := float64(y) - p.CenterY
		for x := 0; x < p.XDim; x++ {
			dx := float64(x) - p.CenterX
			v := amp * math.Exp(-(a*dx*dx + 2*b*dx*dy + c*dy*dy))
			if rng != nil {
				v += rng.NormFloat64() * p.Noise
			}
			out[y*p.XDim+x] = clampUint16(v)
		}
	}
	return out, nil
}

// Frame renders the spot and encodes it as .npy bytes.
func Frame(p Params) ([]byte, error) {
	data, err := Gaussian(p)
	if err != nil {
		return nil, err
	}
	return npy.Encode([]int{p.YDim, p.XDim}, false, data)
}

func clampUint16(v float64) uint16 {
	if !(v > 0) {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(math.Round(v))
}
