package synth

import (
	"errors"
	"testing"

	"github.com/framescope/server/internal/npy"
)

func TestGaussianPeakAtCentre(t *testing.T) {
	p := Params{XDim: 21, YDim: 11, CenterX: 10, CenterY: 5, FWHMX: 4, FWHMY: 2}
	data, err := Gaussian(p)
	if err != nil {
		t.Fatalf("Gaussian: %v", err)
	}
	if len(data) != 21*11 {
		t.Fatalf("len = %d, want %d", len(data), 21*11)
	}

	peak := data[5*21+10]
	if peak != DefaultAmplitude {
		t.Errorf("peak = %d, want %d", peak, DefaultAmplitude)
	}
	for i, v := range data {
		if v > peak {
			t.Fatalf("value %d at %d exceeds peak %d", v, i, peak)
		}
	}
	// Half maximum lies fwhm/2 from the centre along x.
	if hm := data[5*21+12]; hm < DefaultAmplitude/2-1 || hm > DefaultAmplitude/2+1 {
		t.Errorf("half-maximum sample = %d, want ~%d", hm, DefaultAmplitude/2)
	}
}

func TestGaussianNoiseIsDeterministic(t *testing.T) {
	p := DefaultParams()
	p.Noise = 100
	p.Seed = 42
	a, err := Gaussian(p)
	if err != nil {
		t.Fatalf("Gaussian: %v", err)
	}
	b, _ := Gaussian(p)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between runs: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Params)
	}{
		{"zero width", func(p *Params) { p.XDim = 0 }},
		{"too tall", func(p *Params) { p.YDim = MaxDim + 1 }},
		{"zero fwhm", func(p *Params) { p.FWHMX = 0 }},
		{"negative noise", func(p *Params) { p.Noise = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mod(&p)
			if _, err := Gaussian(p); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("err = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestFrameDecodes(t *testing.T) {
	buf, err := Frame(DefaultParams())
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	arr, err := npy.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if arr.DType != npy.Uint16 || arr.Height() != 9 || arr.Width() != 9 {
		t.Errorf("got %v %dx%d, want uint16 9x9", arr.DType, arr.Width(), arr.Height())
	}
}
