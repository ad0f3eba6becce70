package lut

import (
	"errors"
	"math"
	"testing"

	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/pkg/colormap"
)

func TestDomainFor(t *testing.T) {
	tests := []struct {
		name     string
		dt       npy.DType
		min, max float64
		want     Domain
	}{
		{"uint8", npy.Uint8, 3, 9, Domain{Base: 0, Scale: 1, Size: 256}},
		{"int8", npy.Int8, 3, 9, Domain{Base: -128, Scale: 1, Size: 256}},
		{"uint16", npy.Uint16, 0, 10, Domain{Base: 0, Scale: 1, Size: 65536}},
		{"int16", npy.Int16, 0, 10, Domain{Base: -32768, Scale: 1, Size: 65536}},
		{"int32 narrow", npy.Int32, -5, 10, Domain{Base: -5, Scale: 1, Size: 16}},
		{"uint32 wide", npy.Uint32, 0, 1 << 20, Domain{Base: 0, Scale: float64(FloatEntries-1) / (1 << 20), Size: FloatEntries}},
		{"float", npy.Float32, 0.5, 2.5, Domain{Base: 0.5, Scale: float64(FloatEntries-1) / 2, Size: FloatEntries}},
		{"constant float", npy.Float64, 2, 2, Domain{Base: 2, Scale: 1, Size: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DomainFor(tt.dt, tt.min, tt.max); got != tt.want {
				t.Errorf("DomainFor = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDomainIndexClamps(t *testing.T) {
	d := Domain{Base: 10, Scale: 1, Size: 5}
	tests := []struct {
		v    float64
		want int
	}{
		{math.NaN(), 0},
		{math.Inf(-1), 0},
		{-100, 0},
		{10, 0},
		{12.7, 2},
		{14, 4},
		{1e9, 4},
		{math.Inf(1), 4},
	}
	for _, tt := range tests {
		if got := d.Index(tt.v); got != tt.want {
			t.Errorf("Index(%v) = %d, want %d", tt.v, got, tt.want)
		}
	}
}

func TestBuildClampsOutsideWindow(t *testing.T) {
	d := DomainFor(npy.Uint16, 0, 0)
	w := Window{Low: 1000, High: 2000}
	tbl, err := Build(d, w, colormap.Inferno)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tbl.Len() != 65536 {
		t.Fatalf("Len = %d, want 65536", tbl.Len())
	}

	low := tbl.Lookup(1000)
	high := tbl.Lookup(2000)
	for _, i := range []float64{0, 1, 500, 999} {
		if got := tbl.Lookup(i); got != low {
			t.Errorf("Lookup(%v) = %v, want low colour %v", i, got, low)
		}
	}
	for _, i := range []float64{2001, 30000, 65535} {
		if got := tbl.Lookup(i); got != high {
			t.Errorf("Lookup(%v) = %v, want high colour %v", i, got, high)
		}
	}
	if low != colormap.RGB(colormap.Inferno, 0) || high != colormap.RGB(colormap.Inferno, 1) {
		t.Errorf("endpoints %v, %v do not match palette ends", low, high)
	}
	if got, want := tbl.Lookup(1500), colormap.RGB(colormap.Inferno, 0.5); got != want {
		t.Errorf("Lookup(1500) = %v, want %v", got, want)
	}
}

func TestBuildMonotonicGray(t *testing.T) {
	tbl, err := Build(DomainFor(npy.Uint8, 0, 255), Window{Low: 0, High: 255}, colormap.Gray)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 1; i < tbl.Len(); i++ {
		if tbl.Entry(i)[0] < tbl.Entry(i-1)[0] {
			t.Fatalf("entry %d darker than entry %d", i, i-1)
		}
	}
	if tbl.Entry(0) != [3]uint8{0, 0, 0} || tbl.Entry(255) != [3]uint8{255, 255, 255} {
		t.Errorf("ends = %v, %v", tbl.Entry(0), tbl.Entry(255))
	}
}

func TestBuildDegenerateWindow(t *testing.T) {
	tbl, err := Build(DomainFor(npy.Uint8, 0, 0), Window{Low: 10, High: 10}, colormap.Gray)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := tbl.Lookup(10); got != [3]uint8{0, 0, 0} {
		t.Errorf("Lookup(10) = %v, want black", got)
	}
	if got := tbl.Lookup(11); got != [3]uint8{255, 255, 255} {
		t.Errorf("Lookup(11) = %v, want white", got)
	}
}

func TestBuildInvalidWindow(t *testing.T) {
	d := DomainFor(npy.Uint8, 0, 0)
	for _, w := range []Window{{Low: 5, High: 1}, {Low: math.NaN(), High: 1}, {Low: 0, High: math.Inf(1)}} {
		if _, err := Build(d, w, colormap.Gray); !errors.Is(err, ErrInvalidWindow) {
			t.Errorf("Build(%+v) error = %v, want ErrInvalidWindow", w, err)
		}
	}
}

func TestFloatQuantisation(t *testing.T) {
	d := DomainFor(npy.Float64, -1, 1)
	tbl, err := Build(d, Window{Low: -1, High: 1}, colormap.Gray)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := tbl.Index(1); got != FloatEntries-1 {
		t.Errorf("Index(max) = %d, want %d", got, FloatEntries-1)
	}
	if got := tbl.Lookup(-1); got != [3]uint8{0, 0, 0} {
		t.Errorf("Lookup(min) = %v, want black", got)
	}
	if got := tbl.Lookup(1); got != [3]uint8{255, 255, 255} {
		t.Errorf("Lookup(max) = %v, want white", got)
	}
}

func TestCacheReusesTables(t *testing.T) {
	c, err := NewCache(4)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	d := DomainFor(npy.Uint8, 0, 0)
	a, err := c.Get(d, Window{Low: 0, High: 100}, colormap.Viridis)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := c.Get(d, Window{Low: 0, High: 100}, colormap.Viridis)
	if a != b {
		t.Error("same key rebuilt the table")
	}
	other, _ := c.Get(d, Window{Low: 0, High: 50}, colormap.Viridis)
	if other == a {
		t.Error("window change returned the cached table")
	}
	pal, _ := c.Get(d, Window{Low: 0, High: 100}, colormap.Magma)
	if pal == a {
		t.Error("palette change returned the cached table")
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
	if _, err := c.Get(d, Window{Low: 2, High: 1}, colormap.Viridis); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("invalid window error = %v", err)
	}
}
