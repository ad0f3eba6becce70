package colormap

import (
	"image/color"
	"math"
	"testing"
)

func TestSeuratColormapEndpoints(t *testing.T) {
	t.Parallel()

	c0, ok := Seurat.At(0).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=0")
	}
	if c0 != (color.RGBA{R: 211, G: 211, B: 211, A: 255}) {
		t.Fatalf("unexpected Seurat.At(0): %#v", c0)
	}

	c1, ok := Seurat.At(1).(color.RGBA)
	if !ok {
		t.Fatalf("expected color.RGBA at t=1")
	}
	if c1 != (color.RGBA{R: 255, G: 0, B: 0, A: 255}) {
		t.Fatalf("unexpected Seurat.At(1): %#v", c1)
	}
}

func TestAtClampsOutOfRange(t *testing.T) {
	t.Parallel()

	if got, want := RGB(Inferno, -3), RGB(Inferno, 0); got != want {
		t.Errorf("At(-3) = %v, want %v", got, want)
	}
	if got, want := RGB(Inferno, 7), RGB(Inferno, 1); got != want {
		t.Errorf("At(7) = %v, want %v", got, want)
	}
	if got, want := RGB(Inferno, math.NaN()), RGB(Inferno, 0); got != want {
		t.Errorf("At(NaN) = %v, want %v", got, want)
	}
}

func TestGrayIsMonotonic(t *testing.T) {
	t.Parallel()

	prev := -1
	for i := 0; i <= 100; i++ {
		c := RGB(Gray, float64(i)/100)
		if int(c[0]) < prev {
			t.Fatalf("gray not monotonic at %d: %d < %d", i, c[0], prev)
		}
		prev = int(c[0])
	}
	if got := RGB(Gray, 0.5); got != [3]uint8{128, 128, 128} {
		t.Errorf("Gray midpoint = %v, want [128 128 128]", got)
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	c, ok := ByName(" Viridis ")
	if !ok || c.Name() != "viridis" {
		t.Fatalf("ByName(Viridis) = %v, %v", c, ok)
	}
	r, ok := ByName("viridis_r")
	if !ok {
		t.Fatal("reversed palette not registered")
	}
	if RGB(r, 0) != RGB(c, 1) || RGB(r, 1) != RGB(c, 0) {
		t.Error("reversed palette endpoints do not mirror the original")
	}
	if _, ok := ByName("jet"); ok {
		t.Error("unexpected palette jet")
	}

	names := Names()
	if len(names) != 12 {
		t.Errorf("len(Names()) = %d, want 12", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Errorf("Names not sorted: %v", names)
			break
		}
	}
}
