package histogram

import (
	"errors"
	"math"
	"testing"

	"github.com/framescope/server/internal/npy"
)

func sum(counts []uint64) uint64 {
	var s uint64
	for _, c := range counts {
		s += c
	}
	return s
}

func TestComputeTwoBins(t *testing.T) {
	h, err := Engine{}.Compute(Float64s{1, 2, 3, 4}, 2)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if h.Min != 1 || h.Max != 4 {
		t.Errorf("range = [%v, %v], want [1, 4]", h.Min, h.Max)
	}
	if h.BinSize != 1.5 {
		t.Errorf("BinSize = %v, want 1.5", h.BinSize)
	}
	if got := sum(h.Counts); got != 4 {
		t.Errorf("sum(Counts) = %d, want 4", got)
	}
	if h.Counts[0] != 2 || h.Counts[1] != 2 {
		t.Errorf("Counts = %v, want [2 2]", h.Counts)
	}
	if h.Centers[0] != 1.75 || h.Centers[1] != 3.25 {
		t.Errorf("Centers = %v, want [1.75 3.25]", h.Centers)
	}
}

func TestComputeFromDecodedFrame(t *testing.T) {
	buf, err := npy.Encode([]int{2, 2}, false, []uint16{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	arr, err := npy.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	h, err := Engine{}.Compute(arr, 2)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if h.Min != 1 || h.Max != 4 || h.BinSize != 1.5 || sum(h.Counts) != 4 {
		t.Errorf("got min=%v max=%v binSize=%v sum=%d", h.Min, h.Max, h.BinSize, sum(h.Counts))
	}
}

func TestComputeDefaultBins(t *testing.T) {
	vals := make(Float64s, 100)
	for i := range vals {
		vals[i] = float64(i)
	}
	h, err := Engine{}.Compute(vals, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(h.Counts) != 10 {
		t.Errorf("bins = %d, want 10", len(h.Counts))
	}

	h, err = Engine{DefaultBins: 4}.Compute(vals, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(h.Counts) != 4 {
		t.Errorf("bins = %d, want 4", len(h.Counts))
	}
}

func TestComputeSkipsNonFinite(t *testing.T) {
	vals := Float64s{math.NaN(), 5, math.Inf(1), 1, math.Inf(-1), 3}
	h, err := Engine{}.Compute(vals, 2)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if h.Min != 1 || h.Max != 5 {
		t.Errorf("range = [%v, %v], want [1, 5]", h.Min, h.Max)
	}
	if h.Sampled != 3 || sum(h.Counts) != 3 {
		t.Errorf("Sampled = %d, sum = %d, want 3", h.Sampled, sum(h.Counts))
	}
}

func TestComputeConstant(t *testing.T) {
	h, err := Engine{}.Compute(Float64s{7, 7, 7, 7, 7}, 3)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(h.Counts) != 1 || h.Counts[0] != 5 {
		t.Errorf("Counts = %v, want [5]", h.Counts)
	}
	if h.BinSize != 0 {
		t.Errorf("BinSize = %v, want 0", h.BinSize)
	}
	if h.Centers[0] != 7 {
		t.Errorf("Centers = %v, want [7]", h.Centers)
	}
}

func TestComputeClampsBins(t *testing.T) {
	h, err := Engine{}.Compute(Float64s{1, 2, 3, 4}, 1<<50)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(h.Counts) != MaxBins {
		t.Errorf("bins = %d, want %d", len(h.Counts), MaxBins)
	}
	var sum uint64
	for _, c := range h.Counts {
		sum += c
	}
	if sum != 4 {
		t.Errorf("sum of counts = %d, want 4", sum)
	}
}

func TestComputeEmpty(t *testing.T) {
	if _, err := (Engine{}).Compute(Float64s{}, 0); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty: err = %v, want ErrEmptyInput", err)
	}
	if _, err := (Engine{}).Compute(Float64s{math.NaN(), math.Inf(1)}, 0); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("all NaN: err = %v, want ErrEmptyInput", err)
	}
}

func TestStrideSampling(t *testing.T) {
	// sqrt(1e6) = 1000, 1000/200 = 5.
	n := 1000000
	vals := make(Float64s, n)
	for i := range vals {
		vals[i] = float64(i % 1000)
	}
	e := Engine{}
	if s := e.Stride(n); s != 5 {
		t.Fatalf("Stride = %d, want 5", s)
	}
	h, err := e.Compute(vals, 50)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if want := uint64(n / 5); h.Sampled != want || sum(h.Counts) != want {
		t.Errorf("Sampled = %d, sum = %d, want %d", h.Sampled, sum(h.Counts), want)
	}
	for i, c := range h.Centers {
		if c < h.Min || c > h.Max {
			t.Errorf("center %d = %v outside [%v, %v]", i, c, h.Min, h.Max)
		}
	}

	if s := (Engine{StrideDivisor: 1000}).Stride(n); s != 1 {
		t.Errorf("Stride with divisor 1000 = %d, want 1", s)
	}
}

func TestWindowFromBrush(t *testing.T) {
	h, err := Engine{}.Compute(Float64s{0, 25, 50, 75, 100}, 5)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	// Axis spans the first centre (10) to 100 over 90 pixels.
	low, high := h.WindowFromBrush(0, 90, 90)
	if low != 10 || high != 100 {
		t.Errorf("full brush = [%v, %v], want [10, 100]", low, high)
	}
	low, high = h.WindowFromBrush(60, 30, 90)
	if math.Abs(low-40) > 1e-9 || math.Abs(high-70) > 1e-9 {
		t.Errorf("partial brush = [%v, %v], want [40, 70]", low, high)
	}

	dl, dh := h.DefaultWindow()
	if dl != 0 || dh != 100 {
		t.Errorf("DefaultWindow = [%v, %v], want [0, 100]", dl, dh)
	}
}
