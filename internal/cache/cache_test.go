package cache

import (
	"testing"
	"time"

	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/internal/viewport"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{ImageCacheSizeMB: 8, ImageTTL: time.Minute, FrameCacheSize: 2, QueryCacheSize: 4})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("frame-a"))
	if len(a) != 32 {
		t.Fatalf("len = %d, want 32 hex chars", len(a))
	}
	if a != Fingerprint([]byte("frame-a")) {
		t.Error("fingerprint not stable")
	}
	if a == Fingerprint([]byte("frame-b")) {
		t.Error("distinct payloads share a fingerprint")
	}
}

func TestImageKey(t *testing.T) {
	v := viewport.Viewport{Left: 0, Right: 10, Bottom: 0, Top: 5}
	w := lut.Window{Low: 1, High: 2}

	base := ImageKey("fp", v, 100, 50, "gray", w)
	if base != ImageKey("fp", v, 100, 50, "gray", w) {
		t.Fatal("key not stable")
	}
	t.Run("viewport", func(t *testing.T) {
		moved := v
		moved.Left = 1
		if ImageKey("fp", moved, 100, 50, "gray", w) == base {
			t.Fatal("viewport change not reflected")
		}
	})
	t.Run("window", func(t *testing.T) {
		if ImageKey("fp", v, 100, 50, "gray", lut.Window{Low: 1, High: 3}) == base {
			t.Fatal("window change not reflected")
		}
	})
	t.Run("colormap", func(t *testing.T) {
		if ImageKey("fp", v, 100, 50, "viridis", w) == base {
			t.Fatal("colormap change not reflected")
		}
	})
}

func TestImageCache(t *testing.T) {
	m := newTestManager(t)
	if _, ok := m.GetImage("missing"); ok {
		t.Fatal("unexpected hit")
	}
	if err := m.SetImage("k", []byte{1, 2, 3}); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	got, ok := m.GetImage("k")
	if !ok || len(got) != 3 {
		t.Fatalf("GetImage = %v, %v", got, ok)
	}
}

func TestFrameCacheEvicts(t *testing.T) {
	m := newTestManager(t)
	for _, fp := range []string{"a", "b", "c"} {
		m.SetFrame(fp, &npy.Array{Shape: []int{1}, DType: npy.Uint8, Data: []uint8{1}})
	}
	if _, ok := m.GetFrame("a"); ok {
		t.Error("oldest frame not evicted")
	}
	if _, ok := m.GetFrame("c"); !ok {
		t.Error("newest frame missing")
	}
	if got := m.Stats()["frame_cache_len"]; got != 2 {
		t.Errorf("frame_cache_len = %v, want 2", got)
	}
}

func TestQueryCache(t *testing.T) {
	m := newTestManager(t)
	key := HistogramKey("fp", 100)
	m.SetQuery(key, []byte(`{}`))
	if got, ok := m.GetQuery(key); !ok || string(got) != "{}" {
		t.Fatalf("GetQuery = %q, %v", got, ok)
	}
}
