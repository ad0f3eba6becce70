package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/internal/synth"
)

func testFrame(t *testing.T) []byte {
	t.Helper()
	buf, err := npy.Encode([]int{2, 2}, false, []uint16{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf
}

func TestDecompressFormats(t *testing.T) {
	frame := testFrame(t)
	for _, kind := range []Compression{CompressionNone, CompressionZstd, CompressionXZ, CompressionGzip} {
		t.Run(kind.String(), func(t *testing.T) {
			packed, err := Compress(frame, kind)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if got := Detect(packed); got != kind {
				t.Errorf("Detect = %v, want %v", got, kind)
			}
			out, got, err := Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if got != kind {
				t.Errorf("kind = %v, want %v", got, kind)
			}
			if !bytes.Equal(out, frame) {
				t.Error("payload changed through compression")
			}
		})
	}
}

func TestDecompressCorrupt(t *testing.T) {
	bad := append([]byte{}, zstdMagic...)
	bad = append(bad, 0xff, 0xff, 0xff)
	if _, _, err := Decompress(bad); err == nil {
		t.Error("expected error for corrupt zstd payload")
	}
}

func TestSyntheticSource(t *testing.T) {
	p := synth.DefaultParams()
	p.XDim, p.YDim = 16, 8
	buf, err := SyntheticSource{}.FetchFrame(context.Background(), Params{Gaussian: &p})
	if err != nil {
		t.Fatalf("FetchFrame: %v", err)
	}
	arr, err := npy.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if arr.Width() != 16 || arr.Height() != 8 {
		t.Errorf("size = %dx%d, want 16x8", arr.Width(), arr.Height())
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	frame := testFrame(t)
	zst, err := Compress(frame, CompressionZstd)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "run1"), 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string][]byte{
		"a.npy":          frame,
		"run1/b.npy.zst": zst,
		"run1/notes.txt": []byte("not a frame"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	src, err := NewFileSource(dir, "")
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	list, err := src.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0] != "a.npy" || list[1] != "run1/b.npy.zst" {
		t.Errorf("List = %v", list)
	}

	got, err := src.FetchFrame(context.Background(), Params{Path: "run1/b.npy.zst"})
	if err != nil {
		t.Fatalf("FetchFrame: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("compressed frame not unwrapped")
	}

	for _, p := range []string{"../etc/passwd", "run1/notes.txt", "missing.npy", ""} {
		if _, err := src.FetchFrame(context.Background(), Params{Path: p}); !errors.Is(err, ErrNotFound) {
			t.Errorf("FetchFrame(%q) error = %v, want ErrNotFound", p, err)
		}
	}

	if _, err := NewFileSource(filepath.Join(dir, "nope"), ""); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestHTTPSource(t *testing.T) {
	frame := testFrame(t)
	xzFrame, err := Compress(frame, CompressionXZ)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	var gotParams synth.Params
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/gaussian":
			if err := json.NewDecoder(r.Body).Decode(&gotParams); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Write(frame)
		case r.URL.Path == "/frames/x.npy.xz":
			w.Write(xzFrame)
		case r.URL.Path == "/boom":
			http.Error(w, "backend down", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/", 5*time.Second)

	got, err := src.FetchFrame(context.Background(), Params{})
	if err != nil {
		t.Fatalf("FetchFrame gaussian: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("gaussian payload mismatch")
	}
	if gotParams != synth.DefaultParams() {
		t.Errorf("backend received %+v, want defaults", gotParams)
	}

	got, err = src.FetchFrame(context.Background(), Params{Path: "/frames/x.npy.xz"})
	if err != nil {
		t.Fatalf("FetchFrame path: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Error("xz payload not unwrapped")
	}

	if _, err := src.FetchFrame(context.Background(), Params{Path: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing error = %v, want ErrNotFound", err)
	}
	if _, err := src.FetchFrame(context.Background(), Params{Path: "boom"}); err == nil {
		t.Error("expected error for 502")
	}
}
