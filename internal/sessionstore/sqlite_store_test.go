package sessionstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/synth"
	"github.com/framescope/server/internal/transport"
	"github.com/framescope/server/internal/viewport"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "db", "sessions.sqlite"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetSession(t *testing.T) {
	s := newTestStore(t)

	gp := synth.DefaultParams()
	sess := &Session{
		ID:       "s1",
		Colormap: "inferno",
		Window:   &lut.Window{Low: 10, High: 2000},
		Viewport: viewport.Viewport{Left: 1, Right: 5, Bottom: -2, Top: 2, AspectLocked: true},
		Params:   &transport.Params{Gaussian: &gp},
	}
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if sess.CreatedAt.IsZero() || sess.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got, err := s.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.Colormap != "inferno" || got.Viewport != sess.Viewport {
		t.Errorf("got %+v", got)
	}
	if got.Window == nil || *got.Window != *sess.Window {
		t.Errorf("window = %+v, want %+v", got.Window, sess.Window)
	}
	if got.Params == nil || got.Params.Gaussian == nil || *got.Params.Gaussian != gp {
		t.Errorf("params = %+v", got.Params)
	}

	// Update clears the window back to automatic.
	sess.Window = nil
	sess.Colormap = "gray"
	if err := s.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}
	got, _ = s.GetSession("s1")
	if got.Window != nil || got.Colormap != "gray" {
		t.Errorf("after update: %+v", got)
	}

	missing, err := s.GetSession("nope")
	if err != nil || missing != nil {
		t.Errorf("GetSession(nope) = %v, %v; want nil, nil", missing, err)
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"a", "b"} {
		if err := s.SaveSession(&Session{ID: id, Colormap: "viridis", Viewport: viewport.Viewport{Right: 1, Top: 1}}); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}
	list, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}

	if err := s.RecordFrame(&FrameRecord{FrameID: "f1", SessionID: "a", Generation: 1, Width: 2, Height: 2, DType: "uint16", Fingerprint: "x", LoadedAt: time.Now()}); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := s.DeleteSession("a"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if got, _ := s.GetSession("a"); got != nil {
		t.Error("session a still present")
	}
	frames, err := s.ListFrames("a", 10)
	if err != nil {
		t.Fatalf("ListFrames: %v", err)
	}
	if len(frames) != 0 {
		t.Errorf("frame log not deleted: %d entries", len(frames))
	}

	n, err := s.DeleteExpiredSessions(-time.Hour)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expired = %d, want 1", n)
	}
}

func TestFrameLog(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveSession(&Session{ID: "s", Colormap: "gray", Viewport: viewport.Viewport{Right: 1, Top: 1}}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		rec := &FrameRecord{
			FrameID:     "f" + string(rune('0'+i)),
			SessionID:   "s",
			Generation:  uint64(i),
			Width:       640,
			Height:      480,
			DType:       "uint16",
			Fingerprint: "fp",
			LoadedAt:    base.Add(time.Duration(i) * time.Second),
		}
		if err := s.RecordFrame(rec); err != nil {
			t.Fatalf("RecordFrame: %v", err)
		}
	}

	frames, err := s.ListFrames("s", 2)
	if err != nil {
		t.Fatalf("ListFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("len = %d, want 2", len(frames))
	}
	if frames[0].Generation != 3 || frames[1].Generation != 2 {
		t.Errorf("order = %d, %d; want 3, 2", frames[0].Generation, frames[1].Generation)
	}
	if !frames[0].LoadedAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("LoadedAt = %v", frames[0].LoadedAt)
	}
}
