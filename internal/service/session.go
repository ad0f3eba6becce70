package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framescope/server/internal/histogram"
	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/internal/sessionstore"
	"github.com/framescope/server/internal/transport"
	"github.com/framescope/server/internal/viewport"
	"github.com/framescope/server/pkg/colormap"
)

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("service: session not found")
	// ErrFrameNotFound is returned when a session has no frame yet or the
	// source has no frame at the requested path.
	ErrFrameNotFound = errors.New("service: frame not found")
	// ErrSuperseded is returned by a load that a newer load replaced.
	ErrSuperseded = errors.New("service: frame load superseded")
	// ErrUnknownColormap is returned for palette names not in the registry.
	ErrUnknownColormap = errors.New("service: unknown colormap")
)

// Frame is a fully processed frame. It is immutable once committed.
type Frame struct {
	ID          string
	Generation  uint64
	Fingerprint string
	Array       *npy.Array
	Histogram   *histogram.Histogram
	Domain      lut.Domain
	LoadedAt    time.Time
	Timings     Timings
}

// Timings records how long each pipeline stage took.
type Timings struct {
	Fetch     time.Duration `json:"fetch"`
	Decode    time.Duration `json:"decode"`
	Histogram time.Duration `json:"histogram"`
	Composite time.Duration `json:"composite"`
}

// Session is one viewer: a viewport controller, a colour window, a palette
// and the last successfully loaded frame.
type Session struct {
	ID         string
	Controller *viewport.Controller

	mu         sync.Mutex
	createdAt  time.Time
	window     *lut.Window
	colormap   colormap.Colormap
	params     *transport.Params
	frame      *Frame
	rgb        []byte
	image      *image.RGBA
	generation uint64
	cancel     context.CancelFunc

	// colorVersion counts window and palette changes.
	colorVersion uint64
	// restored marks a session whose viewport came from the store.
	restored     bool
}

// SessionInfo is a snapshot of a session for API responses.
type SessionInfo struct {
	ID         string                `json:"session_id"`
	Colormap   string                `json:"colormap"`
	Window     lut.Window            `json:"window"`
	AutoWindow bool                  `json:"auto_window"`
	Viewport   viewport.Viewport     `json:"viewport"`
	Gesture    viewport.GestureState `json:"gesture"`
	Generation uint64                `json:"generation"`
	Frame      *FrameInfo            `json:"frame,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// FrameInfo describes the committed frame of a session.
type FrameInfo struct {
	ID          string    `json:"frame_id"`
	Generation  uint64    `json:"generation"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	DType       string    `json:"dtype"`
	Fingerprint string    `json:"fingerprint"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Timings     Timings   `json:"timings"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// activeWindow is the user window, or the histogram default when unset.
func (s *Session) activeWindow() lut.Window {
	if s.window != nil {
		return *s.window
	}
	if s.frame != nil {
		low, high := s.frame.Histogram.DefaultWindow()
		return lut.Window{Low: low, High: high}
	}
	return lut.Window{}
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:         s.ID,
		Colormap:   s.colormap.Name(),
		Window:     s.activeWindow(),
		AutoWindow: s.window == nil,
		Viewport:   s.Controller.Viewport(),
		Gesture:    s.Controller.State(),
		Generation: s.generation,
		CreatedAt:  s.createdAt,
	}
	if f := s.frame; f != nil {
		info.Frame = &FrameInfo{
			ID:          f.ID,
			Generation:  f.Generation,
			Width:       f.Array.Width(),
			Height:      f.Array.Height(),
			DType:       f.Array.DType.String(),
			Fingerprint: f.Fingerprint,
			Min:         f.Histogram.Min,
			Max:         f.Histogram.Max,
			Timings:     f.Timings,
			LoadedAt:    f.LoadedAt,
		}
	}
	return info
}

func (s *Session) record() *sessionstore.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &sessionstore.Session{
		ID:        s.ID,
		Colormap:  s.colormap.Name(),
		Viewport:  s.Controller.Viewport(),
		Params:    s.params,
		CreatedAt: s.createdAt,
	}
	if s.window != nil {
		w := *s.window
		rec.Window = &w
	}
	return rec
}

// SessionManagerConfig contains session manager configuration.
type SessionManagerConfig struct {
	Store           *sessionstore.Store
	Viewport        viewport.Config
	AspectLocked    bool
	DefaultColormap string
}

// SessionManager holds the live sessions and mirrors their view state to
// the session store.
type SessionManager struct {
	cfg SessionManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates a session manager.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.DefaultColormap == "" {
		cfg.DefaultColormap = "gray"
	}
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

func (m *SessionManager) newSession(id string, createdAt time.Time) *Session {
	cm, ok := colormap.ByName(m.cfg.DefaultColormap)
	if !ok {
		cm = colormap.Gray
	}
	ctrl := viewport.NewController(m.cfg.Viewport)
	if m.cfg.AspectLocked {
		ctrl.Apply(viewport.Event{Type: viewport.EventAspectLock, Locked: true})
	}
	return &Session{
		ID:         id,
		Controller: ctrl,
		createdAt:  createdAt,
		colormap:   cm,
	}
}

// Create starts a new session with a random ID.
func (m *SessionManager) Create() (*Session, error) {
	sess := m.newSession(uuid.NewString(), time.Now().UTC())

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	if err := m.Persist(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the session with the given ID.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// List returns all sessions ordered by creation time.
func (m *SessionManager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].createdAt.Equal(out[j].createdAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].createdAt.Before(out[j].createdAt)
	})
	return out
}

// Delete cancels any in-flight load and removes the session.
func (m *SessionManager) Delete(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	sess.mu.Lock()
	if sess.cancel != nil {
		sess.cancel()
		sess.cancel = nil
	}
	sess.mu.Unlock()

	if m.cfg.Store != nil {
		return m.cfg.Store.DeleteSession(id)
	}
	return nil
}

// Persist writes the view state of sess to the store, if any.
func (m *SessionManager) Persist(sess *Session) error {
	if m.cfg.Store == nil {
		return nil
	}
	if err := m.cfg.Store.SaveSession(sess.record()); err != nil {
		return fmt.Errorf("failed to persist session %s: %w", sess.ID, err)
	}
	return nil
}

// persistQuiet persists synchronously and logs failures instead of
// returning them.
func (m *SessionManager) persistQuiet(sess *Session) {
	if err := m.Persist(sess); err != nil {
		log.Printf("[SessionManager] %v", err)
	}
}

// Restore loads saved sessions from the store. Frames are not stored, so
// restored sessions come back without a frame; sessions that remember their
// fetch parameters are returned so that the caller can reload them.
func (m *SessionManager) Restore() ([]*Session, error) {
	if m.cfg.Store == nil {
		return nil, nil
	}
	saved, err := m.cfg.Store.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var reload []*Session
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range saved {
		sess := m.newSession(rec.ID, rec.CreatedAt)
		if cm, ok := colormap.ByName(rec.Colormap); ok {
			sess.colormap = cm
		}
		if rec.Window != nil && rec.Window.Validate() == nil {
			w := *rec.Window
			sess.window = &w
		}
		if !sess.Controller.Restore(rec.Viewport) {
			log.Printf("[SessionManager] session %s: discarded invalid viewport %+v", rec.ID, rec.Viewport)
		}
		sess.params = rec.Params
		sess.restored = true
		m.sessions[rec.ID] = sess
		if rec.Params != nil {
			reload = append(reload, sess)
		}
	}
	log.Printf("[SessionManager] restored %d sessions", len(saved))
	return reload, nil
}

// Expire drops sessions idle for longer than retention from the store and
// from memory.
func (m *SessionManager) Expire(retention time.Duration) (int, error) {
	if m.cfg.Store == nil {
		return 0, nil
	}
	n, err := m.cfg.Store.DeleteExpiredSessions(retention)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	saved, err := m.cfg.Store.ListSessions()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	keep := make(map[string]bool, len(saved))
	for _, rec := range saved {
		keep[rec.ID] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		if keep[id] {
			continue
		}
		sess.mu.Lock()
		if sess.cancel != nil {
			sess.cancel()
			sess.cancel = nil
		}
		sess.mu.Unlock()
		delete(m.sessions, id)
	}
	return int(n), nil
}

// RunExpiry calls Expire every period until ctx is done.
func (m *SessionManager) RunExpiry(ctx context.Context, retention, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Expire(retention)
			if err != nil {
				log.Printf("[SessionManager] cleanup failed: %v", err)
			} else if n > 0 {
				log.Printf("[SessionManager] expired %d idle sessions", n)
			}
		}
	}
}
