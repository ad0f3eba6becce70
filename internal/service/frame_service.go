// Package service orchestrates the frame pipeline for viewer sessions.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/framescope/server/internal/cache"
	"github.com/framescope/server/internal/composite"
	"github.com/framescope/server/internal/histogram"
	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/npy"
	"github.com/framescope/server/internal/render"
	"github.com/framescope/server/internal/sessionstore"
	"github.com/framescope/server/internal/transport"
	"github.com/framescope/server/internal/viewport"
	"github.com/framescope/server/pkg/colormap"
)

// FrameServiceConfig contains frame service configuration.
type FrameServiceConfig struct {
	Source     transport.Source
	Sessions   *SessionManager
	Cache      *cache.Manager
	LUTs       *lut.Cache
	Engine     histogram.Engine
	Compositor composite.Compositor
	Renderer   *render.ViewRenderer
	Store      *sessionstore.Store
}

// FrameService loads frames into sessions and renders their views.
//
// Each load takes a new generation number for its session and cancels the
// load it replaces. Only the newest generation may commit; a failed load
// leaves the previous frame in place.
type FrameService struct {
	source     transport.Source
	sessions   *SessionManager
	cache      *cache.Manager
	luts       *lut.Cache
	engine     histogram.Engine
	compositor composite.Compositor
	renderer   *render.ViewRenderer
	store      *sessionstore.Store
}

// NewFrameService creates a new frame service.
func NewFrameService(cfg FrameServiceConfig) *FrameService {
	return &FrameService{
		source:     cfg.Source,
		sessions:   cfg.Sessions,
		cache:      cfg.Cache,
		luts:       cfg.LUTs,
		engine:     cfg.Engine,
		compositor: cfg.Compositor,
		renderer:   cfg.Renderer,
		store:      cfg.Store,
	}
}

// Sessions returns the session manager.
func (s *FrameService) Sessions() *SessionManager {
	return s.sessions
}

// Source returns the configured frame source.
func (s *FrameService) Source() transport.Source {
	return s.source
}

// ViewSize returns the default rendered view size.
func (s *FrameService) ViewSize() (int, int) {
	return s.renderer.Size()
}

// begin starts a new generation for sess and cancels the previous load.
func (s *FrameService) begin(ctx context.Context, sess *Session) (uint64, context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	sess.mu.Lock()
	if sess.cancel != nil {
		sess.cancel()
	}
	sess.generation++
	gen := sess.generation
	sess.cancel = cancel
	sess.mu.Unlock()

	return gen, ctx, func() {
		cancel()
		sess.mu.Lock()
		if sess.generation == gen {
			sess.cancel = nil
		}
		sess.mu.Unlock()
	}
}

// outcome reports ErrSuperseded for any failure of a replaced generation.
func (s *FrameService) outcome(sess *Session, gen uint64, err error) error {
	sess.mu.Lock()
	current := sess.generation
	sess.mu.Unlock()
	if current != gen {
		return ErrSuperseded
	}
	return err
}

// Load fetches a frame from the source and commits it to the session.
func (s *FrameService) Load(ctx context.Context, sessionID string, p transport.Params) (*FrameInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if p.Gaussian != nil {
		if err := p.Gaussian.Validate(); err != nil {
			return nil, err
		}
	}

	gen, ctx, done := s.begin(ctx, sess)
	defer done()

	start := time.Now()
	raw, err := s.source.FetchFrame(ctx, p)
	if err != nil {
		if errors.Is(err, transport.ErrNotFound) {
			err = fmt.Errorf("%w: %v", ErrFrameNotFound, err)
		}
		return nil, s.outcome(sess, gen, err)
	}
	params := p
	return s.process(ctx, sess, gen, raw, &params, time.Since(start))
}

// LoadBytes commits an uploaded payload, optionally compressed.
func (s *FrameService) LoadBytes(ctx context.Context, sessionID string, payload []byte) (*FrameInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}

	gen, ctx, done := s.begin(ctx, sess)
	defer done()

	start := time.Now()
	raw, _, err := transport.Decompress(payload)
	if err != nil {
		return nil, s.outcome(sess, gen, err)
	}
	return s.process(ctx, sess, gen, raw, nil, time.Since(start))
}

// process runs decode, histogram, table and composite for one generation.
func (s *FrameService) process(ctx context.Context, sess *Session, gen uint64, raw []byte, params *transport.Params, fetch time.Duration) (*FrameInfo, error) {
	timings := Timings{Fetch: fetch}
	fp := cache.Fingerprint(raw)

	t0 := time.Now()
	arr, ok := s.cache.GetFrame(fp)
	if !ok {
		decoded, err := npy.Decode(raw)
		if err != nil {
			return nil, s.outcome(sess, gen, err)
		}
		arr = decoded.RowMajor()
		s.cache.SetFrame(fp, arr)
	}
	timings.Decode = time.Since(t0)

	if err := ctx.Err(); err != nil {
		return nil, s.outcome(sess, gen, err)
	}

	t0 = time.Now()
	hist, err := s.histogram(fp, arr, 0)
	if err != nil {
		return nil, s.outcome(sess, gen, err)
	}
	timings.Histogram = time.Since(t0)

	low, high := hist.DefaultWindow()
	sess.mu.Lock()
	window := lut.Window{Low: low, High: high}
	if sess.window != nil {
		window = *sess.window
	}
	cm := sess.colormap
	version := sess.colorVersion
	sess.mu.Unlock()

	t0 = time.Now()
	domain := lut.DomainFor(arr.DType, hist.Min, hist.Max)
	table, err := s.luts.Get(domain, window, cm)
	if err != nil {
		return nil, s.outcome(sess, gen, err)
	}
	rgb, err := s.compositor.Composite(ctx, arr, table)
	if err != nil {
		return nil, s.outcome(sess, gen, err)
	}
	img, err := composite.ToRGBA(rgb, arr.Width(), arr.Height())
	if err != nil {
		return nil, s.outcome(sess, gen, err)
	}
	timings.Composite = time.Since(t0)

	frame := &Frame{
		ID:          uuid.NewString(),
		Generation:  gen,
		Fingerprint: fp,
		Array:       arr,
		Histogram:   hist,
		Domain:      domain,
		LoadedAt:    time.Now().UTC(),
		Timings:     timings,
	}

	sess.mu.Lock()
	if sess.generation != gen {
		sess.mu.Unlock()
		return nil, ErrSuperseded
	}
	prev := sess.frame
	sess.frame = frame
	sess.rgb = rgb
	sess.image = img
	sess.params = params
	stale := sess.colorVersion != version
	keepView := prev == nil && sess.restored
	sess.restored = false
	sess.mu.Unlock()

	if prev == nil || prev.Array.Width() != arr.Width() || prev.Array.Height() != arr.Height() {
		sess.Controller.SetFullDomain(viewport.Viewport{Right: float64(arr.Width()), Top: float64(arr.Height())})
		if !keepView {
			sess.Controller.Apply(viewport.Event{Type: viewport.EventReset})
		}
	}
	if stale {
		// The window or palette changed while this frame was in flight.
		if err := s.recolor(context.Background(), sess); err != nil {
			log.Printf("[FrameService] session %s: recolor failed: %v", sess.ID, err)
		}
	}

	log.Printf("[FrameService] session %s gen %d: %dx%d %s decode=%v histogram=%v composite=%v",
		sess.ID, gen, arr.Width(), arr.Height(), arr.DType, timings.Decode, timings.Histogram, timings.Composite)

	s.sessions.persistQuiet(sess)
	if s.store != nil {
		err := s.store.RecordFrame(&sessionstore.FrameRecord{
			FrameID:     frame.ID,
			SessionID:   sess.ID,
			Generation:  gen,
			Width:       arr.Width(),
			Height:      arr.Height(),
			DType:       arr.DType.String(),
			Fingerprint: fp,
			LoadedAt:    frame.LoadedAt,
		})
		if err != nil {
			log.Printf("[FrameService] session %s: failed to record frame: %v", sess.ID, err)
		}
	}

	info := sess.Info()
	return info.Frame, nil
}

// histogram computes or fetches the histogram of a frame.
func (s *FrameService) histogram(fp string, arr *npy.Array, bins int) (*histogram.Histogram, error) {
	key := cache.HistogramKey(fp, bins)
	if data, ok := s.cache.GetQuery(key); ok {
		var h histogram.Histogram
		if err := json.Unmarshal(data, &h); err == nil {
			return &h, nil
		}
	}
	h, err := s.engine.Compute(arr, bins)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(h); err == nil {
		s.cache.SetQuery(key, data)
	}
	return h, nil
}

// recolor recomposites the current frame with the current window and
// palette. A result is dropped when either changed meanwhile.
func (s *FrameService) recolor(ctx context.Context, sess *Session) error {
	for {
		sess.mu.Lock()
		frame := sess.frame
		if frame == nil {
			sess.mu.Unlock()
			return nil
		}
		window := sess.activeWindow()
		cm := sess.colormap
		version := sess.colorVersion
		sess.mu.Unlock()

		table, err := s.luts.Get(frame.Domain, window, cm)
		if err != nil {
			return err
		}
		rgb, err := s.compositor.Composite(ctx, frame.Array, table)
		if err != nil {
			return err
		}
		img, err := composite.ToRGBA(rgb, frame.Array.Width(), frame.Array.Height())
		if err != nil {
			return err
		}

		sess.mu.Lock()
		if sess.frame != frame {
			// A newer frame was committed with its own colours.
			sess.mu.Unlock()
			return nil
		}
		if sess.colorVersion == version {
			sess.rgb = rgb
			sess.image = img
			sess.mu.Unlock()
			return nil
		}
		sess.mu.Unlock()
	}
}

// Info returns a snapshot of a session.
func (s *FrameService) Info(sessionID string) (SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return sess.Info(), nil
}

// Histogram returns the histogram of the current frame. bins <= 0 returns
// the histogram computed at load time.
func (s *FrameService) Histogram(sessionID string, bins int) (*histogram.Histogram, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	frame := sess.frame
	sess.mu.Unlock()
	if frame == nil {
		return nil, ErrFrameNotFound
	}
	if bins <= 0 {
		return frame.Histogram, nil
	}
	return s.histogram(frame.Fingerprint, frame.Array, bins)
}

// SetWindow sets the colour window; nil restores the histogram default.
func (s *FrameService) SetWindow(ctx context.Context, sessionID string, w *lut.Window) (SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	if w != nil {
		if err := w.Validate(); err != nil {
			return SessionInfo{}, err
		}
	}

	sess.mu.Lock()
	if w != nil {
		win := *w
		sess.window = &win
	} else {
		sess.window = nil
	}
	sess.colorVersion++
	sess.mu.Unlock()

	if err := s.recolor(ctx, sess); err != nil {
		return SessionInfo{}, err
	}
	s.sessions.persistQuiet(sess)
	return sess.Info(), nil
}

// BrushWindow sets the colour window from a vertical selection on the
// histogram axis.
func (s *FrameService) BrushWindow(ctx context.Context, sessionID string, y0, y1, axisHeight float64) (SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	sess.mu.Lock()
	frame := sess.frame
	sess.mu.Unlock()
	if frame == nil {
		return SessionInfo{}, ErrFrameNotFound
	}
	if axisHeight <= 0 {
		return SessionInfo{}, fmt.Errorf("%w: axis height %v", lut.ErrInvalidWindow, axisHeight)
	}
	low, high := frame.Histogram.WindowFromBrush(y0, y1, axisHeight)
	return s.SetWindow(ctx, sessionID, &lut.Window{Low: low, High: high})
}

// SetColormap switches the session palette.
func (s *FrameService) SetColormap(ctx context.Context, sessionID, name string) (SessionInfo, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	cm, ok := colormap.ByName(name)
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %q", ErrUnknownColormap, name)
	}

	sess.mu.Lock()
	sess.colormap = cm
	sess.colorVersion++
	sess.mu.Unlock()

	if err := s.recolor(ctx, sess); err != nil {
		return SessionInfo{}, err
	}
	s.sessions.persistQuiet(sess)
	return sess.Info(), nil
}

// ApplyGesture feeds one pointer event to the session's viewport.
func (s *FrameService) ApplyGesture(sessionID string, ev viewport.Event) (viewport.Viewport, viewport.GestureState, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return viewport.Viewport{}, viewport.GestureState{}, err
	}
	before := sess.Controller.Viewport()
	v, err := sess.Controller.Apply(ev)
	if err != nil {
		return v, sess.Controller.State(), err
	}
	if v != before {
		s.sessions.persistQuiet(sess)
	}
	return v, sess.Controller.State(), nil
}

// RenderImage draws the current frame under the session viewport as PNG.
// Zero width or height selects the renderer default.
func (s *FrameService) RenderImage(sessionID string, width, height int) ([]byte, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		width, height = s.renderer.Size()
	}

	sess.mu.Lock()
	frame, img := sess.frame, sess.image
	window := sess.activeWindow()
	cmName := sess.colormap.Name()
	sess.mu.Unlock()
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	v := sess.Controller.Viewport()
	key := cache.ImageKey(frame.Fingerprint, v, width, height, cmName, window)
	if data, ok := s.cache.GetImage(key); ok {
		return data, nil
	}

	data, err := s.renderer.RenderViewSize(img, v, width, height)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetImage(key, data); err != nil {
		log.Printf("[FrameService] failed to cache view %s: %v", key, err)
	}
	return data, nil
}

// RGB returns the composited buffer of the current frame.
func (s *FrameService) RGB(sessionID string) ([]byte, int, int, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, 0, 0, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.frame == nil {
		return nil, 0, 0, ErrFrameNotFound
	}
	return sess.rgb, sess.frame.Array.Width(), sess.frame.Array.Height(), nil
}

// ColorBar renders the session palette labelled with its window.
func (s *FrameService) ColorBar(sessionID string, width, height int) ([]byte, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	window := sess.activeWindow()
	cm := sess.colormap
	sess.mu.Unlock()
	return s.renderer.RenderColorBar(cm, window, width, height)
}

// Frames returns the recent frame log of a session.
func (s *FrameService) Frames(sessionID string, limit int) ([]*sessionstore.FrameRecord, error) {
	if _, err := s.sessions.Get(sessionID); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListFrames(sessionID, limit)
}

// ListSources enumerates frames of sources that support listing.
func (s *FrameService) ListSources() ([]string, bool, error) {
	lister, ok := s.source.(transport.Lister)
	if !ok {
		return nil, false, nil
	}
	paths, err := lister.List()
	return paths, true, err
}

// Reload refetches frames for restored sessions in the background.
func (s *FrameService) Reload(ctx context.Context, sessions []*Session) {
	for _, sess := range sessions {
		sess.mu.Lock()
		params := sess.params
		sess.mu.Unlock()
		if params == nil {
			continue
		}
		go s.reload(ctx, sess.ID, *params)
	}
}

// reload runs one background load, logging errors and panics.
func (s *FrameService) reload(ctx context.Context, id string, p transport.Params) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FrameService] session %s: reload panicked: %v", id, r)
		}
	}()
	if _, err := s.Load(ctx, id, p); err != nil {
		log.Printf("[FrameService] session %s: reload failed: %v", id, err)
	}
}
