package viewport

import (
	"fmt"
	"sync"
	"time"
)

// Event types accepted by Controller.Apply.
const (
	EventWheel      = "wheel"
	EventDragStart  = "drag_start"
	EventDragMove   = "drag_move"
	EventDragEnd    = "drag_end"
	EventBrushEnd   = "brush_end"
	EventTick       = "tick"
	EventReset      = "reset"
	EventAspectLock = "aspect_lock"
)

// Event is one pointer or control input. X and Y are pixels on the screen.
type Event struct {
	Type      string     `json:"type"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	DeltaY    float64    `json:"delta_y,omitempty"`
	Selection *Selection `json:"selection,omitempty"`
	Locked    bool       `json:"locked,omitempty"`
}

// Controller owns one viewport and its gesture state, feeding events
// through the pure transitions in order.
type Controller struct {
	mu    sync.Mutex
	cfg   Config
	view  Viewport
	state GestureState
	now   func() time.Time
}

// NewController starts at the full domain of cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{cfg: cfg, now: time.Now}
	c.view = cfg.FullDomain
	return c
}

// SetClock replaces the time source; tests use it to step time.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Viewport returns the current domain.
func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// State returns the current gesture state.
func (c *Controller) State() GestureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Config returns the active configuration.
func (c *Controller) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Restore installs a previously saved viewport if it is valid.
func (c *Controller) Restore(v Viewport) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !v.Valid() {
		return false
	}
	c.view = v
	if v.AspectLocked {
		c.view = v.Locked()
	}
	return true
}

// SetFullDomain adopts the domain of a newly loaded frame.
func (c *Controller) SetFullDomain(full Viewport) Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg, c.view = c.cfg.Resize(c.view, full)
	return c.view
}

// SetScreen changes the pixel size of the plot area.
func (c *Controller) SetScreen(s Screen) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Width > 0 && s.Height > 0 {
		c.cfg.Screen = s
	}
}

// Apply runs one event and returns the resulting viewport.
func (c *Controller) Apply(ev Event) (Viewport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	switch ev.Type {
	case EventWheel:
		c.view = c.cfg.Wheel(c.view, ev.X, ev.Y, ev.DeltaY)
	case EventDragStart:
		c.state = c.cfg.DragStart(c.view, c.state, ev.X, ev.Y, now)
	case EventDragMove:
		c.view, c.state = c.cfg.DragMove(c.view, c.state, ev.X, ev.Y, now)
	case EventDragEnd:
		c.view, c.state = c.cfg.DragEnd(c.view, c.state, ev.X, ev.Y, now)
	case EventBrushEnd:
		c.view, c.state = c.cfg.BrushEnd(c.view, c.state, ev.Selection, now)
	case EventTick:
		c.state = c.cfg.Tick(c.state, now)
	case EventReset:
		c.view = c.cfg.Reset(c.view)
		c.state = GestureState{}
	case EventAspectLock:
		c.view = SetAspectLock(c.view, ev.Locked)
	default:
		return c.view, fmt.Errorf("viewport: unknown event type %q", ev.Type)
	}
	return c.view, nil
}
