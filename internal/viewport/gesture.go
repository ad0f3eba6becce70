package viewport

import (
	"fmt"
	"time"
)

// Phase is the gesture state machine's current state.
type Phase int

const (
	Idle Phase = iota
	Dragging
	// BrushPending follows an empty brush; a second empty brush before
	// IdleTimeout resets the view.
	BrushPending
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case BrushPending:
		return "brush_pending"
	}
	return "unknown"
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by MarshalText.
func (p *Phase) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*p = Idle
	case "dragging":
		*p = Dragging
	case "brush_pending":
		*p = BrushPending
	default:
		return fmt.Errorf("viewport: unknown phase %q", b)
	}
	return nil
}

// GestureState carries the transient fields of an in-progress gesture.
type GestureState struct {
	Phase Phase `json:"phase"`
	// Drag anchor in pixels and the viewport when the drag began.
	AnchorX     float64   `json:"anchor_x,omitempty"`
	AnchorY     float64   `json:"anchor_y,omitempty"`
	DragStart   Viewport  `json:"-"`
	LastApplied time.Time `json:"-"`
	// PendingSince is when the last empty brush armed BrushPending.
	PendingSince time.Time `json:"-"`
}

// Selection is a brushed rectangle in pixels; corners may be given in any
// order.
type Selection struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Empty reports whether the selection has no area.
func (s *Selection) Empty() bool {
	return s == nil || s.X0 == s.X1 || s.Y0 == s.Y1
}

func (s Selection) normalized() Selection {
	if s.X0 > s.X1 {
		s.X0, s.X1 = s.X1, s.X0
	}
	if s.Y0 > s.Y1 {
		s.Y0, s.Y1 = s.Y1, s.Y0
	}
	return s
}

// Wheel zooms around the pointer at pixel (px, py). deltaY follows the DOM
// wheel convention: negative values zoom in.
func (c Config) Wheel(v Viewport, px, py, deltaY float64) Viewport {
	sens := c.WheelSensitivity
	if sens <= 0 {
		sens = 1000
	}
	m := c.Screen.ToDomain(v, px, py)
	return Zoom(v, m.X, m.Y, -deltaY/sens)
}

// DragStart anchors a drag at pixel (px, py).
func (c Config) DragStart(v Viewport, s GestureState, px, py float64, now time.Time) GestureState {
	return GestureState{
		Phase:       Dragging,
		AnchorX:     px,
		AnchorY:     py,
		DragStart:   v,
		LastApplied: now.Add(-c.FrameInterval),
	}
}

// DragMove pans so that the anchor follows the pointer. Moves arriving
// within FrameInterval of the last applied one are dropped.
func (c Config) DragMove(v Viewport, s GestureState, px, py float64, now time.Time) (Viewport, GestureState) {
	if s.Phase != Dragging {
		return v, s
	}
	if now.Sub(s.LastApplied) < c.FrameInterval {
		return v, s
	}
	s.LastApplied = now
	return c.dragTo(v, s, px, py), s
}

// DragEnd applies the final pointer position and returns to Idle.
func (c Config) DragEnd(v Viewport, s GestureState, px, py float64, now time.Time) (Viewport, GestureState) {
	if s.Phase != Dragging {
		return v, s
	}
	return c.dragTo(v, s, px, py), GestureState{}
}

func (c Config) dragTo(v Viewport, s GestureState, px, py float64) Viewport {
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		return v
	}
	start := s.DragStart
	dx := (px - s.AnchorX) / c.Screen.Width * start.Width()
	dy := (py - s.AnchorY) / c.Screen.Height * start.Height()
	// Pixel y is inverted relative to domain y.
	next := start
	next.AspectLocked = v.AspectLocked
	next.Left -= dx
	next.Right -= dx
	next.Bottom += dy
	next.Top += dy
	return commit(v, next)
}

// BrushEnd handles the end of a rectangular selection. A non-empty
// selection becomes the new domain. An empty one arms BrushPending, and a
// second empty one within IdleTimeout resets to the full domain.
func (c Config) BrushEnd(v Viewport, s GestureState, sel *Selection, now time.Time) (Viewport, GestureState) {
	if sel.Empty() {
		s = c.Tick(s, now)
		if s.Phase == BrushPending {
			return c.Reset(v), GestureState{}
		}
		return v, GestureState{Phase: BrushPending, PendingSince: now}
	}

	n := sel.normalized()
	lo := c.Screen.ToDomain(v, n.X0, n.Y1)
	hi := c.Screen.ToDomain(v, n.X1, n.Y0)
	return SetDomain(v, lo.X, hi.X, lo.Y, hi.Y), GestureState{}
}

// Tick expires a pending brush once IdleTimeout has elapsed.
func (c Config) Tick(s GestureState, now time.Time) GestureState {
	if s.Phase == BrushPending && now.Sub(s.PendingSince) >= c.IdleTimeout {
		return GestureState{}
	}
	return s
}

// Reset shows the full domain.
func (c Config) Reset(v Viewport) Viewport {
	f := c.FullDomain
	return SetDomain(v, f.Left, f.Right, f.Bottom, f.Top)
}

// Resize adopts a new full domain, typically when a frame of a different
// shape arrives. The visible domain is reset when it no longer overlaps the
// new one.
func (c Config) Resize(v Viewport, full Viewport) (Config, Viewport) {
	if !full.Valid() {
		return c, v
	}
	c.FullDomain = full
	overlaps := v.Left < full.Right && v.Right > full.Left && v.Bottom < full.Top && v.Top > full.Bottom
	if !overlaps {
		return c, c.Reset(v)
	}
	return c, v
}
