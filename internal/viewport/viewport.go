// Package viewport maintains the pannable, zoomable domain rectangle of a
// frame view. Every transition is a pure function of the current viewport,
// the gesture state and one input event.
package viewport

import (
	"math"
	"time"
)

// Viewport is the visible domain: x in [Left, Right], y in [Bottom, Top].
type Viewport struct {
	Left         float64 `json:"left"`
	Right        float64 `json:"right"`
	Bottom       float64 `json:"bottom"`
	Top          float64 `json:"top"`
	AspectLocked bool    `json:"aspect_locked"`
}

// Width is the x span in domain units.
func (v Viewport) Width() float64 { return v.Right - v.Left }

// Height is the y span in domain units.
func (v Viewport) Height() float64 { return v.Top - v.Bottom }

// Valid reports whether v is a finite, non-empty rectangle.
func (v Viewport) Valid() bool {
	for _, f := range []float64{v.Left, v.Right, v.Bottom, v.Top} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return v.Left < v.Right && v.Bottom < v.Top
}

// Locked returns v with the aspect lock applied: the narrower axis grows
// around its centre until both spans are equal.
func (v Viewport) Locked() Viewport {
	w, h := v.Width(), v.Height()
	if w < h {
		cx := v.Left + w/2
		v.Left, v.Right = cx-h/2, cx+h/2
	} else if h < w {
		cy := v.Bottom + h/2
		v.Bottom, v.Top = cy-w/2, cy+w/2
	}
	return v
}

// Screen is the plot area in pixels. Pixel y grows downwards while domain
// y grows upwards.
type Screen struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a position in domain units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ToDomain maps a pixel position on s to domain coordinates under v.
func (s Screen) ToDomain(v Viewport, px, py float64) Point {
	return Point{
		X: v.Left + px/s.Width*v.Width(),
		Y: v.Bottom + (s.Height-py)/s.Height*v.Height(),
	}
}

// Config holds the fixed parameters of the transitions.
type Config struct {
	Screen     Screen
	FullDomain Viewport
	// FrameInterval is the minimum spacing of applied drag moves.
	FrameInterval time.Duration
	// IdleTimeout is how long an empty brush waits for a second one.
	IdleTimeout time.Duration
	// WheelSensitivity divides wheel deltas into zoom factors.
	WheelSensitivity float64
}

// DefaultConfig returns a configuration for a square frame of the given
// size shown on a screen of the same size.
func DefaultConfig(width, height float64) Config {
	return Config{
		Screen:           Screen{Width: width, Height: height},
		FullDomain:       Viewport{Left: 0, Right: width, Bottom: 0, Top: height},
		FrameInterval:    time.Second / 30,
		IdleTimeout:      350 * time.Millisecond,
		WheelSensitivity: 1000,
	}
}

// commit falls back to prev when next is not a valid rectangle, then
// applies the aspect lock.
func commit(prev, next Viewport) Viewport {
	next.AspectLocked = prev.AspectLocked
	if !next.Valid() {
		return prev
	}
	if next.AspectLocked {
		next = next.Locked()
		if !next.Valid() {
			return prev
		}
	}
	return next
}

// Zoom scales v around the domain point (mx, my): a positive factor zooms
// in, a negative one out, and the point stays fixed on screen.
func Zoom(v Viewport, mx, my, f float64) Viewport {
	next := v
	next.Left = v.Left + (mx-v.Left)*f
	next.Right = v.Right - (v.Right-mx)*f
	next.Bottom = v.Bottom + (my-v.Bottom)*f
	next.Top = v.Top - (v.Top-my)*f
	return commit(v, next)
}

// InverseZoomFactor returns the factor that undoes a Zoom by f around the
// same point.
func InverseZoomFactor(f float64) float64 {
	return -f / (1 - f)
}

// Pan shifts v by (dx, dy) domain units.
func Pan(v Viewport, dx, dy float64) Viewport {
	next := v
	next.Left += dx
	next.Right += dx
	next.Bottom += dy
	next.Top += dy
	return commit(v, next)
}

// SetDomain replaces the rectangle of v, keeping its lock flag.
func SetDomain(v Viewport, left, right, bottom, top float64) Viewport {
	return commit(v, Viewport{Left: left, Right: right, Bottom: bottom, Top: top})
}

// SetAspectLock toggles the lock; locking immediately squares the domain.
func SetAspectLock(v Viewport, locked bool) Viewport {
	prev := v
	prev.AspectLocked = locked
	return commit(prev, prev)
}
