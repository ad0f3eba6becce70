// Package render draws composited frames into PNG views using fogleman/gg.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/viewport"
	"github.com/framescope/server/pkg/colormap"
)

// MaxSize bounds requested view dimensions.
const MaxSize = 4096

// Config contains renderer configuration.
type Config struct {
	Width           int
	Height          int
	DefaultColormap string
	// Background is a hex colour such as "#202020".
	Background string
}

// ViewRenderer places a frame inside the current viewport.
type ViewRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewViewRenderer creates a new view renderer.
func NewViewRenderer(cfg Config) *ViewRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 512
	}
	if cfg.Height <= 0 {
		cfg.Height = 512
	}
	if cfg.Background == "" {
		cfg.Background = "#000000"
	}
	return &ViewRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Size returns the default view size in pixels.
func (r *ViewRenderer) Size() (int, int) {
	return r.config.Width, r.config.Height
}

// context returns a canvas of the requested size and a release func.
func (r *ViewRenderer) context(width, height int) (*gg.Context, func()) {
	if width == r.config.Width && height == r.config.Height {
		dc := r.contextPool.Get().(*gg.Context)
		return dc, func() { r.contextPool.Put(dc) }
	}
	return gg.NewContext(width, height), func() {}
}

// Placement returns the affine map from frame pixels to view pixels. Frame
// column c covers domain x in [c, c+1] and row r covers domain y in
// [r, r+1], so row 0 is drawn at the bottom.
func Placement(v viewport.Viewport, width, height int) f64.Aff3 {
	sx := v.Width() / float64(width)
	sy := v.Height() / float64(height)
	return f64.Aff3{
		1 / sx, 0, -v.Left / sx,
		0, -1 / sy, v.Top / sy,
	}
}

// RenderView draws frame under v at the default size.
func (r *ViewRenderer) RenderView(frame *image.RGBA, v viewport.Viewport) ([]byte, error) {
	return r.RenderViewSize(frame, v, r.config.Width, r.config.Height)
}

// RenderViewSize draws frame under v on a width x height canvas. A nil
// frame yields a background-only view.
func (r *ViewRenderer) RenderViewSize(frame *image.RGBA, v viewport.Viewport, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > MaxSize || height > MaxSize {
		return nil, fmt.Errorf("render: view size %dx%d out of range", width, height)
	}
	if !v.Valid() {
		return nil, fmt.Errorf("render: invalid viewport %+v", v)
	}

	dc, release := r.context(width, height)
	defer release()

	dc.SetHexColor(r.config.Background)
	dc.Clear()

	if frame != nil {
		dst, ok := dc.Image().(*image.RGBA)
		if !ok {
			return nil, fmt.Errorf("render: unexpected canvas type %T", dc.Image())
		}
		xdraw.NearestNeighbor.Transform(dst, Placement(v, width, height), frame, frame.Bounds(), xdraw.Over, nil)
	}

	return r.encodeContext(dc)
}

// RenderColorBar draws the palette as a vertical bar, low values at the
// bottom, labelled with the window bounds.
func (r *ViewRenderer) RenderColorBar(cm colormap.Colormap, w lut.Window, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > MaxSize || height > MaxSize {
		return nil, fmt.Errorf("render: colour bar size %dx%d out of range", width, height)
	}
	dc := gg.NewContext(width, height)
	dc.SetColor(color.White)
	dc.Clear()

	const labelHeight = 16
	barTop, barBottom := float64(labelHeight), float64(height-labelHeight)
	if barBottom <= barTop {
		barTop, barBottom = 0, float64(height)
	}
	span := barBottom - barTop
	for i := 0; i < int(span); i++ {
		t := 0.0
		if span > 1 {
			t = float64(i) / (span - 1)
		}
		dc.SetColor(cm.At(t))
		dc.DrawRectangle(0, barBottom-float64(i)-1, float64(width), 1)
		dc.Fill()
	}

	if barTop > 0 {
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(formatBound(w.High), float64(width)/2, barTop/2, 0.5, 0.5)
		dc.DrawStringAnchored(formatBound(w.Low), float64(width)/2, barBottom+float64(labelHeight)/2, 0.5, 0.5)
	}
	return r.encodeContext(dc)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'g', 5, 64)
}

func (r *ViewRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy out; buf goes back to the pool.
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
