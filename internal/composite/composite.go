// Package composite maps raw frame intensities through a lookup table into
// interleaved RGB bytes.
package composite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/framescope/server/internal/lut"
	"github.com/framescope/server/internal/npy"
)

// DefaultParallelThreshold is the element count below which compositing
// stays on the calling goroutine.
const DefaultParallelThreshold = 1 << 18

// ErrEmptyLookupTable is returned when no table has been built yet.
var ErrEmptyLookupTable = errors.New("composite: empty lookup table")

// Compositor turns intensities into RGB. The zero value uses GOMAXPROCS
// workers and DefaultParallelThreshold.
type Compositor struct {
	Workers           int
	ParallelThreshold int
}

// Composite colours every element of arr. The output always holds exactly
// 3*arr.Len() bytes; out-of-range intensities clamp to the table ends.
func (c Compositor) Composite(ctx context.Context, arr *npy.Array, table *lut.LookupTable) ([]byte, error) {
	switch d := arr.Data.(type) {
	case []uint8:
		return Slice(ctx, c, d, table)
	case []int8:
		return Slice(ctx, c, d, table)
	case []uint16:
		return Slice(ctx, c, d, table)
	case []int16:
		return Slice(ctx, c, d, table)
	case []uint32:
		return Slice(ctx, c, d, table)
	case []int32:
		return Slice(ctx, c, d, table)
	case []float32:
		return Slice(ctx, c, d, table)
	case []float64:
		return Slice(ctx, c, d, table)
	}
	return nil, fmt.Errorf("composite: unsupported data type %T", arr.Data)
}

// Slice colours a typed intensity slice with c's parallelism settings.
func Slice[T npy.Numeric](ctx context.Context, c Compositor, values []T, table *lut.LookupTable) ([]byte, error) {
	if table.Len() == 0 {
		return nil, ErrEmptyLookupTable
	}
	out := make([]byte, 3*len(values))

	threshold := c.ParallelThreshold
	if threshold <= 0 {
		threshold = DefaultParallelThreshold
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if len(values) < threshold || workers == 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fill(values, table, out, 0, len(values))
		return out, nil
	}

	workers = min(workers, len(values))
	chunk := (len(values) + workers - 1) / workers
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(values); start += chunk {
		start, end := start, min(start+chunk, len(values))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fill(values, table, out, start, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fill writes the colours for values[start:end]. Chunks never overlap, so
// workers share out without synchronisation.
func fill[T npy.Numeric](values []T, table *lut.LookupTable, out []byte, start, end int) {
	entries := table.Entries
	for i := start; i < end; i++ {
		idx := 3 * table.Index(float64(values[i]))
		o := 3 * i
		out[o] = entries[idx]
		out[o+1] = entries[idx+1]
		out[o+2] = entries[idx+2]
	}
}

// ToRGBA expands packed RGB bytes of a width x height frame into an opaque
// image.
func ToRGBA(rgb []byte, width, height int) (*image.RGBA, error) {
	if width < 0 || height < 0 || (width > 0 && (width > len(rgb)/3 || height > len(rgb)/(3*width))) || len(rgb) != 3*width*height {
		return nil, fmt.Errorf("composite: %d bytes do not form a %dx%d RGB frame", len(rgb), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(rgb); i, j = i+3, j+4 {
		img.Pix[j] = rgb[i]
		img.Pix[j+1] = rgb[i+1]
		img.Pix[j+2] = rgb[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
