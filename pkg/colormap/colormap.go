// Package colormap provides the continuous palettes frames are coloured with.
package colormap

import (
	"image/color"
	"sort"
	"strings"
)

// Colormap maps normalized values [0, 1] to colors.
type Colormap interface {
	Name() string
	At(t float64) color.Color
}

// RGB evaluates c at t and returns the 8-bit red, green and blue channels.
func RGB(c Colormap, t float64) [3]uint8 {
	r, g, b, _ := c.At(t).RGBA()
	return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

// LinearColormap interpolates linearly between evenly spaced stops.
type LinearColormap struct {
	name  string
	stops []color.RGBA
}

func linear(name string, stops ...color.RGBA) LinearColormap {
	return LinearColormap{name: name, stops: stops}
}

// Name returns the registry name of the palette.
func (c LinearColormap) Name() string { return c.name }

// At returns the color at position t; values outside [0, 1] clamp to the
// end stops and NaN maps to the first stop.
func (c LinearColormap) At(t float64) color.Color {
	if !(t > 0) {
		return c.stops[0]
	}
	if t >= 1 {
		return c.stops[len(c.stops)-1]
	}

	pos := t * float64(len(c.stops)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(c.stops) {
		upper = len(c.stops) - 1
	}
	return interpolate(c.stops[lower], c.stops[upper], pos-float64(lower))
}

// Reversed returns the palette running from its last stop to its first.
func (c LinearColormap) Reversed() LinearColormap {
	stops := make([]color.RGBA, len(c.stops))
	for i, s := range c.stops {
		stops[len(stops)-1-i] = s
	}
	return LinearColormap{name: c.name + "_r", stops: stops}
}

func interpolate(c1, c2 color.RGBA, t float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c1.R) + t*(float64(c2.R)-float64(c1.R)) + 0.5),
		G: uint8(float64(c1.G) + t*(float64(c2.G)-float64(c1.G)) + 0.5),
		B: uint8(float64(c1.B) + t*(float64(c2.B)-float64(c1.B)) + 0.5),
		A: 255,
	}
}

// Viridis colormap (matplotlib viridis)
var Viridis = linear("viridis",
	color.RGBA{68, 1, 84, 255},
	color.RGBA{72, 35, 116, 255},
	color.RGBA{64, 67, 135, 255},
	color.RGBA{52, 94, 141, 255},
	color.RGBA{41, 120, 142, 255},
	color.RGBA{32, 144, 140, 255},
	color.RGBA{34, 167, 132, 255},
	color.RGBA{68, 190, 112, 255},
	color.RGBA{121, 209, 81, 255},
	color.RGBA{189, 222, 38, 255},
	color.RGBA{253, 231, 37, 255},
)

// Plasma colormap
var Plasma = linear("plasma",
	color.RGBA{13, 8, 135, 255},
	color.RGBA{75, 3, 161, 255},
	color.RGBA{125, 3, 168, 255},
	color.RGBA{168, 34, 150, 255},
	color.RGBA{203, 70, 121, 255},
	color.RGBA{229, 107, 93, 255},
	color.RGBA{248, 148, 65, 255},
	color.RGBA{253, 195, 40, 255},
	color.RGBA{240, 249, 33, 255},
)

// Inferno is the default palette for detector frames.
var Inferno = linear("inferno",
	color.RGBA{0, 0, 4, 255},
	color.RGBA{40, 11, 84, 255},
	color.RGBA{101, 21, 110, 255},
	color.RGBA{159, 42, 99, 255},
	color.RGBA{212, 72, 66, 255},
	color.RGBA{245, 125, 21, 255},
	color.RGBA{250, 193, 39, 255},
	color.RGBA{252, 255, 164, 255},
)

// Magma colormap
var Magma = linear("magma",
	color.RGBA{0, 0, 4, 255},
	color.RGBA{28, 16, 68, 255},
	color.RGBA{79, 18, 123, 255},
	color.RGBA{129, 37, 129, 255},
	color.RGBA{181, 54, 122, 255},
	color.RGBA{229, 80, 100, 255},
	color.RGBA{251, 135, 97, 255},
	color.RGBA{254, 194, 135, 255},
	color.RGBA{252, 253, 191, 255},
)

// Gray runs from black to white.
var Gray = linear("gray",
	color.RGBA{0, 0, 0, 255},
	color.RGBA{255, 255, 255, 255},
)

// Seurat runs from light gray to red.
var Seurat = linear("seurat",
	color.RGBA{211, 211, 211, 255},
	color.RGBA{255, 0, 0, 255},
)

var registry = map[string]Colormap{}

func init() {
	for _, c := range []LinearColormap{Viridis, Plasma, Inferno, Magma, Gray, Seurat} {
		registry[c.name] = c
		r := c.Reversed()
		registry[r.name] = r
	}
}

// ByName looks up a palette; names are case-insensitive.
func ByName(name string) (Colormap, bool) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Names lists the registered palettes in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
