// Package render turns single-band rasters into PNG images with linear
// color ramps.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/mazznoer/colorgrad"
	"github.com/mazznoer/csscolorparser"
)

// ParseColor accepts any CSS color: a name, "#rgb", "#rrggbb", rgb() or hsl()
func ParseColor(value string) (color.NRGBA, error) {
	c, err := csscolorparser.Parse(strings.TrimSpace(value))
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("unknown color %q: %w", value, err)
	}
	to8 := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return color.NRGBA{to8(c.R), to8(c.G), to8(c.B), to8(c.A)}, nil
}

// Ramp maps [Min, Max] linearly onto evenly spaced color stops. Values
// outside the range clamp to the end colors; NaN is transparent.
type Ramp struct {
	Min float64
	Max float64

	gradient colorgrad.Gradient
}

// NewRamp parses the palette into a ramp
func NewRamp(min, max float64, palette []string) (*Ramp, error) {
	if !(max > min) {
		return nil, fmt.Errorf("ramp max %v must exceed min %v", max, min)
	}
	if len(palette) == 0 {
		return nil, fmt.Errorf("palette is empty")
	}
	stops := make([]color.Color, len(palette))
	for i, name := range palette {
		c, err := ParseColor(name)
		if err != nil {
			return nil, err
		}
		stops[i] = c
	}
	if len(stops) == 1 {
		stops = append(stops, stops[0])
	}
	gradient, err := colorgrad.NewGradient().
		Colors(stops...).
		Mode(colorgrad.BlendRgb).
		Domain(min, max).
		Build()
	if err != nil {
		return nil, err
	}
	return &Ramp{Min: min, Max: max, gradient: gradient}, nil
}

// CoolWarm is a blue-white-red diverging ramp over [-1, 1]
func CoolWarm() *Ramp {
	ramp, err := NewRamp(-1, 1, []string{"#3b4cc0", "#dddddd", "#b40426"})
	if err != nil {
		panic(err)
	}
	return ramp
}

// Color returns the ramp's color for a value
func (r *Ramp) Color(value float64) color.NRGBA {
	if math.IsNaN(value) {
		return color.NRGBA{}
	}
	c := r.gradient.At(math.Max(r.Min, math.Min(r.Max, value)))
	red, green, blue := c.Clamped().RGB255()
	return color.NRGBA{red, green, blue, 0xff}
}

// Colorize renders a raster through the ramp
func (r *Ramp) Colorize(raster *geotiff.Raster) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, raster.Width, raster.Height))
	for y := 0; y < raster.Height; y++ {
		for x := 0; x < raster.Width; x++ {
			img.SetNRGBA(x, y, r.Color(float64(raster.At(x, y))))
		}
	}
	return img
}

// PNG renders a raster through the ramp and encodes it
func (r *Ramp) PNG(raster *geotiff.Raster) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Colorize(raster)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
