package render

import (
	"bytes"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	brown, err := ParseColor("brown")
	assert.NoError(t, err)
	assert.Equal(t, color.NRGBA{0xa5, 0x2a, 0x2a, 0xff}, brown)

	hex, err := ParseColor("#00FF7f")
	assert.NoError(t, err)
	assert.Equal(t, color.NRGBA{0x00, 0xff, 0x7f, 0xff}, hex)

	short, err := ParseColor("#f00")
	assert.NoError(t, err)
	assert.Equal(t, color.NRGBA{0xff, 0x00, 0x00, 0xff}, short)

	olive, err := ParseColor("olive")
	assert.NoError(t, err)
	assert.Equal(t, color.NRGBA{0x80, 0x80, 0x00, 0xff}, olive)

	darkgreen, err := ParseColor("DarkGreen")
	assert.NoError(t, err)
	assert.Equal(t, color.NRGBA{0x00, 0x64, 0x00, 0xff}, darkgreen)

	_, err = ParseColor("chartreuse-ish")
	assert.Error(t, err)
	_, err = ParseColor("#zzzzzz")
	assert.Error(t, err)
}

func TestRamp_NDVIPalette(t *testing.T) {
	// Mock
	ramp, err := NewRamp(0, 0.8, []string{"brown", "yellow", "green"})
	require.NoError(t, err)

	// Asserts
	assert.Equal(t, color.NRGBA{0xa5, 0x2a, 0x2a, 0xff}, ramp.Color(0))
	assert.Equal(t, color.NRGBA{0xff, 0xff, 0x00, 0xff}, ramp.Color(0.4))
	assert.Equal(t, color.NRGBA{0x00, 0x80, 0x00, 0xff}, ramp.Color(0.8))
	// clamped
	assert.Equal(t, ramp.Color(0), ramp.Color(-0.5))
	assert.Equal(t, ramp.Color(0.8), ramp.Color(1))
	// halfway between yellow and green
	assert.Equal(t, color.NRGBA{0x80, 0xc0, 0x00, 0xff}, ramp.Color(0.6))
	assert.Equal(t, color.NRGBA{}, ramp.Color(math.NaN()))
}

func TestRamp_ExtendedCSSNames(t *testing.T) {
	ramp, err := NewRamp(0, 1, []string{"darkgreen", "olive"})
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{0x00, 0x64, 0x00, 0xff}, ramp.Color(0))
	assert.Equal(t, color.NRGBA{0x80, 0x80, 0x00, 0xff}, ramp.Color(1))
}

func TestRamp_SingleColor(t *testing.T) {
	ramp, err := NewRamp(0, 1, []string{"red"})
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{0xff, 0x00, 0x00, 0xff}, ramp.Color(0.3))
}

func TestNewRamp_Invalid(t *testing.T) {
	_, err := NewRamp(1, 1, []string{"red"})
	assert.Error(t, err)
	_, err = NewRamp(0, 1, nil)
	assert.Error(t, err)
	_, err = NewRamp(0, 1, []string{"nope"})
	assert.Error(t, err)
}

func TestRamp_PNG(t *testing.T) {
	raster := geotiff.NewRaster(2, 1, geotiff.GeoTransform{PixelWidth: 1, PixelHeight: 1})
	raster.Data[0] = 1

	data, err := CoolWarm().PNG(raster)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
	r, _, b, a := img.At(0, 0).RGBA()
	assert.True(t, r > b)
	assert.NotZero(t, a)
	_, _, _, a = img.At(1, 0).RGBA()
	assert.Zero(t, a)
}
