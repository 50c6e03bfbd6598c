// Package geotiff reads and writes single-band float32 GeoTIFFs in
// geographic (EPSG:4326) coordinates. NaN marks pixels without data.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// TIFF tags
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagGeoKeyDirectory  = 34735
	tagGDALNoData       = 42113
	sampleFormatFloat   = 3
	photometricMinBlack = 1
)

// TIFF field types
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

var typeSizes = map[uint16]int{typeASCII: 1, typeShort: 2, typeLong: 4, typeDouble: 8}

// ErrNotSupported is returned for valid TIFFs this package cannot decode
var ErrNotSupported = errors.New("geotiff: unsupported layout")

// GeoTransform places the raster's upper-left corner and pixel size in degrees
type GeoTransform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// Raster is a row-major single-band image
type Raster struct {
	Width     int
	Height    int
	Data      []float32
	Transform GeoTransform
}

// NewRaster allocates a raster filled with NaN
func NewRaster(width, height int, transform GeoTransform) *Raster {
	data := make([]float32, width*height)
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return &Raster{Width: width, Height: height, Data: data, Transform: transform}
}

// At returns the value at column x, row y
func (r *Raster) At(x, y int) float32 {
	return r.Data[y*r.Width+x]
}

// ValidCount counts pixels that carry data
func (r *Raster) ValidCount() int {
	count := 0
	for _, v := range r.Data {
		if !math.IsNaN(float64(v)) {
			count++
		}
	}
	return count
}

type field struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shorts(values ...uint16) []byte {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

func longs(values ...uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

func doubles(values ...float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// Write encodes the raster as an uncompressed little-endian GeoTIFF with one
// strip per row
func Write(w io.Writer, r *Raster) error {
	if r.Width <= 0 || r.Height <= 0 || len(r.Data) != r.Width*r.Height {
		return fmt.Errorf("geotiff: invalid raster %dx%d with %d values", r.Width, r.Height, len(r.Data))
	}
	rowBytes := uint32(r.Width * 4)
	fields := []field{
		{tagImageWidth, typeLong, 1, longs(uint32(r.Width))},
		{tagImageLength, typeLong, 1, longs(uint32(r.Height))},
		{tagBitsPerSample, typeShort, 1, shorts(32)},
		{tagCompression, typeShort, 1, shorts(1)},
		{tagPhotometric, typeShort, 1, shorts(photometricMinBlack)},
		{tagStripOffsets, typeLong, uint32(r.Height), nil},
		{tagSamplesPerPixel, typeShort, 1, shorts(1)},
		{tagRowsPerStrip, typeLong, 1, longs(1)},
		{tagStripByteCounts, typeLong, uint32(r.Height), nil},
		{tagPlanarConfig, typeShort, 1, shorts(1)},
		{tagSampleFormat, typeShort, 1, shorts(sampleFormatFloat)},
		{tagModelPixelScale, typeDouble, 3, doubles(r.Transform.PixelWidth, r.Transform.PixelHeight, 0)},
		{tagModelTiepoint, typeDouble, 6, doubles(0, 0, 0, r.Transform.OriginX, r.Transform.OriginY, 0)},
		// version 1.1.0, 3 keys: geographic model, pixel-is-area, WGS 84
		{tagGeoKeyDirectory, typeShort, 16, shorts(1, 1, 0, 3, 1024, 0, 1, 2, 1025, 0, 1, 1, 2048, 0, 1, 4326)},
		{tagGDALNoData, typeASCII, 4, []byte("nan\x00")},
	}

	ifdOffset := uint32(8)
	ifdSize := uint32(2 + 12*len(fields) + 4)
	extraOffset := ifdOffset + ifdSize

	// lay out the out-of-line values, then the pixels
	stripCounts := make([]uint32, r.Height)
	for i := range stripCounts {
		stripCounts[i] = rowBytes
	}
	sizeOf := func(f field) uint32 {
		if f.tag == tagStripOffsets || f.tag == tagStripByteCounts {
			return f.count * 4
		}
		return uint32(len(f.data))
	}
	offsets := make([]uint32, len(fields))
	cursor := extraOffset
	for i, f := range fields {
		if size := sizeOf(f); size > 4 {
			offsets[i] = cursor
			cursor += size + size%2
		}
	}
	pixelOffset := cursor
	stripOffsets := make([]uint32, r.Height)
	for i := range stripOffsets {
		stripOffsets[i] = pixelOffset + uint32(i)*rowBytes
	}
	for i := range fields {
		switch fields[i].tag {
		case tagStripOffsets:
			fields[i].data = longs(stripOffsets...)
		case tagStripByteCounts:
			fields[i].data = longs(stripCounts...)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("II")
	buf.Write(shorts(42))
	buf.Write(longs(ifdOffset))
	buf.Write(shorts(uint16(len(fields))))
	for i, f := range fields {
		buf.Write(shorts(f.tag, f.typ))
		buf.Write(longs(f.count))
		if len(f.data) > 4 {
			buf.Write(longs(offsets[i]))
		} else {
			inline := make([]byte, 4)
			copy(inline, f.data)
			buf.Write(inline)
		}
	}
	buf.Write(longs(0))
	for _, f := range fields {
		if len(f.data) > 4 {
			buf.Write(f.data)
			if len(f.data)%2 == 1 {
				buf.WriteByte(0)
			}
		}
	}
	if uint32(buf.Len()) != pixelOffset {
		return fmt.Errorf("geotiff: layout mismatch, %d != %d", buf.Len(), pixelOffset)
	}
	row := make([]byte, rowBytes)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			binary.LittleEndian.PutUint32(row[4*x:], math.Float32bits(r.Data[y*r.Width+x]))
		}
		buf.Write(row)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile writes the raster to path
func WriteFile(path string, r *Raster) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = Write(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type entry struct {
	typ   uint16
	count uint32
	raw   []byte
}

// Decode parses a GeoTIFF written by Write, or any uncompressed
// single-band float32 strip GeoTIFF
func Decode(data []byte) (*Raster, error) {
	if len(data) < 8 {
		return nil, errors.New("geotiff: file too short")
	}
	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, errors.New("geotiff: not a TIFF file")
	}
	if order.Uint16(data[2:]) != 42 {
		return nil, errors.New("geotiff: bad magic number")
	}
	ifd := int(order.Uint32(data[4:]))
	if ifd+2 > len(data) {
		return nil, errors.New("geotiff: IFD out of range")
	}
	n := int(order.Uint16(data[ifd:]))
	if ifd+2+12*n > len(data) {
		return nil, errors.New("geotiff: IFD truncated")
	}
	entries := map[uint16]entry{}
	for i := 0; i < n; i++ {
		e := data[ifd+2+12*i:]
		tag := order.Uint16(e)
		typ := order.Uint16(e[2:])
		count := order.Uint32(e[4:])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := size * int(count)
		var raw []byte
		if total <= 4 {
			raw = e[8 : 8+total]
		} else {
			offset := int(order.Uint32(e[8:]))
			if offset+total > len(data) {
				return nil, fmt.Errorf("geotiff: tag %d out of range", tag)
			}
			raw = data[offset : offset+total]
		}
		entries[tag] = entry{typ: typ, count: count, raw: raw}
	}

	ints := func(tag uint16) []int {
		e, ok := entries[tag]
		if !ok {
			return nil
		}
		out := make([]int, e.count)
		for i := range out {
			switch e.typ {
			case typeShort:
				out[i] = int(order.Uint16(e.raw[2*i:]))
			case typeLong:
				out[i] = int(order.Uint32(e.raw[4*i:]))
			}
		}
		return out
	}
	floats := func(tag uint16) []float64 {
		e, ok := entries[tag]
		if !ok || e.typ != typeDouble {
			return nil
		}
		out := make([]float64, e.count)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(e.raw[8*i:]))
		}
		return out
	}
	first := func(tag uint16, fallback int) int {
		if values := ints(tag); len(values) > 0 {
			return values[0]
		}
		return fallback
	}

	width, height := first(tagImageWidth, 0), first(tagImageLength, 0)
	if width <= 0 || height <= 0 {
		return nil, errors.New("geotiff: missing dimensions")
	}
	if first(tagBitsPerSample, 1) != 32 || first(tagSampleFormat, 1) != sampleFormatFloat ||
		first(tagCompression, 1) != 1 || first(tagSamplesPerPixel, 1) != 1 {
		return nil, ErrNotSupported
	}
	stripOffsets, stripCounts := ints(tagStripOffsets), ints(tagStripByteCounts)
	if len(stripOffsets) == 0 || len(stripOffsets) != len(stripCounts) {
		return nil, ErrNotSupported
	}

	// every pixel is stored in data, which bounds the size before allocating
	if width > len(data)/4/height {
		return nil, fmt.Errorf("geotiff: %dx%d pixels do not fit in %d bytes", width, height, len(data))
	}
	size := width * height * 4
	stored := 0
	for i, offset := range stripOffsets {
		if offset+stripCounts[i] > len(data) {
			return nil, errors.New("geotiff: strip out of range")
		}
		stored += stripCounts[i]
	}
	if stored < size {
		return nil, errors.New("geotiff: not enough pixel data")
	}

	pixels := make([]byte, 0, stored)
	for i, offset := range stripOffsets {
		pixels = append(pixels, data[offset:offset+stripCounts[i]]...)
	}

	raster := &Raster{Width: width, Height: height, Data: make([]float32, width*height)}
	for i := range raster.Data {
		raster.Data[i] = math.Float32frombits(order.Uint32(pixels[4*i:]))
	}
	if scale := floats(tagModelPixelScale); len(scale) >= 2 {
		raster.Transform.PixelWidth, raster.Transform.PixelHeight = scale[0], scale[1]
	}
	if tie := floats(tagModelTiepoint); len(tie) >= 6 {
		raster.Transform.OriginX = tie[3] - tie[0]*raster.Transform.PixelWidth
		raster.Transform.OriginY = tie[4] + tie[1]*raster.Transform.PixelHeight
	}
	return raster, nil
}

// ReadFile decodes the GeoTIFF at path
func ReadFile(path string) (*Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raster, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raster, nil
}
