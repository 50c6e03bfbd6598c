package anomaly

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/NoobML/ndvi-anomaly-detection/render"
)

// Stack is a time series of co-registered single-band rasters
type Stack struct {
	Names  []string
	Layers []*geotiff.Raster
}

// NewStack checks that every layer has the same size
func NewStack(names []string, layers []*geotiff.Raster) (*Stack, error) {
	if len(layers) == 0 {
		return nil, errors.New("stack has no layers")
	}
	if len(names) != len(layers) {
		return nil, fmt.Errorf("%d names for %d layers", len(names), len(layers))
	}
	for i, layer := range layers[1:] {
		if layer.Width != layers[0].Width || layer.Height != layers[0].Height {
			return nil, fmt.Errorf("%s is %dx%d, %s is %dx%d", names[i+1], layer.Width, layer.Height,
				names[0], layers[0].Width, layers[0].Height)
		}
	}
	return &Stack{Names: names, Layers: layers}, nil
}

// LoadStack reads every GeoTIFF in dir, ordered by file name
func LoadStack(dir string) (*Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !entry.IsDir() && (ext == ".tif" || ext == ".tiff") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no GeoTIFF files in %s", dir)
	}
	layers := make([]*geotiff.Raster, len(names))
	for i, name := range names {
		if layers[i], err = geotiff.ReadFile(filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return NewStack(names, layers)
}

// Width of every layer
func (s *Stack) Width() int { return s.Layers[0].Width }

// Height of every layer
func (s *Stack) Height() int { return s.Layers[0].Height }

// Len is the number of layers
func (s *Stack) Len() int { return len(s.Layers) }

// ReplaceFirst returns a stack of the first months layers whose first
// layer is r
func (s *Stack) ReplaceFirst(name string, r *geotiff.Raster, months int) (*Stack, error) {
	if months < 1 || months > s.Len() {
		return nil, fmt.Errorf("need %d months, stack has %d", months, s.Len())
	}
	names := append([]string{name}, s.Names[1:months]...)
	layers := append([]*geotiff.Raster{r}, s.Layers[1:months]...)
	return NewStack(names, layers)
}

// Rows returns one row per pixel with one value per layer. Pixels with
// any no-data value get a nil row.
func (s *Stack) Rows() [][]float64 {
	pixels := s.Width() * s.Height()
	rows := make([][]float64, pixels)
	for p := 0; p < pixels; p++ {
		row := make([]float64, s.Len())
		for t, layer := range s.Layers {
			v := float64(layer.Data[p])
			if math.IsNaN(v) {
				row = nil
				break
			}
			row[t] = v
		}
		rows[p] = row
	}
	return rows
}

// Map is a per-pixel label raster of Anomaly, Normal, or NoData
type Map struct {
	Width     int
	Height    int
	Labels    []int
	Transform geotiff.GeoTransform
}

// Counts tallies each label
func (m *Map) Counts() (anomalies, normal, noData int) {
	for _, label := range m.Labels {
		switch label {
		case Anomaly:
			anomalies++
		case Normal:
			normal++
		default:
			noData++
		}
	}
	return
}

// Raster returns the labels as float values
func (m *Map) Raster() *geotiff.Raster {
	r := geotiff.NewRaster(m.Width, m.Height, m.Transform)
	for i, label := range m.Labels {
		r.Data[i] = float32(label)
	}
	return r
}

// PNG renders the map on a blue-white-red ramp
func (m *Map) PNG() ([]byte, error) {
	return render.CoolWarm().PNG(m.Raster())
}

// Train fits a forest on every pixel without no-data
func Train(stack *Stack, opts Options) (*Forest, error) {
	var samples [][]float64
	for _, row := range stack.Rows() {
		if row != nil {
			samples = append(samples, row)
		}
	}
	if len(samples) == 0 {
		return nil, errors.New("every pixel has no-data in at least one month")
	}
	return Fit(samples, opts)
}

// TrainOrLoad loads the model at path if it exists, otherwise fits one on
// the stack and saves it there
func TrainOrLoad(path string, stack *Stack, opts Options) (*Forest, bool, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := Load(path)
		return f, true, err
	}
	f, err := Train(stack, opts)
	if err != nil {
		return nil, false, err
	}
	return f, false, f.Save(path)
}

// Detect labels every pixel of the stack
func (f *Forest) Detect(stack *Stack) (*Map, error) {
	if stack.Len() != f.Features {
		return nil, fmt.Errorf("model expects %d months, stack has %d", f.Features, stack.Len())
	}
	rows := stack.Rows()
	m := &Map{Width: stack.Width(), Height: stack.Height(), Labels: make([]int, len(rows)), Transform: stack.Layers[0].Transform}
	for i, row := range rows {
		if row == nil {
			m.Labels[i] = NoData
			continue
		}
		m.Labels[i] = f.Predict(row)
	}
	return m, nil
}
