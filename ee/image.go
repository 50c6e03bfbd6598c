package ee

import (
	"fmt"
	"time"

	"github.com/NoobML/ndvi-anomaly-detection/model"
)

// TimeStartProperty is the acquisition timestamp property of every image
const TimeStartProperty = "system:time_start"

// Geometry is a lazy server-side geometry
type Geometry struct{ node *Node }

// Rectangle is a planar rectangle given by its corners in degrees
func Rectangle(region model.Region) Geometry {
	return Geometry{Invoke("GeometryConstructors.Rectangle", map[string]*Node{
		"coordinates": Constant([][]float64{{region.West, region.South}, {region.East, region.North}}),
		"geodesic":    Constant(false),
	})}
}

// Node returns the underlying graph node
func (g Geometry) Node() *Node { return g.node }

// Date is a lazy server-side timestamp
type Date struct{ node *Node }

// NewDate creates a server-side date from a wall-clock time
func NewDate(t time.Time) Date {
	return Date{Invoke("Date", map[string]*Node{"value": Constant(t.UnixMilli())})}
}

// Node returns the underlying graph node
func (d Date) Node() *Node { return d.node }

// DateRange is the half-open interval [start, end)
func DateRange(start, end time.Time) *Node {
	return Invoke("DateRange", map[string]*Node{
		"start": NewDate(start).node,
		"end":   NewDate(end).node,
	})
}

// Filter is a lazy predicate over collection elements
type Filter struct{ node *Node }

// Node returns the underlying graph node
func (f Filter) Node() *Node { return f.node }

// FilterBounds keeps elements whose footprint intersects the geometry
func FilterBounds(geometry Geometry) Filter {
	return Filter{Invoke("Filter.intersects", map[string]*Node{
		"leftField":  Constant(".all"),
		"rightValue": geometry.node,
	})}
}

// FilterDate keeps elements acquired in [start, end)
func FilterDate(start, end time.Time) Filter {
	return Filter{Invoke("Filter.dateRangeContains", map[string]*Node{
		"leftValue":  DateRange(start, end),
		"rightField": Constant(TimeStartProperty),
	})}
}

// FilterLessThan keeps elements whose property is strictly below value
func FilterLessThan(property string, value float64) Filter {
	return Filter{Invoke("Filter.lessThan", map[string]*Node{
		"leftField":  Constant(property),
		"rightValue": Constant(value),
	})}
}

// ImageCollection is a lazy server-side collection of images
type ImageCollection struct{ node *Node }

// LoadImageCollection refers to a catalog collection by ID
func LoadImageCollection(id string) ImageCollection {
	return ImageCollection{Invoke("ImageCollection.load", map[string]*Node{"id": Constant(id)})}
}

// Node returns the underlying graph node
func (c ImageCollection) Node() *Node { return c.node }

// Filter narrows the collection
func (c ImageCollection) Filter(filter Filter) ImageCollection {
	return ImageCollection{Invoke("Collection.filter", map[string]*Node{
		"collection": c.node,
		"filter":     filter.node,
	})}
}

// FilterBounds is shorthand for Filter(FilterBounds(geometry))
func (c ImageCollection) FilterBounds(geometry Geometry) ImageCollection {
	return c.Filter(FilterBounds(geometry))
}

// FilterDate is shorthand for Filter(FilterDate(start, end))
func (c ImageCollection) FilterDate(start, end time.Time) ImageCollection {
	return c.Filter(FilterDate(start, end))
}

// Map applies fn to every image on the server. fn is called once, locally,
// to build the function body.
func (c ImageCollection) Map(fn func(Image) Image) ImageCollection {
	arg := Argument("")
	body := fn(Image{arg}).node
	arg.name = fmt.Sprintf("_MAPPING_VAR_%d_0", functionDepth(body, map[*Node]int{}))
	return ImageCollection{Invoke("Collection.map", map[string]*Node{
		"collection":    c.node,
		"baseAlgorithm": Function([]string{arg.name}, body),
	})}
}

// Median reduces the collection to its per-pixel, per-band median
func (c ImageCollection) Median() Image {
	return Image{Invoke("reduce.median", map[string]*Node{"collection": c.node})}
}

// Image is a lazy server-side image
type Image struct{ node *Node }

// Node returns the underlying graph node
func (i Image) Node() *Node { return i.node }

// NormalizedDifference computes (first - second) / (first + second) into
// a band named "nd"
func (i Image) NormalizedDifference(first, second string) Image {
	return Image{Invoke("Image.normalizedDifference", map[string]*Node{
		"input":     i.node,
		"bandNames": Constant([]string{first, second}),
	})}
}

// Rename renames bands in order
func (i Image) Rename(names ...string) Image {
	return Image{Invoke("Image.rename", map[string]*Node{
		"input": i.node,
		"names": Constant(names),
	})}
}

// AddBands appends the bands of src
func (i Image) AddBands(src Image) Image {
	return Image{Invoke("Image.addBands", map[string]*Node{
		"dstImg": i.node,
		"srcImg": src.node,
	})}
}

// Select keeps only the named bands
func (i Image) Select(bands ...string) Image {
	return Image{Invoke("Image.select", map[string]*Node{
		"input":         i.node,
		"bandSelectors": Constant(bands),
	})}
}

// Clip masks everything outside the geometry
func (i Image) Clip(geometry Geometry) Image {
	return Image{Invoke("Image.clip", map[string]*Node{
		"input":    i.node,
		"geometry": geometry.node,
	})}
}

// ClipToBoundsAndScale clips to the geometry's bounds and resamples to
// scale meters per pixel
func (i Image) ClipToBoundsAndScale(geometry Geometry, scale float64) Image {
	return Image{Invoke("Image.clipToBoundsAndScale", map[string]*Node{
		"input":    i.node,
		"geometry": geometry.node,
		"scale":    Constant(scale),
	})}
}

// VisParams is a single-band color ramp
type VisParams struct {
	Min     float64  `yaml:"min" json:"min"`
	Max     float64  `yaml:"max" json:"max" validate:"gtfield=Min"`
	Palette []string `yaml:"palette" json:"palette" validate:"min=2"`
}

// Visualize renders the image to RGB with the given ramp
func (i Image) Visualize(vis VisParams) Image {
	return Image{Invoke("Image.visualize", map[string]*Node{
		"image":   i.node,
		"min":     Constant(vis.Min),
		"max":     Constant(vis.Max),
		"palette": Constant(vis.Palette),
	})}
}
