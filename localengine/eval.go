package localengine

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/model"
)

// metersPerDegree is the length of one degree of latitude
const metersPerDegree = 111320.0

type band struct {
	name string
	data []float64
}

type imageValue struct {
	grid      Grid
	bands     []band
	props     map[string]interface{}
	footprint model.Region
}

func (img *imageValue) band(name string) (band, bool) {
	for _, b := range img.bands {
		if b.name == name {
			return b, true
		}
	}
	return band{}, false
}

func (img *imageValue) bandNames() []string {
	names := make([]string, len(img.bands))
	for i, b := range img.bands {
		names[i] = b.name
	}
	return names
}

func (img *imageValue) derive(bands []band) *imageValue {
	return &imageValue{grid: img.grid, bands: bands, props: img.props, footprint: img.footprint}
}

type collectionValue struct {
	id     string
	grid   Grid
	images []*imageValue
	// band names of an element, known even when images is empty
	schema []string
}

type dateRange struct {
	start time.Time
	end   time.Time
}

type filterValue func(*imageValue) bool

type closure struct {
	params []string
	body   *ee.Node
	env    map[string]interface{}
}

type evaluator struct {
	catalog *Catalog
}

type handler func(e *evaluator, args map[string]interface{}) (interface{}, error)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"ImageCollection.load":           loadCollection,
		"Collection.filter":              filterCollection,
		"Collection.map":                 mapCollection,
		"Filter.intersects":              filterIntersects,
		"Filter.dateRangeContains":       filterDateRange,
		"Filter.lessThan":                filterLessThan,
		"DateRange":                      makeDateRange,
		"Date":                           makeDate,
		"GeometryConstructors.Rectangle": makeRectangle,
		"Image.normalizedDifference":     normalizedDifference,
		"Image.rename":                   renameBands,
		"Image.addBands":                 addBands,
		"Image.select":                   selectBands,
		"reduce.median":                  medianReduce,
		"Image.clip":                     clipImage,
		"Image.clipToBoundsAndScale":     clipToBoundsAndScale,
	}
}

func (e *evaluator) eval(n *ee.Node, env map[string]interface{}) (interface{}, error) {
	if n == nil {
		return nil, fmt.Errorf("missing value")
	}
	switch n.Kind() {
	case ee.ConstantKind:
		return normalize(n.Value())
	case ee.ArgumentKind:
		value, ok := env[n.ArgumentName()]
		if !ok {
			return nil, fmt.Errorf("unbound argument %q", n.ArgumentName())
		}
		return value, nil
	case ee.ArrayKind:
		out := make([]interface{}, len(n.Items()))
		for i, item := range n.Items() {
			var err error
			if out[i], err = e.eval(item, env); err != nil {
				return nil, err
			}
		}
		return out, nil
	case ee.DictionaryKind:
		out := map[string]interface{}{}
		for _, name := range n.ArgNames() {
			var err error
			if out[name], err = e.eval(n.Arg(name), env); err != nil {
				return nil, err
			}
		}
		return out, nil
	case ee.FunctionKind:
		return &closure{params: n.Params(), body: n.Body(), env: env}, nil
	case ee.InvocationKind:
		h, ok := handlers[n.FunctionName()]
		if !ok {
			return nil, fmt.Errorf("unsupported function %s", n.FunctionName())
		}
		args := map[string]interface{}{}
		for _, name := range n.ArgNames() {
			value, err := e.eval(n.Arg(name), env)
			if err != nil {
				return nil, err
			}
			args[name] = value
		}
		out, err := h(e, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.FunctionName(), err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown node kind %d", n.Kind())
}

func (e *evaluator) call(fn *closure, args ...interface{}) (interface{}, error) {
	if len(args) != len(fn.params) {
		return nil, fmt.Errorf("function takes %d arguments, got %d", len(fn.params), len(args))
	}
	env := make(map[string]interface{}, len(fn.env)+len(args))
	for k, v := range fn.env {
		env[k] = v
	}
	for i, name := range fn.params {
		env[name] = args[i]
	}
	return e.eval(fn.body, env)
}

// normalize gives literals the shapes JSON decoding produces, so graphs
// built in-process and graphs decoded from the wire evaluate the same
func normalize(value interface{}) (interface{}, error) {
	switch value.(type) {
	case nil, string, float64, bool:
		return value, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out interface{}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func argImage(args map[string]interface{}, name string) (*imageValue, error) {
	img, ok := args[name].(*imageValue)
	if !ok {
		return nil, fmt.Errorf("argument %q is not an image", name)
	}
	return img, nil
}

func argCollection(args map[string]interface{}, name string) (*collectionValue, error) {
	c, ok := args[name].(*collectionValue)
	if !ok {
		return nil, fmt.Errorf("argument %q is not a collection", name)
	}
	return c, nil
}

func argGeometry(args map[string]interface{}, name string) (model.Region, error) {
	region, ok := args[name].(model.Region)
	if !ok {
		return model.Region{}, fmt.Errorf("argument %q is not a geometry", name)
	}
	return region, nil
}

func argString(args map[string]interface{}, name string) (string, error) {
	s, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("argument %q is not a string", name)
	}
	return s, nil
}

func argNumber(args map[string]interface{}, name string) (float64, error) {
	f, ok := args[name].(float64)
	if !ok {
		return 0, fmt.Errorf("argument %q is not a number", name)
	}
	return f, nil
}

func argStrings(args map[string]interface{}, name string) ([]string, error) {
	raw, ok := args[name].([]interface{})
	if !ok {
		return nil, fmt.Errorf("argument %q is not a list", name)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		if out[i], ok = item.(string); !ok {
			return nil, fmt.Errorf("argument %q item %d is not a string", name, i)
		}
	}
	return out, nil
}

func loadCollection(e *evaluator, args map[string]interface{}) (interface{}, error) {
	id, err := argString(args, "id")
	if err != nil {
		return nil, err
	}
	source, ok := e.catalog.Get(id)
	if !ok {
		return nil, fmt.Errorf("collection %q not found", id)
	}
	out := &collectionValue{id: id, grid: source.Grid, schema: append([]string(nil), source.BandNames...)}
	for _, scene := range source.Scenes {
		img := &imageValue{
			grid:      source.Grid,
			footprint: scene.Footprint,
			props: map[string]interface{}{
				"system:index":       scene.ID,
				ee.TimeStartProperty: float64(scene.Acquired.UnixMilli()),
			},
		}
		for k, v := range scene.Properties {
			img.props[k] = v
		}
		for _, name := range source.BandNames {
			img.bands = append(img.bands, band{name: name, data: scene.Bands[name]})
		}
		out.images = append(out.images, img)
	}
	return out, nil
}

func filterCollection(e *evaluator, args map[string]interface{}) (interface{}, error) {
	c, err := argCollection(args, "collection")
	if err != nil {
		return nil, err
	}
	keep, ok := args["filter"].(filterValue)
	if !ok {
		return nil, fmt.Errorf("argument \"filter\" is not a filter")
	}
	out := &collectionValue{id: c.id, grid: c.grid, schema: c.schema}
	for _, img := range c.images {
		if keep(img) {
			out.images = append(out.images, img)
		}
	}
	return out, nil
}

func mapCollection(e *evaluator, args map[string]interface{}) (interface{}, error) {
	c, err := argCollection(args, "collection")
	if err != nil {
		return nil, err
	}
	fn, ok := args["baseAlgorithm"].(*closure)
	if !ok {
		return nil, fmt.Errorf("argument \"baseAlgorithm\" is not a function")
	}
	out := &collectionValue{id: c.id, grid: c.grid}
	for _, img := range c.images {
		result, err := e.call(fn, img)
		if err != nil {
			return nil, err
		}
		mapped, ok := result.(*imageValue)
		if !ok {
			return nil, fmt.Errorf("mapped function must return an image")
		}
		out.images = append(out.images, mapped)
	}
	if len(out.images) > 0 {
		out.schema = out.images[0].bandNames()
		return out, nil
	}

	// run the function on an empty template to learn the output bands
	template := &imageValue{grid: c.grid, props: map[string]interface{}{}, footprint: c.grid.Bounds()}
	for _, name := range c.schema {
		template.bands = append(template.bands, band{name: name, data: nanBand(c.grid)})
	}
	result, err := e.call(fn, template)
	if err != nil {
		return nil, err
	}
	if mapped, ok := result.(*imageValue); ok {
		out.schema = mapped.bandNames()
	}
	return out, nil
}

func filterIntersects(e *evaluator, args map[string]interface{}) (interface{}, error) {
	field, err := argString(args, "leftField")
	if err != nil {
		return nil, err
	}
	if field != ".all" {
		return nil, fmt.Errorf("only the .all footprint is supported, got %q", field)
	}
	region, err := argGeometry(args, "rightValue")
	if err != nil {
		return nil, err
	}
	return filterValue(func(img *imageValue) bool {
		return img.footprint.Intersects(region)
	}), nil
}

func filterDateRange(e *evaluator, args map[string]interface{}) (interface{}, error) {
	window, ok := args["leftValue"].(dateRange)
	if !ok {
		return nil, fmt.Errorf("argument \"leftValue\" is not a date range")
	}
	field, err := argString(args, "rightField")
	if err != nil {
		return nil, err
	}
	start, end := window.start.UnixMilli(), window.end.UnixMilli()
	return filterValue(func(img *imageValue) bool {
		millis, ok := img.props[field].(float64)
		return ok && int64(millis) >= start && int64(millis) < end
	}), nil
}

func filterLessThan(e *evaluator, args map[string]interface{}) (interface{}, error) {
	field, err := argString(args, "leftField")
	if err != nil {
		return nil, err
	}
	limit, err := argNumber(args, "rightValue")
	if err != nil {
		return nil, err
	}
	return filterValue(func(img *imageValue) bool {
		value, ok := img.props[field].(float64)
		return ok && value < limit
	}), nil
}

func toTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case string:
		return model.ParseDate(v)
	}
	return time.Time{}, fmt.Errorf("%v is not a date", value)
}

func makeDate(e *evaluator, args map[string]interface{}) (interface{}, error) {
	return toTime(args["value"])
}

func makeDateRange(e *evaluator, args map[string]interface{}) (interface{}, error) {
	start, err := toTime(args["start"])
	if err != nil {
		return nil, err
	}
	end, err := toTime(args["end"])
	if err != nil {
		return nil, err
	}
	return dateRange{start: start, end: end}, nil
}

func makeRectangle(e *evaluator, args map[string]interface{}) (interface{}, error) {
	var flat []float64
	var collect func(interface{}) error
	collect = func(v interface{}) error {
		switch x := v.(type) {
		case float64:
			flat = append(flat, x)
		case []interface{}:
			for _, item := range x {
				if err := collect(item); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("bad coordinate %v", v)
		}
		return nil
	}
	if err := collect(args["coordinates"]); err != nil {
		return nil, err
	}
	if len(flat) != 4 {
		return nil, fmt.Errorf("rectangle needs 4 numbers, got %d", len(flat))
	}
	region := model.Region{
		West:  math.Min(flat[0], flat[2]),
		South: math.Min(flat[1], flat[3]),
		East:  math.Max(flat[0], flat[2]),
		North: math.Max(flat[1], flat[3]),
	}
	return region, region.Valid()
}

func nanBand(grid Grid) []float64 {
	data := make([]float64, grid.Pixels())
	for i := range data {
		data[i] = math.NaN()
	}
	return data
}

func normalizedDifference(e *evaluator, args map[string]interface{}) (interface{}, error) {
	img, err := argImage(args, "input")
	if err != nil {
		return nil, err
	}
	names := img.bandNames()
	if _, ok := args["bandNames"]; ok {
		if names, err = argStrings(args, "bandNames"); err != nil {
			return nil, err
		}
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("need two bands, got %v", names)
	}
	first, ok := img.band(names[0])
	if !ok {
		return nil, fmt.Errorf("band %q not found", names[0])
	}
	second, ok := img.band(names[1])
	if !ok {
		return nil, fmt.Errorf("band %q not found", names[1])
	}
	out := make([]float64, len(first.data))
	for i := range out {
		a, b := first.data[i], second.data[i]
		if sum := a + b; sum != 0 {
			out[i] = (a - b) / sum
		} else {
			out[i] = math.NaN()
		}
	}
	return img.derive([]band{{name: "nd", data: out}}), nil
}

func renameBands(e *evaluator, args map[string]interface{}) (interface{}, error) {
	img, err := argImage(args, "input")
	if err != nil {
		return nil, err
	}
	names, err := argStrings(args, "names")
	if err != nil {
		return nil, err
	}
	if len(names) != len(img.bands) {
		return nil, fmt.Errorf("%d names for %d bands", len(names), len(img.bands))
	}
	bands := make([]band, len(names))
	for i, b := range img.bands {
		bands[i] = band{name: names[i], data: b.data}
	}
	return img.derive(bands), nil
}

func addBands(e *evaluator, args map[string]interface{}) (interface{}, error) {
	dst, err := argImage(args, "dstImg")
	if err != nil {
		return nil, err
	}
	src, err := argImage(args, "srcImg")
	if err != nil {
		return nil, err
	}
	overwrite, _ := args["overwrite"].(bool)
	bands := append([]band(nil), dst.bands...)
	for _, b := range src.bands {
		replaced := false
		for i := range bands {
			if bands[i].name == b.name {
				if !overwrite {
					return nil, fmt.Errorf("band %q already exists", b.name)
				}
				bands[i] = b
				replaced = true
			}
		}
		if !replaced {
			bands = append(bands, b)
		}
	}
	return dst.derive(bands), nil
}

func selectBands(e *evaluator, args map[string]interface{}) (interface{}, error) {
	img, err := argImage(args, "input")
	if err != nil {
		return nil, err
	}
	selectors, err := argStrings(args, "bandSelectors")
	if err != nil {
		return nil, err
	}
	bands := make([]band, 0, len(selectors))
	for _, name := range selectors {
		b, ok := img.band(name)
		if !ok {
			return nil, fmt.Errorf("pattern %q did not match any bands", name)
		}
		bands = append(bands, b)
	}
	return img.derive(bands), nil
}

// medianReduce ignores no-data; a pixel with no valid samples stays no-data.
// For an even count the two middle values are averaged.
func medianReduce(e *evaluator, args map[string]interface{}) (interface{}, error) {
	c, err := argCollection(args, "collection")
	if err != nil {
		return nil, err
	}
	out := &imageValue{grid: c.grid, props: map[string]interface{}{}, footprint: c.grid.Bounds()}
	samples := make([]float64, 0, len(c.images))
	for _, name := range c.schema {
		data := make([]float64, c.grid.Pixels())
		sources := make([][]float64, 0, len(c.images))
		for _, img := range c.images {
			if b, ok := img.band(name); ok {
				sources = append(sources, b.data)
			}
		}
		for i := range data {
			samples = samples[:0]
			for _, src := range sources {
				if v := src[i]; !math.IsNaN(v) {
					samples = append(samples, v)
				}
			}
			data[i] = median(samples)
		}
		out.bands = append(out.bands, band{name: name, data: data})
	}
	return out, nil
}

func median(values []float64) float64 {
	switch len(values) {
	case 0:
		return math.NaN()
	case 1:
		return values[0]
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid]
	}
	return (values[mid-1] + values[mid]) / 2
}

func clipImage(e *evaluator, args map[string]interface{}) (interface{}, error) {
	img, err := argImage(args, "input")
	if err != nil {
		return nil, err
	}
	region, err := argGeometry(args, "geometry")
	if err != nil {
		return nil, err
	}
	inside := make([]bool, img.grid.Pixels())
	for i := range inside {
		lon, lat := img.grid.Center(i%img.grid.Width, i/img.grid.Width)
		inside[i] = region.Contains(lon, lat)
	}
	bands := make([]band, len(img.bands))
	for j, b := range img.bands {
		data := make([]float64, len(b.data))
		for i, v := range b.data {
			if inside[i] {
				data[i] = v
			} else {
				data[i] = math.NaN()
			}
		}
		bands[j] = band{name: b.name, data: data}
	}
	clipped := img.derive(bands)
	if footprint, ok := img.footprint.Intersection(region); ok {
		clipped.footprint = footprint
	} else {
		clipped.footprint = model.Region{}
	}
	return clipped, nil
}

// scaledGrid covers region with pixels of scale meters, measured at the
// region's center latitude
func scaledGrid(region model.Region, scale float64) Grid {
	_, lat := region.Center()
	pixelHeight := scale / metersPerDegree
	pixelWidth := scale / (metersPerDegree * math.Cos(lat*math.Pi/180))
	return Grid{
		West:        region.West,
		North:       region.North,
		PixelWidth:  pixelWidth,
		PixelHeight: pixelHeight,
		Width:       int(math.Ceil((region.East-region.West)/pixelWidth - 1e-9)),
		Height:      int(math.Ceil((region.North-region.South)/pixelHeight - 1e-9)),
	}
}

func clipToBoundsAndScale(e *evaluator, args map[string]interface{}) (interface{}, error) {
	img, err := argImage(args, "input")
	if err != nil {
		return nil, err
	}
	region, err := argGeometry(args, "geometry")
	if err != nil {
		return nil, err
	}
	scale, err := argNumber(args, "scale")
	if err != nil {
		return nil, err
	}
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive, got %v", scale)
	}
	target := scaledGrid(region, scale)
	lookup := make([]int, target.Pixels())
	for i := range lookup {
		lon, lat := target.Center(i%target.Width, i/target.Width)
		if x, y, ok := img.grid.Index(lon, lat); ok {
			lookup[i] = y*img.grid.Width + x
		} else {
			lookup[i] = -1
		}
	}
	bands := make([]band, len(img.bands))
	for j, b := range img.bands {
		data := make([]float64, len(lookup))
		for i, src := range lookup {
			if src < 0 {
				data[i] = math.NaN()
			} else {
				data[i] = b.data[src]
			}
		}
		bands[j] = band{name: b.name, data: data}
	}
	return &imageValue{grid: target, bands: bands, props: img.props, footprint: region}, nil
}
