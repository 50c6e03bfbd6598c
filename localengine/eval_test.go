package localengine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "TEST/S2_SR"

var testRegion = model.Region{West: 73.95, South: 31.05, East: 73.96, North: 31.06}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.Add(6 * time.Hour)
}

func uniformScene(grid Grid, id string, acquired time.Time, cloud, nir, red float64) Scene {
	bands := map[string][]float64{}
	for name, value := range map[string]float64{"B2": 0.05, "B3": 0.07, "B4": red, "B8": nir} {
		data := make([]float64, grid.Pixels())
		for i := range data {
			data[i] = value
		}
		bands[name] = data
	}
	return Scene{
		ID:         id,
		Acquired:   acquired,
		Properties: map[string]float64{CloudProperty: cloud},
		Footprint:  grid.Bounds(),
		Bands:      bands,
	}
}

func testCatalog(t *testing.T, scenes ...func(Grid) Scene) *Catalog {
	grid := GridFor(testRegion, 0.001)
	collection := &Collection{ID: testCollection, Grid: grid, BandNames: []string{"B2", "B3", "B4", "B8"}}
	for _, scene := range scenes {
		require.NoError(t, collection.Add(scene(grid)))
	}
	catalog := NewCatalog()
	catalog.Put(collection)
	return catalog
}

func scene(id, day string, cloud, nir, red float64) func(Grid) Scene {
	return func(grid Grid) Scene {
		return uniformScene(grid, id, date(day), cloud, nir, red)
	}
}

func addNDVI(image ee.Image) ee.Image {
	return image.AddBands(image.NormalizedDifference("B8", "B4").Rename("NDVI"))
}

func monthlyNDVI(start, end time.Time) ee.Image {
	rect := ee.Rectangle(testRegion)
	return ee.LoadImageCollection(testCollection).
		FilterBounds(rect).
		FilterDate(start, end).
		Filter(ee.FilterLessThan(CloudProperty, 40)).
		Map(addNDVI).
		Median().
		Select("NDVI").
		Clip(rect)
}

func evaluate(t *testing.T, catalog *Catalog, node *ee.Node) *imageValue {
	value, err := (&evaluator{catalog: catalog}).eval(node, nil)
	require.NoError(t, err)
	img, ok := value.(*imageValue)
	require.True(t, ok, "got %T", value)
	return img
}

func TestMedian(t *testing.T) {
	assert.True(t, math.IsNaN(median(nil)))
	assert.Equal(t, 3.0, median([]float64{3}))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

func TestEvaluate_MonthlyComposite(t *testing.T) {
	// Mock
	catalog := testCatalog(t,
		scene("a", "2023-01-05", 10, 0.5, 0.1),
		scene("b", "2023-01-10", 20, 0.4, 0.2),
		scene("c", "2023-01-15", 5, 0.6, 0.1),
		scene("next", "2023-02-03", 0, 0.9, 0.01),
	)

	// Tested code
	img := evaluate(t, catalog, monthlyNDVI(date("2023-01-01"), date("2023-02-01")).Node())

	// Asserts
	require.Equal(t, []string{"NDVI"}, img.bandNames())
	expected := median([]float64{0.4 / 0.6, 0.2 / 0.6, 0.5 / 0.7})
	for _, v := range img.bands[0].data {
		assert.InDelta(t, expected, v, 1e-9)
	}
}

func TestEvaluate_CloudThresholdIsStrict(t *testing.T) {
	// Mock
	catalog := testCatalog(t,
		scene("clear-enough", "2023-01-05", 39.9, 0.5, 0.1),
		scene("too-cloudy", "2023-01-06", 40, 0.1, 0.5),
	)

	// Tested code
	img := evaluate(t, catalog, monthlyNDVI(date("2023-01-01"), date("2023-02-01")).Node())

	// Asserts
	for _, v := range img.bands[0].data {
		assert.InDelta(t, 0.4/0.6, v, 1e-9)
	}
}

func TestEvaluate_EmptyMonthIsNoData(t *testing.T) {
	// Mock
	catalog := testCatalog(t, scene("jan", "2023-01-05", 0, 0.5, 0.1))

	// Tested code
	img := evaluate(t, catalog, monthlyNDVI(date("2023-02-01"), date("2023-03-01")).Node())

	// Asserts
	require.Equal(t, []string{"NDVI"}, img.bandNames())
	for _, v := range img.bands[0].data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEvaluate_IndexIdempotentAndOrderIndependent(t *testing.T) {
	scenes := []func(Grid) Scene{
		scene("a", "2023-01-05", 10, 0.5, 0.1),
		scene("b", "2023-01-10", 20, 0.3, 0.2),
		scene("c", "2023-01-15", 5, 0.7, 0.05),
	}
	forward := testCatalog(t, scenes...)
	backward := testCatalog(t, scenes[2], scenes[1], scenes[0])
	image := monthlyNDVI(date("2023-01-01"), date("2023-02-01"))

	first := evaluate(t, forward, image.Node())
	again := evaluate(t, forward, image.Node())
	reversed := evaluate(t, backward, image.Node())

	assert.Equal(t, first.bands, again.bands)
	assert.Equal(t, first.bands, reversed.bands)
}

func TestEvaluate_DecodedExpressionMatches(t *testing.T) {
	// Mock
	catalog := testCatalog(t, scene("a", "2023-01-05", 10, 0.5, 0.1))
	image := monthlyNDVI(date("2023-01-01"), date("2023-02-01"))
	expr, err := ee.Encode(image.Node())
	require.NoError(t, err)
	decoded, err := ee.Decode(expr)
	require.NoError(t, err)

	// Tested code
	direct := evaluate(t, catalog, image.Node())
	wire := evaluate(t, catalog, decoded)

	// Asserts
	assert.Equal(t, direct.bands, wire.bands)
}

func TestEvaluate_NormalizedDifferenceZeroDenominator(t *testing.T) {
	catalog := testCatalog(t, scene("dark", "2023-01-05", 0, 0, 0))

	img := evaluate(t, catalog, monthlyNDVI(date("2023-01-01"), date("2023-02-01")).Node())

	for _, v := range img.bands[0].data {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEvaluate_ClipMasksOutside(t *testing.T) {
	// Mock
	catalog := testCatalog(t, scene("a", "2023-01-05", 0, 0.5, 0.1))
	west := model.Region{West: 73.95, South: 31.05, East: 73.955, North: 31.06}
	image := ee.LoadImageCollection(testCollection).Map(addNDVI).Median().Select("NDVI").Clip(ee.Rectangle(west))

	// Tested code
	img := evaluate(t, catalog, image.Node())

	// Asserts
	grid := img.grid
	for i, v := range img.bands[0].data {
		lon, lat := grid.Center(i%grid.Width, i/grid.Width)
		if west.Contains(lon, lat) {
			assert.False(t, math.IsNaN(v))
		} else {
			assert.True(t, math.IsNaN(v))
		}
	}
}

func TestEvaluate_ClipToBoundsAndScale(t *testing.T) {
	catalog := testCatalog(t, scene("a", "2023-01-05", 0, 0.5, 0.1))
	image := ee.LoadImageCollection(testCollection).Map(addNDVI).Median().Select("NDVI").
		ClipToBoundsAndScale(ee.Rectangle(testRegion), 10)

	img := evaluate(t, catalog, image.Node())

	assert.InDelta(t, 10/metersPerDegree, img.grid.PixelHeight, 1e-12)
	assert.Greater(t, img.grid.PixelWidth, img.grid.PixelHeight)
	assert.Equal(t, 112, img.grid.Height)
	assert.Equal(t, 96, img.grid.Width)
	for i, v := range img.bands[0].data {
		x, y := i%img.grid.Width, i/img.grid.Width
		if x < img.grid.Width-1 && y < img.grid.Height-1 {
			assert.InDelta(t, 0.4/0.6, v, 1e-9)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	catalog := testCatalog(t, scene("a", "2023-01-05", 0, 0.5, 0.1))
	base := ee.LoadImageCollection(testCollection).Median()

	tests := []struct {
		name  string
		node  *ee.Node
		error string
	}{
		{"missing collection", ee.LoadImageCollection("NOPE").Median().Node(), "not found"},
		{"missing band", base.Select("B99").Node(), "B99"},
		{"duplicate band", base.AddBands(base.Select("B8")).Node(), "already exists"},
		{"unsupported function", base.Visualize(ee.VisParams{Min: 0, Max: 1, Palette: []string{"red", "green"}}).Node(), "Image.visualize"},
		{"rename count", base.Rename("x").Node(), "names"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := (&evaluator{catalog: catalog}).eval(test.node, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.error)
		})
	}
}

func TestSyntheticCatalog(t *testing.T) {
	catalog, err := SyntheticCatalog(SyntheticOptions{
		CollectionID: testCollection,
		Region:       testRegion,
		Start:        date("2023-01-01"),
		End:          date("2023-03-01"),
		Seed:         7,
	})
	require.NoError(t, err)

	collection, ok := catalog.Get(testCollection)
	require.True(t, ok)
	assert.Len(t, collection.Scenes, 12)
	for i := 1; i < len(collection.Scenes); i++ {
		assert.True(t, collection.Scenes[i-1].Acquired.Before(collection.Scenes[i].Acquired))
	}

	engine := New(catalog, Options{OutputDir: t.TempDir()})
	defer engine.Close()
	raster, err := engine.Evaluate(context.Background(), monthlyNDVI(date("2023-01-01"), date("2023-02-01")))
	require.NoError(t, err)
	for _, v := range raster.Data {
		if !math.IsNaN(float64(v)) {
			assert.True(t, v >= -1 && v <= 1)
		}
	}
}
