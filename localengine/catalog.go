package localengine

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/NoobML/ndvi-anomaly-detection/model"
)

// CloudProperty is the per-scene cloud cover percentage
const CloudProperty = "CLOUDY_PIXEL_PERCENTAGE"

// Grid is a north-up raster grid in degrees
type Grid struct {
	West        float64
	North       float64
	PixelWidth  float64
	PixelHeight float64
	Width       int
	Height      int
}

// GridFor covers region with square-ish pixels of the given size in degrees
func GridFor(region model.Region, pixelDegrees float64) Grid {
	return Grid{
		West:        region.West,
		North:       region.North,
		PixelWidth:  pixelDegrees,
		PixelHeight: pixelDegrees,
		Width:       int(math.Ceil((region.East-region.West)/pixelDegrees - 1e-9)),
		Height:      int(math.Ceil((region.North-region.South)/pixelDegrees - 1e-9)),
	}
}

// Bounds is the area the grid covers
func (g Grid) Bounds() model.Region {
	return model.Region{
		West:  g.West,
		South: g.North - float64(g.Height)*g.PixelHeight,
		East:  g.West + float64(g.Width)*g.PixelWidth,
		North: g.North,
	}
}

// Pixels is the number of pixels in the grid
func (g Grid) Pixels() int64 {
	return int64(g.Width) * int64(g.Height)
}

// Center returns the lon, lat of the center of pixel (x, y)
func (g Grid) Center(x, y int) (float64, float64) {
	return g.West + (float64(x)+0.5)*g.PixelWidth, g.North - (float64(y)+0.5)*g.PixelHeight
}

// Index returns the pixel containing lon, lat, or false if outside
func (g Grid) Index(lon, lat float64) (int, int, bool) {
	x := int(math.Floor((lon - g.West) / g.PixelWidth))
	y := int(math.Floor((g.North - lat) / g.PixelHeight))
	if x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0, 0, false
	}
	return x, y, true
}

// Scene is one acquisition. Band values share the collection grid and use
// NaN for pixels outside the footprint.
type Scene struct {
	ID         string
	Acquired   time.Time
	Properties map[string]float64
	Footprint  model.Region
	Bands      map[string][]float64
}

// Collection is a catalog entry
type Collection struct {
	ID        string
	Grid      Grid
	BandNames []string
	Scenes    []Scene
}

// Add validates and appends a scene
func (c *Collection) Add(scene Scene) error {
	for _, name := range c.BandNames {
		data, ok := scene.Bands[name]
		if !ok {
			return fmt.Errorf("scene %s is missing band %s", scene.ID, name)
		}
		if int64(len(data)) != c.Grid.Pixels() {
			return fmt.Errorf("scene %s band %s has %d pixels, grid has %d", scene.ID, name, len(data), c.Grid.Pixels())
		}
	}
	c.Scenes = append(c.Scenes, scene)
	sort.SliceStable(c.Scenes, func(i, j int) bool { return c.Scenes[i].Acquired.Before(c.Scenes[j].Acquired) })
	return nil
}

// Catalog is a set of collections by ID
type Catalog struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{collections: map[string]*Collection{}}
}

// Put adds or replaces a collection
func (c *Catalog) Put(collection *Collection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections[collection.ID] = collection
}

// Get looks up a collection
func (c *Catalog) Get(id string) (*Collection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	collection, ok := c.collections[id]
	return collection, ok
}

// SyntheticOptions shapes a generated Sentinel-2-like collection
type SyntheticOptions struct {
	CollectionID string
	Region       model.Region
	PixelDegrees float64
	Start        time.Time
	End          time.Time
	RevisitDays  int
	Seed         int64
}

// SyntheticCatalog generates a deterministic collection of scenes over the
// region with B2, B3, B4 and B8 reflectances. Vegetation follows a seasonal
// cycle, cloud cover is random, and a few scenes only cover part of the
// region.
func SyntheticCatalog(opts SyntheticOptions) (*Catalog, error) {
	if opts.PixelDegrees <= 0 {
		opts.PixelDegrees = 0.001
	}
	if opts.RevisitDays <= 0 {
		opts.RevisitDays = 5
	}
	if err := opts.Region.Valid(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	grid := GridFor(opts.Region, opts.PixelDegrees)
	collection := &Collection{ID: opts.CollectionID, Grid: grid, BandNames: []string{"B2", "B3", "B4", "B8"}}

	// a fixed field pattern: some pixels are crops, some bare soil, some water
	landCover := make([]float64, grid.Pixels())
	for i := range landCover {
		x, y := i%grid.Width, i/grid.Width
		landCover[i] = 0.5 + 0.5*math.Sin(float64(x)/7)*math.Cos(float64(y)/5)
	}

	n := 0
	for day := opts.Start; day.Before(opts.End); day = day.AddDate(0, 0, opts.RevisitDays) {
		season := 0.5 + 0.5*math.Sin(2*math.Pi*(float64(day.YearDay())-80)/365)
		footprint := grid.Bounds()
		if rng.Float64() < 0.2 {
			// swath edge: only the western part is imaged
			footprint.East = footprint.West + (footprint.East-footprint.West)*(0.3+0.5*rng.Float64())
		}
		scene := Scene{
			ID:         fmt.Sprintf("%s_%04d", day.Format("20060102T150405"), n),
			Acquired:   day.Add(5*time.Hour + 50*time.Minute),
			Properties: map[string]float64{CloudProperty: math.Round(rng.Float64()*10000) / 100},
			Footprint:  footprint,
			Bands:      map[string][]float64{},
		}
		for _, name := range collection.BandNames {
			scene.Bands[name] = make([]float64, grid.Pixels())
		}
		for i := range landCover {
			lon, lat := grid.Center(i%grid.Width, i/grid.Width)
			if !footprint.Contains(lon, lat) {
				for _, name := range collection.BandNames {
					scene.Bands[name][i] = math.NaN()
				}
				continue
			}
			vigor := landCover[i] * season
			noise := 0.02 * rng.NormFloat64()
			red := 0.12 - 0.08*vigor + noise/2
			nir := 0.18 + 0.35*vigor + noise
			scene.Bands["B2"][i] = 0.06 + noise/4
			scene.Bands["B3"][i] = 0.08 + 0.02*vigor + noise/4
			scene.Bands["B4"][i] = math.Max(0.005, red)
			scene.Bands["B8"][i] = math.Max(0.005, nir)
		}
		if err := collection.Add(scene); err != nil {
			return nil, err
		}
		n++
	}

	catalog := NewCatalog()
	catalog.Put(collection)
	return catalog, nil
}
