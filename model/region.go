package model

import (
	"fmt"
	"math"

	"github.com/venicegeo/geojson-go/geojson"
)

// Region is an axis-aligned rectangle in degrees (EPSG:4326)
type Region struct {
	West  float64 `yaml:"west" json:"west" validate:"gte=-180,lte=180"`
	South float64 `yaml:"south" json:"south" validate:"gte=-90,lte=90"`
	East  float64 `yaml:"east" json:"east" validate:"gte=-180,lte=180"`
	North float64 `yaml:"north" json:"north" validate:"gte=-90,lte=90"`
}

// Valid reports whether the rectangle has a positive extent
func (r Region) Valid() error {
	if !(r.West < r.East) || !(r.South < r.North) {
		return fmt.Errorf("region %v has no area", r)
	}
	if r.West < -180 || r.East > 180 || r.South < -90 || r.North > 90 {
		return fmt.Errorf("region %v is outside of the world", r)
	}
	return nil
}

// Center returns the rectangle's center as lon, lat
func (r Region) Center() (float64, float64) {
	return (r.West + r.East) / 2, (r.South + r.North) / 2
}

// Contains reports whether a point lies inside or on the edge of the region
func (r Region) Contains(lon, lat float64) bool {
	return lon >= r.West && lon <= r.East && lat >= r.South && lat <= r.North
}

// Intersects reports whether two regions share any area or edge
func (r Region) Intersects(other Region) bool {
	return r.West <= other.East && other.West <= r.East &&
		r.South <= other.North && other.South <= r.North
}

// Intersection returns the overlapping rectangle, or false if there is none
func (r Region) Intersection(other Region) (Region, bool) {
	out := Region{
		West:  math.Max(r.West, other.West),
		South: math.Max(r.South, other.South),
		East:  math.Min(r.East, other.East),
		North: math.Min(r.North, other.North),
	}
	if out.West >= out.East || out.South >= out.North {
		return Region{}, false
	}
	return out, true
}

// Ring returns the closed, counter-clockwise exterior ring of the rectangle
func (r Region) Ring() [][]float64 {
	return [][]float64{
		{r.West, r.South},
		{r.East, r.South},
		{r.East, r.North},
		{r.West, r.North},
		{r.West, r.South},
	}
}

// Polygon returns the region as a GeoJSON polygon
func (r Region) Polygon() *geojson.Polygon {
	return geojson.NewPolygon([][][]float64{r.Ring()})
}

func (r Region) String() string {
	return fmt.Sprintf("(%g, %g)-(%g, %g)", r.West, r.South, r.East, r.North)
}
