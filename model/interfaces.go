// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"fmt"

	"github.com/venicegeo/geojson-go/geojson"
)

// FileFormat is the raster format of an exported composite
type FileFormat string

// GeoTIFF is the only export format we produce
const GeoTIFF FileFormat = "GeoTIFF"

// Engine names the platform that evaluates and exports composites
type Engine string

// Supported engines
const (
	RemoteEngine Engine = "remote"
	LocalEngine  Engine = "local"
)

// ParseEngine validates an engine name
func ParseEngine(name string) (Engine, error) {
	switch Engine(name) {
	case RemoteEngine, LocalEngine:
		return Engine(name), nil
	}
	return "", fmt.Errorf("unknown engine %q (expected %q or %q)", name, RemoteEngine, LocalEngine)
}

// GeoJSONFeatureCreator is something that can be represented as a GeoJSON feature
type GeoJSONFeatureCreator interface {
	GeoJSONFeature() (*geojson.Feature, error)
}

// GeoJSONFeatureCollectionCreator is something that can be represented as
// a GeoJSON feature collection
type GeoJSONFeatureCollectionCreator interface {
	GeoJSONFeatureCollection() (*geojson.FeatureCollection, error)
}

// GeoJSONFeatureMixin adds extra properties to an existing feature
type GeoJSONFeatureMixin interface {
	Apply(*geojson.Feature) error
}
