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
	"time"

	"github.com/venicegeo/geojson-go/geojson"
)

// ExportTask records one submitted export of a monthly composite
type ExportTask struct {
	ID            string
	Description   string
	OperationName string
	Month         MonthWindow
	Region        Region
	Scale         float64
	FileFormat    FileFormat
	MaxPixels     int64
	Engine        Engine
	SubmittedAt   time.Time
	Status        *OperationStatus
}

// GeoJSONFeature returns the task as a feature whose geometry is the export region
func (task ExportTask) GeoJSONFeature() (*geojson.Feature, error) {
	f := geojson.NewFeature(task.Region.Polygon(), task.ID, map[string]interface{}{
		"description":   task.Description,
		"operationName": task.OperationName,
		"monthStart":    task.Month.Start.Format(DateLayout),
		"monthEnd":      task.Month.End.Format(DateLayout),
		"scale":         task.Scale,
		"fileFormat":    string(task.FileFormat),
		"maxPixels":     task.MaxPixels,
		"engine":        string(task.Engine),
		"submittedAt":   task.SubmittedAt.UTC().Format(TimestampLayout),
	})

	if task.Status != nil {
		if err := task.Status.Apply(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// OperationStatus is the last known state of an export on its engine
type OperationStatus struct {
	State  string
	Done   bool
	NoData bool
	Error  string
}

// Apply adds the status properties to a feature
func (s OperationStatus) Apply(feature *geojson.Feature) error {
	feature.Properties["state"] = s.State
	feature.Properties["done"] = s.Done
	if s.NoData {
		feature.Properties["noData"] = true
	}
	if s.Error != "" {
		feature.Properties["error"] = s.Error
	}
	return nil
}

// TaskCollection is a set of tasks that renders as a feature collection
type TaskCollection struct {
	FeatureCreators []GeoJSONFeatureCreator
}

// NewTaskCollection wraps tasks
func NewTaskCollection(tasks []ExportTask) TaskCollection {
	creators := make([]GeoJSONFeatureCreator, len(tasks))
	for i, task := range tasks {
		creators[i] = task
	}
	return TaskCollection{FeatureCreators: creators}
}

// GeoJSONFeatureCollection returns all members as one collection
func (c TaskCollection) GeoJSONFeatureCollection() (*geojson.FeatureCollection, error) {
	var err error
	features := make([]*geojson.Feature, len(c.FeatureCreators))
	for i, creator := range c.FeatureCreators {
		features[i], err = creator.GeoJSONFeature()
		if err != nil {
			return nil, err
		}
	}

	return geojson.NewFeatureCollection(features), nil
}
