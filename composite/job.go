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

package composite

import (
	"fmt"
	"os"
	"time"

	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/render"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Job describes one run of the monthly composite export
type Job struct {
	Prefix        string           `yaml:"prefix" validate:"required,alphanum"`
	CollectionID  string           `yaml:"collection" validate:"required"`
	Region        model.Region     `yaml:"region"`
	Start         string           `yaml:"start" validate:"required,datetime=2006-01-02"`
	End           string           `yaml:"end" validate:"required,datetime=2006-01-02"`
	Months        int              `yaml:"months" validate:"min=1,max=600"`
	CloudProperty string           `yaml:"cloudProperty" validate:"required"`
	MaxCloud      float64          `yaml:"maxCloud" validate:"gt=0,lte=100"`
	NIR           string           `yaml:"nir" validate:"required"`
	Red           string           `yaml:"red" validate:"required,nefield=NIR"`
	IndexName     string           `yaml:"index" validate:"required"`
	Scale         float64          `yaml:"scale" validate:"gt=0"`
	MaxPixels     int64            `yaml:"maxPixels" validate:"gt=0"`
	FileFormat    model.FileFormat `yaml:"fileFormat" validate:"oneof=GeoTIFF"`
	Folder        string           `yaml:"folder"`
	Vis           ee.VisParams     `yaml:"vis"`
	Zoom          int              `yaml:"zoom" validate:"min=0,max=22"`
}

var validate = validator.New()

// DefaultJob is the two-year NDVI run over the Lahore test area
func DefaultJob() Job {
	return Job{
		Prefix:        "NDVI",
		CollectionID:  "COPERNICUS/S2_SR",
		Region:        model.Region{West: 73.95, South: 31.05, East: 74.10, North: 31.20},
		Start:         "2023-01-01",
		End:           "2024-12-31",
		Months:        24,
		CloudProperty: "CLOUDY_PIXEL_PERCENTAGE",
		MaxCloud:      40,
		NIR:           "B8",
		Red:           "B4",
		IndexName:     "NDVI",
		Scale:         10,
		MaxPixels:     1e13,
		FileFormat:    model.GeoTIFF,
		Folder:        "NDVI_Images",
		Vis: ee.VisParams{
			Min:     0,
			Max:     0.8,
			Palette: []string{"brown", "yellow", "green"},
		},
		Zoom: 11,
	}
}

// LoadJob reads a YAML job file over the defaults. Keys missing from the
// file keep their default values.
func LoadJob(path string) (Job, error) {
	job := DefaultJob()
	if path == "" {
		return job, job.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, err
	}
	if err = yaml.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("could not parse job file %s: %w", path, err)
	}
	if err = job.Validate(); err != nil {
		return Job{}, fmt.Errorf("invalid job file %s: %w", path, err)
	}
	return job, nil
}

// Validate checks field constraints and that the month windows fit
// between Start and End
func (j Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		return err
	}
	if err := j.Region.Valid(); err != nil {
		return err
	}
	if _, err := render.NewRamp(j.Vis.Min, j.Vis.Max, j.Vis.Palette); err != nil {
		return fmt.Errorf("invalid vis: %w", err)
	}
	months, err := j.Windows()
	if err != nil {
		return err
	}
	end, _ := model.ParseDate(j.End)
	if last := months[len(months)-1].End; last.After(end.AddDate(0, 0, 1)) {
		return fmt.Errorf("%d months from %s end on %s, after %s", j.Months, j.Start, last.Format(model.DateLayout), j.End)
	}
	return nil
}

// StartTime is the first day of the first month
func (j Job) StartTime() (time.Time, error) {
	return model.ParseDate(j.Start)
}

// Windows returns the job's month windows
func (j Job) Windows() ([]model.MonthWindow, error) {
	start, err := j.StartTime()
	if err != nil {
		return nil, err
	}
	return model.MonthWindows(start, j.Months), nil
}
