package composite

import (
	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/model"
)

// Collection is the job's collection filtered to the region, the dates
// [Start, End) and the cloud threshold
func Collection(job Job) (ee.ImageCollection, error) {
	start, err := job.StartTime()
	if err != nil {
		return ee.ImageCollection{}, err
	}
	end, err := model.ParseDate(job.End)
	if err != nil {
		return ee.ImageCollection{}, err
	}
	return ee.LoadImageCollection(job.CollectionID).
		FilterBounds(ee.Rectangle(job.Region)).
		FilterDate(start, end).
		Filter(ee.FilterLessThan(job.CloudProperty, job.MaxCloud)), nil
}

// AddIndex returns the per-image transform that replaces an image's bands
// with the single normalized difference band
func AddIndex(job Job) func(ee.Image) ee.Image {
	return func(image ee.Image) ee.Image {
		index := image.NormalizedDifference(job.NIR, job.Red).Rename(job.IndexName)
		return image.AddBands(index).Select(job.IndexName)
	}
}

// Indexed is Collection with AddIndex mapped over it
func Indexed(job Job) (ee.ImageCollection, error) {
	collection, err := Collection(job)
	if err != nil {
		return ee.ImageCollection{}, err
	}
	return collection.Map(AddIndex(job)), nil
}

// MonthlyComposite is the median index over one month, clipped to region
func MonthlyComposite(indexed ee.ImageCollection, month model.MonthWindow, region model.Region) ee.Image {
	return indexed.FilterDate(month.Start, month.End).Median().Clip(ee.Rectangle(region))
}

// Preview is the layer shown on the map
type Preview struct {
	Image  ee.Image
	Label  string
	Vis    ee.VisParams
	Center [2]float64
	Zoom   int
	Region model.Region
}

// FirstMonthPreview is the unclipped median of the first month, labelled
// like "NDVI Jan 2023"
func FirstMonthPreview(job Job) (*Preview, error) {
	indexed, err := Indexed(job)
	if err != nil {
		return nil, err
	}
	months, err := job.Windows()
	if err != nil {
		return nil, err
	}
	first := months[0]
	lon, lat := job.Region.Center()
	return &Preview{
		Image:  indexed.FilterDate(first.Start, first.End).Median(),
		Label:  job.IndexName + " " + first.DisplayName(),
		Vis:    job.Vis,
		Center: [2]float64{lon, lat},
		Zoom:   job.Zoom,
		Region: job.Region,
	}, nil
}
