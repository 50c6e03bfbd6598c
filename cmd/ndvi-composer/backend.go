package main

import (
	"context"
	"fmt"

	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/localengine"
	"github.com/NoobML/ndvi-anomaly-detection/metrics"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/prometheus/client_golang/prometheus"
	cli "gopkg.in/urfave/cli.v1"
)

// syntheticSeed fixes the local catalog so repeated runs agree
const syntheticSeed = 1

var appMetrics = metrics.NewMetrics(prometheus.DefaultRegisterer)

// backend is what the commands need from an engine
type backend interface {
	composite.Exporter
	CreateMap(ctx context.Context, image ee.Image, vis ee.VisParams, label string) (*ee.MapLayer, error)
	ListOperations(ctx context.Context) ([]ee.Operation, error)
	OperationStatuses(ctx context.Context) (map[string]model.OperationStatus, error)
}

// newBackend returns the engine and a function that releases it. For the
// local engine the release waits for queued exports to finish.
func newBackend(ctx context.Context, engine model.Engine, job composite.Job) (backend, func(), error) {
	switch engine {
	case model.RemoteEngine:
		httpClient, err := ee.NewDefaultHTTPClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("no Earth Engine credentials: %w", err)
		}
		client, err := ee.NewClient(util.GetEarthEngineURL(), util.GetEarthEngineProject(), httpClient)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	case model.LocalEngine:
		months, err := job.Windows()
		if err != nil {
			return nil, nil, err
		}
		catalog, err := localengine.SyntheticCatalog(localengine.SyntheticOptions{
			CollectionID: job.CollectionID,
			Region:       job.Region,
			Start:        months[0].Start,
			End:          months[len(months)-1].End,
			Seed:         syntheticSeed,
		})
		if err != nil {
			return nil, nil, err
		}
		local := localengine.New(catalog, localengine.Options{
			OutputDir: util.GetOutputDir(),
			Metrics:   appMetrics,
		})
		release := func() {
			local.Close()
			outputs := local.Outputs()
			util.LogInfo(local, fmt.Sprintf("Local engine wrote %d files to %s", len(outputs), util.GetOutputDir()))
		}
		return local, release, nil
	}
	return nil, nil, fmt.Errorf("unknown engine %q", engine)
}

var newBackendFunc = newBackend

func engineAndJob(c *cli.Context) (model.Engine, composite.Job, error) {
	engineName := c.String("engine")
	if engineName == "" {
		engineName = util.GetEngine()
	}
	engine, err := model.ParseEngine(engineName)
	if err != nil {
		return "", composite.Job{}, err
	}
	jobFile := c.String("job")
	if jobFile == "" {
		jobFile = util.GetJobFile()
	}
	job, err := composite.LoadJob(jobFile)
	if err != nil {
		return "", composite.Job{}, err
	}
	if folder := util.GetDriveFolder(); folder != "" {
		job.Folder = folder
	}
	return engine, job, nil
}
