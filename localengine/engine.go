// Package localengine evaluates expression graphs in-process against a
// synthetic scene catalog. It accepts exports the way the hosted platform
// does, returning an operation immediately and running the work on a
// bounded pool of workers.
package localengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/NoobML/ndvi-anomaly-detection/metrics"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/render"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/jonboulle/clockwork"
)

const operationPrefix = "projects/local/operations/"

// ErrClosed is returned by ExportImage after Close
var ErrClosed = errors.New("local engine is closed")

// Options configures an Engine
type Options struct {
	OutputDir string
	Workers   int
	QueueSize int
	Clock     clockwork.Clock
	Metrics   *metrics.Metrics
}

type job struct {
	name    string
	request ee.ExportRequest
}

// Engine is an in-process stand-in for the hosted platform. It implements
// util.LogContext.
type Engine struct {
	catalog *Catalog
	opts    Options

	queue   chan *job
	sending sync.RWMutex
	pending sync.WaitGroup
	workers sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	operations map[string]*ee.Operation
	order      []string

	logContext util.BasicLogContext
}

// New starts an engine over the catalog
func New(catalog *Catalog, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewMetricsForTesting()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	e := &Engine{
		catalog:    catalog,
		opts:       opts,
		queue:      make(chan *job, opts.QueueSize),
		operations: map[string]*ee.Operation{},
	}
	for i := 0; i < opts.Workers; i++ {
		e.workers.Add(1)
		go e.exportWorker()
	}
	return e
}

// AppName returns the application name
func (e *Engine) AppName() string {
	return util.AppName
}

// SessionID returns a Session ID, creating one if needed
func (e *Engine) SessionID() string {
	return e.logContext.SessionID()
}

// ExportImage queues an export and returns its pending operation
func (e *Engine) ExportImage(ctx context.Context, req ee.ExportRequest) (*ee.Operation, error) {
	if req.FileFormat != model.GeoTIFF {
		return nil, util.HTTPErr{Status: 400, Message: fmt.Sprintf("unsupported export format %q", req.FileFormat)}
	}
	if req.Description == "" {
		return nil, util.HTTPErr{Status: 400, Message: "export description is required"}
	}
	id, err := util.PsuUUID()
	if err != nil {
		return nil, err
	}
	name := operationPrefix + id
	now := e.opts.Clock.Now().UTC().Format(model.TimestampLayout)

	// held until the job is queued so Close cannot close the queue under us
	e.sending.RLock()
	defer e.sending.RUnlock()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	op := &ee.Operation{Name: name, Metadata: &ee.OperationMetadata{
		Type:        "type.googleapis.com/google.earthengine.v1.OperationMetadata",
		State:       ee.StatePending,
		Description: req.Description,
		CreateTime:  now,
		UpdateTime:  now,
	}}
	e.operations[name] = op
	e.order = append(e.order, name)
	snapshot := copyOperation(op)
	e.pending.Add(1)
	e.mu.Unlock()

	e.opts.Metrics.LocalQueueDepth.Inc()
	select {
	case e.queue <- &job{name: name, request: req}:
	case <-ctx.Done():
		e.finish(name, ee.StateCancelled, false, nil, ctx.Err())
		return nil, ctx.Err()
	}
	return snapshot, nil
}

// Wait blocks until every accepted export has finished
func (e *Engine) Wait() {
	e.pending.Wait()
}

// Close stops accepting exports and waits for the workers to drain the queue
func (e *Engine) Close() {
	e.sending.Lock()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.sending.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	close(e.queue)
	e.sending.Unlock()
	e.workers.Wait()
}

// ListOperations returns every operation in submission order
func (e *Engine) ListOperations(ctx context.Context) ([]ee.Operation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ee.Operation, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, *copyOperation(e.operations[name]))
	}
	return out, nil
}

// OperationStatuses returns the status of each operation keyed by name
func (e *Engine) OperationStatuses(ctx context.Context) (map[string]model.OperationStatus, error) {
	operations, _ := e.ListOperations(ctx)
	statuses := make(map[string]model.OperationStatus, len(operations))
	for _, op := range operations {
		statuses[op.Name] = op.Status()
	}
	return statuses, nil
}

// Evaluate computes a single-band image on its native grid
func (e *Engine) Evaluate(ctx context.Context, image ee.Image) (*geotiff.Raster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, err := (&evaluator{catalog: e.catalog}).eval(image.Node(), nil)
	if err != nil {
		return nil, err
	}
	img, ok := value.(*imageValue)
	if !ok {
		return nil, fmt.Errorf("expression evaluated to %T, not an image", value)
	}
	return toRaster(img)
}

// CreateMap evaluates the image and renders it as a PNG overlay
func (e *Engine) CreateMap(ctx context.Context, image ee.Image, vis ee.VisParams, label string) (*ee.MapLayer, error) {
	raster, err := e.Evaluate(ctx, image)
	if err != nil {
		return nil, util.LogSimpleErr(e, "Failed to evaluate map layer "+label+".", err)
	}
	ramp, err := render.NewRamp(vis.Min, vis.Max, vis.Palette)
	if err != nil {
		return nil, err
	}
	png, err := ramp.PNG(raster)
	if err != nil {
		return nil, err
	}
	bounds := model.Region{
		West:  raster.Transform.OriginX,
		North: raster.Transform.OriginY,
		East:  raster.Transform.OriginX + float64(raster.Width)*raster.Transform.PixelWidth,
		South: raster.Transform.OriginY - float64(raster.Height)*raster.Transform.PixelHeight,
	}
	return &ee.MapLayer{Name: "local/" + label, Label: label, Bounds: bounds, PNG: png}, nil
}

func toRaster(img *imageValue) (*geotiff.Raster, error) {
	switch len(img.bands) {
	case 0:
		return nil, errors.New("image has no bands")
	case 1:
	default:
		return nil, fmt.Errorf("only single-band images can be rendered, got bands %v", img.bandNames())
	}
	raster := geotiff.NewRaster(img.grid.Width, img.grid.Height, geotiff.GeoTransform{
		OriginX:     img.grid.West,
		OriginY:     img.grid.North,
		PixelWidth:  img.grid.PixelWidth,
		PixelHeight: img.grid.PixelHeight,
	})
	for i, v := range img.bands[0].data {
		raster.Data[i] = float32(v)
	}
	return raster, nil
}

func (e *Engine) exportWorker() {
	defer e.workers.Done()
	for j := range e.queue {
		e.runExport(j)
	}
}

func (e *Engine) runExport(j *job) {
	start := e.opts.Clock.Now()
	e.setState(j.name, ee.StateRunning)

	path, noData, err := e.export(j.request)
	e.opts.Metrics.LocalExportDuration.Observe(e.opts.Clock.Since(start).Seconds())
	if err != nil {
		util.LogAlert(e, fmt.Sprintf("Export %s failed: %v", j.request.Description, err))
		e.finish(j.name, ee.StateFailed, false, nil, err)
		return
	}
	util.LogInfo(e, fmt.Sprintf("Export %s written to %s", j.request.Description, path))
	e.finish(j.name, ee.StateSucceeded, noData, []string{path}, nil)
}

func (e *Engine) export(req ee.ExportRequest) (string, bool, error) {
	value, err := (&evaluator{catalog: e.catalog}).eval(req.PreparedImage().Node(), nil)
	if err != nil {
		return "", false, err
	}
	img, ok := value.(*imageValue)
	if !ok {
		return "", false, fmt.Errorf("expression evaluated to %T, not an image", value)
	}
	if req.MaxPixels > 0 && img.grid.Pixels() > req.MaxPixels {
		return "", false, fmt.Errorf("Exported image is too large (%d pixels, maxPixels allows %d)", img.grid.Pixels(), req.MaxPixels)
	}
	raster, err := toRaster(img)
	if err != nil {
		return "", false, err
	}
	if err = os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		return "", false, err
	}
	path := filepath.Join(e.opts.OutputDir, req.Description+".tif")
	if err = geotiff.WriteFile(path, raster); err != nil {
		return "", false, err
	}
	return path, raster.ValidCount() == 0, nil
}

func (e *Engine) setState(name, state string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	op := e.operations[name]
	now := e.opts.Clock.Now().UTC().Format(model.TimestampLayout)
	op.Metadata.State = state
	op.Metadata.UpdateTime = now
	if state == ee.StateRunning {
		op.Metadata.StartTime = now
	}
}

func (e *Engine) finish(name, state string, noData bool, uris []string, cause error) {
	e.mu.Lock()
	op := e.operations[name]
	now := e.opts.Clock.Now().UTC().Format(model.TimestampLayout)
	op.Done = true
	op.Metadata.State = state
	op.Metadata.UpdateTime = now
	op.Metadata.EndTime = now
	op.Metadata.NoData = noData
	op.Metadata.DestinationURIs = uris
	if state == ee.StateSucceeded {
		op.Metadata.Progress = 1
	}
	if cause != nil {
		op.Error = &ee.Status{Code: 3, Message: cause.Error()}
	}
	e.mu.Unlock()

	e.opts.Metrics.LocalOperations.WithLabelValues(state).Inc()
	e.opts.Metrics.LocalQueueDepth.Dec()
	e.pending.Done()
}

func copyOperation(op *ee.Operation) *ee.Operation {
	out := *op
	if op.Metadata != nil {
		metadata := *op.Metadata
		metadata.DestinationURIs = append([]string(nil), op.Metadata.DestinationURIs...)
		out.Metadata = &metadata
	}
	if op.Error != nil {
		status := *op.Error
		out.Error = &status
	}
	return &out
}

// Outputs lists the files written so far, sorted by name
func (e *Engine) Outputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var paths []string
	for _, op := range e.operations {
		if op.Metadata != nil {
			paths = append(paths, op.Metadata.DestinationURIs...)
		}
	}
	sort.Strings(paths)
	return paths
}

