package composite

import (
	"context"
	"errors"
	"fmt"

	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/metrics"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/jonboulle/clockwork"
)

// Exporter accepts export requests. Both the remote client and the local
// engine implement it.
type Exporter interface {
	ExportImage(ctx context.Context, req ee.ExportRequest) (*ee.Operation, error)
}

// Recorder persists submitted tasks
type Recorder interface {
	Record(ctx context.Context, task model.ExportTask) error
}

// NopRecorder records nothing
type NopRecorder struct{}

// Record does nothing
func (NopRecorder) Record(context.Context, model.ExportTask) error { return nil }

// Runner submits one export per month of a job
type Runner struct {
	Job      Job
	Exporter Exporter
	Engine   model.Engine
	Recorder Recorder
	Clock    clockwork.Clock
	Metrics  *metrics.Metrics

	logContext util.BasicLogContext
}

// AppName returns the application name
func (r *Runner) AppName() string {
	return r.logContext.AppName()
}

// SessionID returns a Session ID, creating one if needed
func (r *Runner) SessionID() string {
	return r.logContext.SessionID()
}

// Run submits every month in order and returns the accepted tasks. It does
// not wait for any export to finish. A month whose submission fails is
// logged and skipped; all such failures are returned joined.
func (r *Runner) Run(ctx context.Context) ([]model.ExportTask, error) {
	if err := r.Job.Validate(); err != nil {
		return nil, err
	}
	if r.Recorder == nil {
		r.Recorder = NopRecorder{}
	}
	if r.Clock == nil {
		r.Clock = clockwork.NewRealClock()
	}
	if r.Metrics == nil {
		r.Metrics = metrics.NewMetricsForTesting()
	}

	indexed, err := Indexed(r.Job)
	if err != nil {
		return nil, err
	}
	months, err := r.Job.Windows()
	if err != nil {
		return nil, err
	}
	r.Metrics.MonthsPlanned.Set(float64(len(months)))

	var (
		tasks []model.ExportTask
		errs  []error
	)
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		task, err := r.submit(ctx, indexed, month)
		if err != nil {
			r.Metrics.ExportsSubmitted.WithLabelValues(string(r.Engine), "rejected").Inc()
			errs = append(errs, err)
			continue
		}
		r.Metrics.ExportsSubmitted.WithLabelValues(string(r.Engine), "accepted").Inc()
		tasks = append(tasks, *task)

		if err := r.Recorder.Record(ctx, *task); err != nil {
			util.LogAlert(r, fmt.Sprintf("Could not record task %s: %v", task.Description, err))
		}
	}
	util.LogInfo(r, fmt.Sprintf("Submitted %d of %d exports", len(tasks), len(months)))
	return tasks, errors.Join(errs...)
}

func (r *Runner) submit(ctx context.Context, indexed ee.ImageCollection, month model.MonthWindow) (*model.ExportTask, error) {
	description := month.Description(r.Job.Prefix)
	requestID, err := util.PsuUUID()
	if err != nil {
		return nil, err
	}
	req := ee.ExportRequest{
		Image:       MonthlyComposite(indexed, month, r.Job.Region),
		Description: description,
		Region:      r.Job.Region,
		Scale:       r.Job.Scale,
		FileFormat:  r.Job.FileFormat,
		MaxPixels:   r.Job.MaxPixels,
		Folder:      r.Job.Folder,
		RequestID:   requestID,
	}
	op, err := r.Exporter.ExportImage(ctx, req)
	if err != nil {
		return nil, util.LogSimpleErr(r, "Export "+description+" was not accepted.", err)
	}
	util.LogAudit(r, util.LogAuditInput{
		Actor:    r.AppName(),
		Action:   "submit",
		Actee:    op.Name,
		Message:  "Started export " + description,
		Severity: util.INFO,
	})
	return &model.ExportTask{
		ID:            requestID,
		Description:   description,
		OperationName: op.Name,
		Month:         month,
		Region:        r.Job.Region,
		Scale:         r.Job.Scale,
		FileFormat:    r.Job.FileFormat,
		MaxPixels:     r.Job.MaxPixels,
		Engine:        r.Engine,
		SubmittedAt:   r.Clock.Now().UTC(),
	}, nil
}
