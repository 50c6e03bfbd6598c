package main

import (
	"context"
	"fmt"

	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	cli "gopkg.in/urfave/cli.v1"
)

func exportAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})
	ctx := context.Background()

	engine, job, err := engineAndJob(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	exporter, release, err := newBackendFunc(ctx, engine, job)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not start the "+string(engine)+" engine.", err)
	}
	defer release()

	recorder, closeRecorder := openRecorder(logContext)
	defer closeRecorder()

	runner := &composite.Runner{
		Job:      job,
		Exporter: exporter,
		Engine:   engine,
		Recorder: recorder,
		Metrics:  appMetrics,
	}
	tasks, err := runner.Run(ctx)
	for _, task := range tasks {
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", task.Description, task.OperationName)
	}
	if err != nil {
		return util.LogSimpleErr(logContext, fmt.Sprintf("%d of %d exports were not submitted.", job.Months-len(tasks), job.Months), err)
	}
	return nil
}
