package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/ledger"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	cli "gopkg.in/urfave/cli.v1"
)

// tasksAction prints the recorded tasks as a GeoJSON feature collection,
// with each task's current state when the remote engine can be reached.
// Without a ledger it prints the engine's own operation list.
func tasksAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})
	ctx := context.Background()

	engine, job, err := engineAndJob(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}

	if !databaseConfigured() {
		if engine != model.RemoteEngine {
			return cli.NewExitError("no task ledger is configured and the local engine keeps no tasks between runs", 2)
		}
		client, release, err := newBackendFunc(ctx, engine, job)
		if err != nil {
			return util.LogSimpleErr(logContext, "Could not start the remote engine.", err)
		}
		defer release()
		operations, err := client.ListOperations(ctx)
		if err != nil {
			return util.LogSimpleErr(logContext, "Could not list operations.", err)
		}
		return writeJSON(c, operations)
	}

	store, err := ledger.NewStore(getDbConnectionFunc)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not open the task ledger.", err)
	}
	defer store.Close()
	tasks, err := store.List(ctx)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not list tasks.", err)
	}

	if engine == model.RemoteEngine {
		if statuses, err := remoteStatuses(ctx, engine, job); err == nil {
			for i := range tasks {
				if status, ok := statuses[tasks[i].OperationName]; ok {
					tasks[i].Status = &status
				}
			}
		} else {
			util.LogAlert(logContext, fmt.Sprintf("Task states unavailable: %v", err))
		}
	}

	collection, err := model.NewTaskCollection(tasks).GeoJSONFeatureCollection()
	if err != nil {
		return err
	}
	return writeJSON(c, collection)
}

func remoteStatuses(ctx context.Context, engine model.Engine, job composite.Job) (map[string]model.OperationStatus, error) {
	client, release, err := newBackendFunc(ctx, engine, job)
	if err != nil {
		return nil, err
	}
	defer release()
	return client.OperationStatuses(ctx)
}

func writeJSON(c *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}
