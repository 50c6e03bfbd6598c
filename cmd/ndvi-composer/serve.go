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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/NoobML/ndvi-anomaly-detection/anomaly"
	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/mapview"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "gopkg.in/urfave/cli.v1"
)

func getPortStr() string {
	if port, ok := os.LookupEnv("PORT"); ok {
		return ":" + port
	}
	return ":8080"
}

func createRouter(ctx *mapview.Context) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte("OK"))
	})
	router.Handle("/metrics", promhttp.Handler())
	mapview.Register(router, ctx)
	return router
}

// loadDetector returns nil unless a trained model and its rasters are both present
func loadDetector(logContext util.LogContext) *mapview.Detector {
	modelFile := util.GetModelFile()
	if _, err := os.Stat(modelFile); err != nil {
		util.LogAlert(logContext, fmt.Sprintf("No anomaly model at %s, POST %s is disabled", modelFile, mapview.AnomalyPath))
		return nil
	}
	forest, err := anomaly.Load(modelFile)
	if err != nil {
		util.LogSimpleErr(logContext, "Could not load anomaly model.", err)
		return nil
	}
	stack, err := anomaly.LoadStack(util.GetOutputDir())
	if err != nil {
		util.LogSimpleErr(logContext, "Could not load the NDVI rasters for anomaly detection.", err)
		return nil
	}
	return &mapview.Detector{Forest: forest, Stack: stack}
}

func serveAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})

	engine, job, err := engineAndJob(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	mapper, release, err := newBackendFunc(context.Background(), engine, job)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not start the "+string(engine)+" engine.", err)
	}
	defer release()

	preview, err := composite.FirstMonthPreview(job)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not build the preview image.", err)
	}

	portStr := getPortStr()
	util.LogInfo(logContext, fmt.Sprintf("Serving %s on %s with the %s engine", preview.Label, portStr, engine))
	launchServerFunc(portStr, createRouter(mapview.NewContext(mapper, preview, loadDetector(logContext))))
	return nil
}

var launchServerFunc = launchServer

func launchServer(portStr string, router *mux.Router) {
	server := http.Server{
		Addr:    portStr,
		Handler: router,
	}

	log.Fatal(server.ListenAndServe())
}
