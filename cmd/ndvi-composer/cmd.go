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
	cli "gopkg.in/urfave/cli.v1"
)

var engineFlag = cli.StringFlag{
	Name:   "engine, e",
	Usage:  "Engine that evaluates composites: remote or local",
	EnvVar: "NDVI_ENGINE",
	Value:  "remote",
}

var jobFlag = cli.StringFlag{
	Name:   "job, j",
	Usage:  "YAML job definition overriding the default region, dates, and thresholds",
	EnvVar: "NDVI_JOB_FILE",
}

var commands = cli.Commands{
	cli.Command{
		Name:    "export",
		Aliases: []string{"e"},
		Usage:   "Submit one NDVI median composite export per month",
		Flags:   []cli.Flag{engineFlag, jobFlag},
		Action:  exportAction,
	},
	cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Launch the map viewer webserver",
		Flags:   []cli.Flag{engineFlag, jobFlag},
		Action:  serveAction,
	},
	cli.Command{
		Name:    "tasks",
		Aliases: []string{"t"},
		Usage:   "List submitted export tasks as GeoJSON",
		Flags:   []cli.Flag{engineFlag},
		Action:  tasksAction,
	},
	cli.Command{
		Name:   "train",
		Usage:  "Fit the anomaly model on the monthly NDVI rasters and write the anomaly map",
		Flags:  []cli.Flag{inputFlag, outputFlag("anomaly_map.png")},
		Action: trainAction,
	},
	cli.Command{
		Name:   "detect",
		Usage:  "Score one NDVI raster as the first month against the training rasters",
		Flags:  []cli.Flag{inputFlag, outputFlag("anomaly_map1.png"), cli.StringFlag{Name: "file, f", Usage: "NDVI GeoTIFF to score"}},
		Action: detectAction,
	},
	cli.Command{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "Print the version number of the composer CLI",
		Action:  versionAction,
	},
	cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Update database schema",
		Action:  migrateDatabaseAction,
	},
}

func createCliApp() (app *cli.App) {
	app = cli.NewApp()
	app.Name = "ndvi-composer"
	app.Usage = "Build monthly NDVI composites and find vegetation anomalies"
	app.Version = version
	app.Commands = commands
	return
}
