package main

import (
	"github.com/NoobML/ndvi-anomaly-detection/util"
	cli "gopkg.in/urfave/cli.v1"
)

var inputFlag = cli.StringFlag{
	Name:   "input, i",
	Usage:  "Directory holding the monthly NDVI GeoTIFFs",
	EnvVar: "NDVI_OUTPUT_DIR",
	Value:  util.GetOutputDir(),
}

func outputFlag(def string) cli.Flag {
	return cli.StringFlag{
		Name:  "output, o",
		Usage: "Where to write the anomaly map PNG",
		Value: def,
	}
}
