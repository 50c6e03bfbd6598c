package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/NoobML/ndvi-anomaly-detection/anomaly"
	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	cli "gopkg.in/urfave/cli.v1"
)

func trainAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})

	stack, err := anomaly.LoadStack(c.String("input"))
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not load the NDVI rasters.", err)
	}
	modelFile := util.GetModelFile()
	forest, loaded, err := anomaly.TrainOrLoad(modelFile, stack, anomaly.DefaultOptions())
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not fit the anomaly model.", err)
	}
	if loaded {
		util.LogInfo(logContext, "Loaded existing model from "+modelFile)
	} else {
		util.LogInfo(logContext, fmt.Sprintf("Fit a %d-tree model on %d months, saved to %s", len(forest.Trees), forest.Features, modelFile))
	}

	anomalyMap, err := forest.Detect(stack)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not score the NDVI rasters.", err)
	}
	return writeAnomalyMap(c, anomalyMap)
}

func detectAction(c *cli.Context) error {
	logContext := &(util.BasicLogContext{})

	file := c.String("file")
	if file == "" {
		return cli.NewExitError("--file is required", 2)
	}
	upload, err := geotiff.ReadFile(file)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not read "+file+".", err)
	}
	forest, err := anomaly.Load(util.GetModelFile())
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not load the anomaly model, run train first.", err)
	}
	stack, err := anomaly.LoadStack(c.String("input"))
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not load the NDVI rasters.", err)
	}
	stack, err = stack.ReplaceFirst(filepath.Base(file), upload, forest.Features)
	if err != nil {
		return util.LogSimpleErr(logContext, "The raster does not match the training rasters.", err)
	}
	anomalyMap, err := forest.Detect(stack)
	if err != nil {
		return util.LogSimpleErr(logContext, "Could not score the raster.", err)
	}
	return writeAnomalyMap(c, anomalyMap)
}

func writeAnomalyMap(c *cli.Context, anomalyMap *anomaly.Map) error {
	png, err := anomalyMap.PNG()
	if err != nil {
		return err
	}
	output := c.String("output")
	if err := os.WriteFile(output, png, 0644); err != nil {
		return err
	}
	anomalies, normal, noData := anomalyMap.Counts()
	fmt.Fprintf(c.App.Writer, "%s: %d anomalous, %d normal, %d no-data pixels\n", output, anomalies, normal, noData)
	return nil
}
