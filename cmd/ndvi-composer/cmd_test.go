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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/NoobML/ndvi-anomaly-detection/composite"
	"github.com/NoobML/ndvi-anomaly-detection/ee"
	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	requests []ee.ExportRequest
	released bool
}

func (f *fakeBackend) ExportImage(ctx context.Context, req ee.ExportRequest) (*ee.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return &ee.Operation{Name: "projects/p/operations/" + req.Description}, nil
}

func (f *fakeBackend) CreateMap(ctx context.Context, image ee.Image, vis ee.VisParams, label string) (*ee.MapLayer, error) {
	return &ee.MapLayer{Name: "projects/p/maps/m", Label: label, TileURL: "https://tiles.example/{z}/{x}/{y}"}, nil
}

func (f *fakeBackend) ListOperations(ctx context.Context) ([]ee.Operation, error) {
	return []ee.Operation{{Name: "projects/p/operations/NDVI_2023_01", Done: true}}, nil
}

func (f *fakeBackend) OperationStatuses(ctx context.Context) (map[string]model.OperationStatus, error) {
	return map[string]model.OperationStatus{}, nil
}

func mockBackend(t *testing.T) *fakeBackend {
	fake := &fakeBackend{}
	original := newBackendFunc
	newBackendFunc = func(ctx context.Context, engine model.Engine, job composite.Job) (backend, func(), error) {
		return fake, func() { fake.released = true }, nil
	}
	t.Cleanup(func() { newBackendFunc = original })
	return fake
}

func mockLaunchServer(t *testing.T) chan *mux.Router {
	routers := make(chan *mux.Router, 1)
	original := launchServerFunc
	launchServerFunc = func(portStr string, router *mux.Router) {
		routers <- router
	}
	t.Cleanup(func() { launchServerFunc = original })
	return routers
}

func withoutDatabase(t *testing.T) {
	t.Setenv(connectionStringEnv, "")
	t.Setenv(vcapServicesEnv, "")
}

func runApp(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	app := createCliApp()
	app.Writer = &out
	err := app.Run(append([]string{"ndvi-composer"}, args...))
	return out.String(), err
}

func TestServe_CallsLaunchServer(t *testing.T) {
	// Mock
	mockBackend(t)
	routers := mockLaunchServer(t)
	t.Setenv("NDVI_MODEL_FILE", filepath.Join(t.TempDir(), "missing.json"))

	// Tested code
	_, err := runApp(t, "serve")

	// Asserts
	require.NoError(t, err)
	select {
	case router := <-routers:
		assert.NotNil(t, router)
	default:
		assert.Fail(t, "launchServer not called by serve")
	}
}

func TestServe_BaseHealthCheckEndpoint(t *testing.T) {
	// Mock
	mockBackend(t)
	routers := mockLaunchServer(t)
	t.Setenv("NDVI_MODEL_FILE", filepath.Join(t.TempDir(), "missing.json"))
	_, err := runApp(t, "serve")
	require.NoError(t, err)
	router := <-routers

	// Tested code
	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest("GET", "/", strings.NewReader("")))
	metrics := httptest.NewRecorder()
	router.ServeHTTP(metrics, httptest.NewRequest("GET", "/metrics", nil))
	layer := httptest.NewRecorder()
	router.ServeHTTP(layer, httptest.NewRequest("GET", "/layers/first-month", nil))
	anomalyUpload := httptest.NewRecorder()
	router.ServeHTTP(anomalyUpload, httptest.NewRequest("POST", "/anomaly", nil))

	// Asserts
	assert.Equal(t, "OK", health.Body.String())
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "ndvi_")
	assert.Equal(t, http.StatusOK, layer.Code)
	assert.Contains(t, layer.Body.String(), "NDVI Jan 2023")
	assert.Equal(t, http.StatusServiceUnavailable, anomalyUpload.Code)
}

func TestExport_SubmitsEveryMonth(t *testing.T) {
	// Mock
	fake := mockBackend(t)
	withoutDatabase(t)

	// Tested code
	out, err := runApp(t, "export", "--engine", "remote")

	// Asserts
	require.NoError(t, err)
	require.Len(t, fake.requests, 24)
	assert.True(t, fake.released)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 24)
	assert.Equal(t, "NDVI_2023_01\tprojects/p/operations/NDVI_2023_01", lines[0])
	assert.Equal(t, "NDVI_2024_12\tprojects/p/operations/NDVI_2024_12", lines[23])
	for _, req := range fake.requests {
		assert.Equal(t, 10.0, req.Scale)
		assert.Equal(t, int64(1e13), req.MaxPixels)
		assert.Equal(t, model.GeoTIFF, req.FileFormat)
		assert.Equal(t, "NDVI_Images", req.Folder)
	}
}

func TestExport_DriveFolderFromEnvironment(t *testing.T) {
	fake := mockBackend(t)
	withoutDatabase(t)
	t.Setenv("NDVI_DRIVE_FOLDER", "composites")

	_, err := runApp(t, "export")

	require.NoError(t, err)
	assert.Equal(t, "composites", fake.requests[0].Folder)
}

func TestExport_LocalEngineWritesFiles(t *testing.T) {
	// Mock
	withoutDatabase(t)
	outputDir := t.TempDir()
	t.Setenv("NDVI_OUTPUT_DIR", outputDir)
	jobFile := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(jobFile, []byte(`
region: {west: 74.0, south: 31.1, east: 74.005, north: 31.105}
end: "2023-02-28"
months: 2
scale: 100
`), 0644))

	// Tested code
	out, err := runApp(t, "export", "--engine", "local", "--job", jobFile)

	// Asserts
	require.NoError(t, err)
	assert.Contains(t, out, "NDVI_2023_01\tprojects/local/operations/")
	assert.FileExists(t, filepath.Join(outputDir, "NDVI_2023_01.tif"))
	assert.FileExists(t, filepath.Join(outputDir, "NDVI_2023_02.tif"))
}

func TestTasks_RemoteWithoutLedger(t *testing.T) {
	mockBackend(t)
	withoutDatabase(t)

	out, err := runApp(t, "tasks", "--engine", "remote")

	require.NoError(t, err)
	var operations []ee.Operation
	require.NoError(t, json.Unmarshal([]byte(out), &operations))
	require.Len(t, operations, 1)
	assert.Equal(t, "projects/p/operations/NDVI_2023_01", operations[0].Name)
}

func writeStack(t *testing.T, dir string) {
	transform := geotiff.GeoTransform{OriginX: 74.0, OriginY: 31.1, PixelWidth: 0.001, PixelHeight: 0.001}
	for month := 1; month <= 4; month++ {
		layer := geotiff.NewRaster(12, 10, transform)
		for i := range layer.Data {
			layer.Data[i] = float32(0.2+0.1*float64(month)) + float32(i%5)*0.002
		}
		require.NoError(t, geotiff.WriteFile(filepath.Join(dir, fmt.Sprintf("NDVI_2023_%02d.tif", month)), layer))
	}
}

func TestTrainThenDetect(t *testing.T) {
	// Mock
	input := t.TempDir()
	writeStack(t, input)
	work := t.TempDir()
	modelFile := filepath.Join(work, "model.json")
	t.Setenv("NDVI_MODEL_FILE", modelFile)
	upload, err := geotiff.ReadFile(filepath.Join(input, "NDVI_2023_02.tif"))
	require.NoError(t, err)
	uploadFile := filepath.Join(work, "upload.tif")
	require.NoError(t, geotiff.WriteFile(uploadFile, upload))

	// Tested code
	trainOut, trainErr := runApp(t, "train", "--input", input, "--output", filepath.Join(work, "anomaly_map.png"))
	detectOut, detectErr := runApp(t, "detect", "--input", input, "--output", filepath.Join(work, "anomaly_map1.png"), "--file", uploadFile)

	// Asserts
	require.NoError(t, trainErr)
	require.NoError(t, detectErr)
	assert.FileExists(t, modelFile)
	assert.Contains(t, trainOut, "anomaly_map.png: ")
	assert.Contains(t, detectOut, "anomaly_map1.png: ")
	assert.Contains(t, detectOut, "0 no-data pixels")
	for _, name := range []string{"anomaly_map.png", "anomaly_map1.png"} {
		data, err := os.ReadFile(filepath.Join(work, name))
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
	}
}

func TestVersion(t *testing.T) {
	out, err := runApp(t, "version")

	require.NoError(t, err)
	assert.Equal(t, "ndvi-composer "+version+"\n", out)
}
