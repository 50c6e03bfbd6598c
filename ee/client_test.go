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

package ee

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

func mockEarthEngine(t *testing.T, status int, responses map[string]string) (*httptest.Server, *[]recordedRequest) {
	recorded := &[]recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*recorded = append(*recorded, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header, Body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}
		w.Write([]byte(responses[key]))
	}))
	t.Cleanup(server.Close)
	return server, recorded
}

func testExportRequest() ExportRequest {
	image := LoadImageCollection("COPERNICUS/S2_SR").Map(addNDVI).Median().Clip(Rectangle(testRegion))
	return ExportRequest{
		Image:       image,
		Description: "NDVI_2023_01",
		Region:      testRegion,
		Scale:       10,
		FileFormat:  model.GeoTIFF,
		MaxPixels:   1e13,
		Folder:      "NDVI_Images",
		RequestID:   "req-1",
	}
}

func TestExportImage_RequestShape(t *testing.T) {
	// Mock
	server, recorded := mockEarthEngine(t, http.StatusOK, map[string]string{
		"/v1/projects/my-project/image:export": `{"name": "projects/my-project/operations/OP1", "metadata": {"state": "PENDING", "description": "NDVI_2023_01"}}`,
	})
	client, err := NewClient(server.URL, "my-project", server.Client())
	require.NoError(t, err)

	// Tested code
	op, err := client.ExportImage(context.Background(), testExportRequest())

	// Asserts
	require.NoError(t, err)
	assert.Equal(t, "projects/my-project/operations/OP1", op.Name)
	assert.Equal(t, StatePending, op.Status().State)

	require.Len(t, *recorded, 1)
	req := (*recorded)[0]
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "my-project", req.Header.Get("X-Goog-User-Project"))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Body, &raw))
	assert.Equal(t, "10000000000000", raw["maxPixels"])
	assert.Equal(t, "NDVI_2023_01", raw["description"])
	assert.Equal(t, "req-1", raw["requestId"])
	options := raw["fileExportOptions"].(map[string]interface{})
	assert.Equal(t, "GEO_TIFF", options["fileFormat"])
	drive := options["driveDestination"].(map[string]interface{})
	assert.Equal(t, "NDVI_Images", drive["folder"])
	assert.Equal(t, "NDVI_2023_01", drive["filenamePrefix"])

	var body exportImageRequest
	require.NoError(t, json.Unmarshal(req.Body, &body))
	root := body.Expression.Values[body.Expression.Result].FunctionInvocationValue
	require.NotNil(t, root)
	assert.Equal(t, "Image.clipToBoundsAndScale", root.FunctionName)
	assert.Equal(t, 10.0, constant(t, root.Arguments["scale"]))
	rect := body.Expression.Values[root.Arguments["geometry"].ValueReference].FunctionInvocationValue
	assert.Equal(t, "GeometryConstructors.Rectangle", rect.FunctionName)
	assert.Equal(t, []interface{}{
		[]interface{}{73.95, 31.05},
		[]interface{}{74.10, 31.20},
	}, constant(t, rect.Arguments["coordinates"]))
}

func TestExportImage_GeneratesRequestID(t *testing.T) {
	server, recorded := mockEarthEngine(t, http.StatusOK, map[string]string{
		"/v1/projects/p/image:export": `{"name": "projects/p/operations/OP"}`,
	})
	client, _ := NewClient(server.URL, "p", server.Client())
	req := testExportRequest()
	req.RequestID = ""

	_, err := client.ExportImage(context.Background(), req)

	require.NoError(t, err)
	var body exportImageRequest
	require.NoError(t, json.Unmarshal((*recorded)[0].Body, &body))
	assert.Len(t, body.RequestID, 36)
}

func TestExportImage_ClientError(t *testing.T) {
	server, _ := mockEarthEngine(t, http.StatusBadRequest, map[string]string{
		"/v1/projects/p/image:export": `{"error": {"code": 400, "message": "Too many pixels"}}`,
	})
	client, _ := NewClient(server.URL, "p", server.Client())

	_, err := client.ExportImage(context.Background(), testExportRequest())

	var httpErr util.HTTPErr
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
	assert.Contains(t, httpErr.Message, "Too many pixels")
}

func TestExportImage_ServerError(t *testing.T) {
	server, _ := mockEarthEngine(t, http.StatusServiceUnavailable, map[string]string{})
	client, _ := NewClient(server.URL, "p", server.Client())

	_, err := client.ExportImage(context.Background(), testExportRequest())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestExportImage_BadResponse(t *testing.T) {
	server, _ := mockEarthEngine(t, http.StatusOK, map[string]string{
		"/v1/projects/p/image:export": `not json`,
	})
	client, _ := NewClient(server.URL, "p", server.Client())

	_, err := client.ExportImage(context.Background(), testExportRequest())

	var eeErr util.Error
	require.True(t, errors.As(err, &eeErr))
	assert.Equal(t, "not json", eeErr.Response)
}

func TestExportImage_UnsupportedFormat(t *testing.T) {
	client, _ := NewClient("http://unused", "p", nil)
	req := testExportRequest()
	req.FileFormat = "PNG"

	_, err := client.ExportImage(context.Background(), req)

	assert.Error(t, err)
}

func TestNewClient_RequiresProject(t *testing.T) {
	_, err := NewClient("https://earthengine.googleapis.com", "", nil)
	assert.Error(t, err)
}

func TestCreateMap(t *testing.T) {
	server, recorded := mockEarthEngine(t, http.StatusOK, map[string]string{
		"/v1/projects/p/maps": `{"name": "projects/p/maps/abc123"}`,
	})
	client, _ := NewClient(server.URL, "p", server.Client())
	image := LoadImageCollection("COPERNICUS/S2_SR").Map(addNDVI).Median()

	layer, err := client.CreateMap(context.Background(), image, VisParams{Min: 0, Max: 0.8, Palette: []string{"brown", "yellow", "green"}}, "NDVI Jan 2023")

	require.NoError(t, err)
	assert.Equal(t, "NDVI Jan 2023", layer.Label)
	assert.Equal(t, server.URL+"/v1/projects/p/maps/abc123/tiles/{z}/{x}/{y}", layer.TileURL)

	var body createMapRequest
	require.NoError(t, json.Unmarshal((*recorded)[0].Body, &body))
	root := body.Expression.Values[body.Expression.Result].FunctionInvocationValue
	assert.Equal(t, "Image.visualize", root.FunctionName)
	assert.Equal(t, []interface{}{"brown", "yellow", "green"}, constant(t, root.Arguments["palette"]))
	assert.Equal(t, 0.8, constant(t, root.Arguments["max"]))
	// the map shows the unclipped median
	assert.Equal(t, "reduce.median", body.Expression.Values[root.Arguments["image"].ValueReference].FunctionInvocationValue.FunctionName)
}

func TestCreateMap_MissingName(t *testing.T) {
	server, _ := mockEarthEngine(t, http.StatusOK, map[string]string{"/v1/projects/p/maps": `{}`})
	client, _ := NewClient(server.URL, "p", server.Client())

	_, err := client.CreateMap(context.Background(), LoadImageCollection("X").Median(), VisParams{Max: 1, Palette: []string{"black", "white"}}, "x")

	assert.Error(t, err)
}

func TestListOperations_FollowsPages(t *testing.T) {
	server, recorded := mockEarthEngine(t, http.StatusOK, map[string]string{
		"/v1/projects/p/operations":               `{"operations": [{"name": "op1", "done": true, "metadata": {"state": "SUCCEEDED"}}], "nextPageToken": "t2"}`,
		"/v1/projects/p/operations?pageToken=t2": `{"operations": [{"name": "op2", "metadata": {"state": "RUNNING"}}]}`,
	})
	client, _ := NewClient(server.URL, "p", server.Client())

	statuses, err := client.OperationStatuses(context.Background())

	require.NoError(t, err)
	assert.Len(t, *recorded, 2)
	assert.Equal(t, model.OperationStatus{State: "SUCCEEDED", Done: true}, statuses["op1"])
	assert.Equal(t, model.OperationStatus{State: "RUNNING"}, statuses["op2"])
}
