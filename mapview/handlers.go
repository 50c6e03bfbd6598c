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

package mapview

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/NoobML/ndvi-anomaly-detection/geotiff"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"github.com/gorilla/mux"
)

// Routes served by the viewer
const (
	MapPath      = "/map"
	LayerPath    = "/layers/first-month"
	LayerPNGPath = "/layers/first-month.png"
	AnomalyPath  = "/anomaly"
)

// maxUploadBytes bounds the multipart upload of POST /anomaly
const maxUploadBytes = 256 << 20

// Register adds every viewer route to the router
func Register(router *mux.Router, ctx *Context) {
	router.Handle(MapPath, NewMapPageHandler(ctx)).Methods(http.MethodGet)
	router.Handle(LayerPath, NewLayerHandler(ctx)).Methods(http.MethodGet)
	router.Handle(LayerPNGPath, NewLayerPNGHandler(ctx)).Methods(http.MethodGet)
	router.Handle(AnomalyPath, NewAnomalyHandler(ctx)).Methods(http.MethodPost)
}

// MapPageHandler is a handler for /map
// @Title mapPageHandler
// @Description renders a Leaflet map centered on the region with the first month's composite
// @Produce html
// @Success 200 {object} string
// @Router /map [get]
type MapPageHandler struct {
	Context *Context
}

// NewMapPageHandler creates a new handler
func NewMapPageHandler(ctx *Context) *MapPageHandler {
	return &MapPageHandler{Context: ctx}
}

// ServeHTTP implements the http.Handler interface for the MapPageHandler type
func (h MapPageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	preview := h.Context.Preview
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := mapPage.Execute(w, map[string]interface{}{
		"Title":    preview.Label,
		"Lat":      preview.Center[1],
		"Lon":      preview.Center[0],
		"Zoom":     preview.Zoom,
		"LayerURL": LayerPath,
	})
	if err != nil {
		util.LogSimpleErr(h.Context, "Failed to render map page.", err)
	}
}

// LayerHandler is a handler for /layers/first-month
// @Title layerHandler
// @Description describes the first month's NDVI layer: a tile URL template or a PNG overlay with bounds
// @Produce json
// @Success 200 {object} LayerDescriptor
// @Failure 502 {object} string
// @Router /layers/first-month [get]
type LayerHandler struct {
	Context *Context
}

// NewLayerHandler creates a new handler
func NewLayerHandler(ctx *Context) *LayerHandler {
	return &LayerHandler{Context: ctx}
}

// ServeHTTP implements the http.Handler interface for the LayerHandler type
func (h LayerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	layer, err := h.Context.Layer(r.Context())
	if err != nil {
		message := fmt.Sprintf("Could not create map layer: %v", err)
		util.HTTPError(r, w, h.Context, message, http.StatusBadGateway)
		return
	}
	preview := h.Context.Preview
	descriptor := LayerDescriptor{
		Label:   layer.Label,
		TileURL: layer.TileURL,
		Center:  [2]float64{preview.Center[1], preview.Center[0]},
		Zoom:    preview.Zoom,
		Min:     preview.Vis.Min,
		Max:     preview.Vis.Max,
		Palette: preview.Vis.Palette,
	}
	if len(layer.PNG) > 0 {
		descriptor.PNGURL = LayerPNGPath
		descriptor.Bounds = [2][2]float64{{layer.Bounds.South, layer.Bounds.West}, {layer.Bounds.North, layer.Bounds.East}}
	} else {
		region := preview.Region
		descriptor.Bounds = [2][2]float64{{region.South, region.West}, {region.North, region.East}}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(descriptor)
}

// LayerPNGHandler is a handler for /layers/first-month.png
// @Title layerPNGHandler
// @Description the first month's NDVI layer as a single PNG overlay; only the local engine produces one
// @Produce png
// @Success 200 {object} string
// @Failure 404 {object} string
// @Router /layers/first-month.png [get]
type LayerPNGHandler struct {
	Context *Context
}

// NewLayerPNGHandler creates a new handler
func NewLayerPNGHandler(ctx *Context) *LayerPNGHandler {
	return &LayerPNGHandler{Context: ctx}
}

// ServeHTTP implements the http.Handler interface for the LayerPNGHandler type
func (h LayerPNGHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	layer, err := h.Context.Layer(r.Context())
	if err != nil {
		message := fmt.Sprintf("Could not create map layer: %v", err)
		util.HTTPError(r, w, h.Context, message, http.StatusBadGateway)
		return
	}
	if len(layer.PNG) == 0 {
		util.HTTPError(r, w, h.Context, "This layer is served as tiles, see "+LayerPath, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(layer.PNG)
}

// AnomalyHandler is a handler for /anomaly
// @Title anomalyHandler
// @Description scores an uploaded NDVI GeoTIFF as the first month against the training stack
// @Accept multipart/form-data
// @Param   ndvi_file  formData  file  true  "Single-band NDVI GeoTIFF"
// @Produce png
// @Success 200 {object} string
// @Failure 400 {object} string
// @Failure 503 {object} string
// @Router /anomaly [post]
type AnomalyHandler struct {
	Context *Context
}

// NewAnomalyHandler creates a new handler
func NewAnomalyHandler(ctx *Context) *AnomalyHandler {
	return &AnomalyHandler{Context: ctx}
}

// ServeHTTP implements the http.Handler interface for the AnomalyHandler type
func (h AnomalyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	detector := h.Context.Detector
	if detector == nil {
		util.HTTPError(r, w, h.Context, "No anomaly model is loaded", http.StatusServiceUnavailable)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("ndvi_file")
	if err != nil {
		message := fmt.Sprintf("The ndvi_file upload is missing or invalid: %v", err)
		util.HTTPError(r, w, h.Context, message, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		util.HTTPError(r, w, h.Context, "Could not read upload", http.StatusBadRequest)
		return
	}
	raster, err := geotiff.Decode(data)
	if err != nil {
		message := fmt.Sprintf("%s is not a readable GeoTIFF: %v", header.Filename, err)
		util.HTTPError(r, w, h.Context, message, http.StatusBadRequest)
		return
	}
	stack, err := detector.Stack.ReplaceFirst(header.Filename, raster, detector.Forest.Features)
	if err != nil {
		util.HTTPError(r, w, h.Context, err.Error(), http.StatusBadRequest)
		return
	}
	anomalyMap, err := detector.Forest.Detect(stack)
	if err != nil {
		util.HTTPError(r, w, h.Context, err.Error(), http.StatusBadRequest)
		return
	}
	png, err := anomalyMap.PNG()
	if err != nil {
		message := fmt.Sprintf("Could not render anomaly map: %v", err)
		util.LogSimpleErr(h.Context, message, err)
		util.HTTPError(r, w, h.Context, message, http.StatusInternalServerError)
		return
	}

	anomalies, normal, noData := anomalyMap.Counts()
	util.LogInfo(h.Context, fmt.Sprintf("Scored %s: %d anomalous, %d normal, %d no-data pixels",
		header.Filename, anomalies, normal, noData))
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Anomaly-Pixels", strconv.Itoa(anomalies))
	w.Header().Set("X-Normal-Pixels", strconv.Itoa(normal))
	w.Header().Set("X-NoData-Pixels", strconv.Itoa(noData))
	w.Write(png)
}

var mapPage = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map"></div>
<script>
var map = L.map('map').setView([{{.Lat}}, {{.Lon}}], {{.Zoom}});
L.tileLayer('https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
fetch({{.LayerURL}}).then(function (r) { return r.json(); }).then(function (layer) {
  var overlay = layer.tileUrl
    ? L.tileLayer(layer.tileUrl, {opacity: 0.8})
    : L.imageOverlay(layer.pngUrl, layer.bounds, {opacity: 0.8});
  overlay.addTo(map);
  L.control.layers(null, {[layer.label]: overlay}, {collapsed: false}).addTo(map);
});
</script>
</body>
</html>
`))
