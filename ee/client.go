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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/NoobML/ndvi-anomaly-detection/model"
	"github.com/NoobML/ndvi-anomaly-detection/util"
	"golang.org/x/oauth2/google"
)

// OAuth scopes needed to submit exports and create maps
var Scopes = []string{
	"https://www.googleapis.com/auth/earthengine",
	"https://www.googleapis.com/auth/cloud-platform",
}

// NewDefaultHTTPClient returns a client authorized with the application
// default credentials of the environment
func NewDefaultHTTPClient(ctx context.Context) (*http.Client, error) {
	return google.DefaultClient(ctx, Scopes...)
}

// NewClient creates a client for the given project
func NewClient(baseURL, project string, httpClient *http.Client) (*Client, error) {
	if project == "" {
		return nil, errors.New("an Earth Engine project is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid Earth Engine URL %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = util.HTTPClient()
	}
	return &Client{BaseURL: baseURL, Project: project, HTTPClient: httpClient}, nil
}

// ExportImage starts a Drive export and returns as soon as the platform
// has accepted it
func (c *Client) ExportImage(ctx context.Context, req ExportRequest) (*Operation, error) {
	fileFormat, ok := wireFileFormats[req.FileFormat]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q", req.FileFormat)
	}
	expression, err := Encode(req.PreparedImage().Node())
	if err != nil {
		return nil, util.LogSimpleErr(c, fmt.Sprintf("Failed to encode expression for %v.", req.Description), err)
	}
	if req.RequestID == "" {
		req.RequestID, _ = util.PsuUUID()
	}
	body := exportImageRequest{
		Expression:  expression,
		Description: req.Description,
		FileExportOptions: fileExportOptions{
			FileFormat:       fileFormat,
			DriveDestination: driveDestination{Folder: req.Folder, FilenamePrefix: req.Description},
		},
		MaxPixels: req.MaxPixels,
		RequestID: req.RequestID,
	}

	var operation Operation
	input := requestInput{method: "POST", inputURL: c.projectPath("image:export"), body: body}
	if err = c.doJSON(ctx, input, "start export "+req.Description, &operation); err != nil {
		return nil, err
	}
	return &operation, nil
}

// CreateMap registers a visualized image and returns its tile template
func (c *Client) CreateMap(ctx context.Context, image Image, vis VisParams, label string) (*MapLayer, error) {
	expression, err := Encode(image.Visualize(vis).Node())
	if err != nil {
		return nil, util.LogSimpleErr(c, "Failed to encode map expression.", err)
	}
	var created eeMap
	input := requestInput{method: "POST", inputURL: c.projectPath("maps"), body: createMapRequest{Expression: expression, FileFormat: "AUTO_JPEG_PNG"}}
	if err = c.doJSON(ctx, input, "create map "+label, &created); err != nil {
		return nil, err
	}
	if created.Name == "" {
		return nil, util.Error{LogMsg: "Map creation returned no name", SimpleMsg: "Earth Engine returned an unexpected response while creating a map."}.Log(c, "")
	}
	return &MapLayer{
		Name:    created.Name,
		Label:   label,
		TileURL: c.resolve("v1/"+created.Name) + "/tiles/{z}/{x}/{y}",
	}, nil
}

// ListOperations returns every operation of the project, following pages
func (c *Client) ListOperations(ctx context.Context) ([]Operation, error) {
	var operations []Operation
	pageToken := ""
	for {
		path := c.projectPath("operations")
		if pageToken != "" {
			path += "?pageToken=" + url.QueryEscape(pageToken)
		}
		var page listOperationsResponse
		if err := c.doJSON(ctx, requestInput{method: "GET", inputURL: path}, "list operations", &page); err != nil {
			return nil, err
		}
		operations = append(operations, page.Operations...)
		if page.NextPageToken == "" {
			return operations, nil
		}
		pageToken = page.NextPageToken
	}
}

// OperationStatuses returns the status of each operation keyed by name
func (c *Client) OperationStatuses(ctx context.Context) (map[string]model.OperationStatus, error) {
	operations, err := c.ListOperations(ctx)
	if err != nil {
		return nil, err
	}
	statuses := make(map[string]model.OperationStatus, len(operations))
	for _, op := range operations {
		statuses[op.Name] = op.Status()
	}
	return statuses, nil
}

func (c *Client) projectPath(method string) string {
	return "v1/projects/" + c.Project + "/" + method
}

func (c *Client) resolve(relative string) string {
	base := c.BaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return base + relative
	}
	relativeURL, err := url.Parse(relative)
	if err != nil {
		return base + relative
	}
	return baseURL.ResolveReference(relativeURL).String()
}

type requestInput struct {
	method   string
	inputURL string
	body     interface{}
}

// doJSON performs a request and decodes a successful response into out
func (c *Client) doJSON(ctx context.Context, input requestInput, what string, out interface{}) error {
	response, err := c.doRequest(ctx, input)
	if err != nil {
		return util.LogSimpleErr(c, fmt.Sprintf("Failed to %v.", what), err)
	}
	defer response.Body.Close()
	body, _ := io.ReadAll(response.Body)

	switch {
	case (response.StatusCode >= 400) && (response.StatusCode < 500):
		message := fmt.Sprintf("Failed to %v: %v. %v", what, response.Status, errorMessage(body))
		util.LogAlert(c, message)
		return util.HTTPErr{Status: response.StatusCode, Message: message}
	case response.StatusCode >= 500:
		return util.LogSimpleErr(c, fmt.Sprintf("Failed to %v.", what), errors.New(response.Status))
	default:
		//no op
	}

	if err = json.Unmarshal(body, out); err != nil {
		eeErr := util.Error{LogMsg: "Failed to Unmarshal response from Earth Engine: " + err.Error(),
			SimpleMsg:  "Earth Engine returned an unexpected response for this request. See log for further details.",
			Response:   string(body),
			URL:        input.inputURL,
			HTTPStatus: response.StatusCode}
		return eeErr.Log(c, "")
	}
	return nil
}

func errorMessage(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return ""
}

// doRequest performs the request
func (c *Client) doRequest(ctx context.Context, input requestInput) (*http.Response, error) {
	var requestBody []byte
	if input.body != nil {
		var err error
		if requestBody, err = json.Marshal(input.body); err != nil {
			return nil, util.LogSimpleErr(c, fmt.Sprintf("Failed to marshal request object %T.", input.body), err)
		}
	}

	inputURL := c.resolve(input.inputURL)
	request, err := http.NewRequestWithContext(ctx, input.method, inputURL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, util.LogSimpleErr(c, fmt.Sprintf("Failed to make a new HTTP request for %v.", inputURL), err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("X-Goog-User-Project", c.Project)

	util.LogAudit(c, util.LogAuditInput{Actor: "ee/doRequest", Action: input.method, Actee: inputURL, Message: "Requesting Earth Engine", Severity: util.DEBUG})
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = util.HTTPClient()
	}
	return httpClient.Do(request)
}
