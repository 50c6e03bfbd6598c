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

package util

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// Error separates what goes into the log from what is shown to a caller
type Error struct {
	LogMsg     string
	SimpleMsg  string
	Response   string
	URL        string
	HTTPStatus int
}

func (e Error) Error() string {
	return e.SimpleMsg
}

// Log writes the detailed message and returns the error itself
func (e Error) Log(ctx LogContext, msgPrefix string) error {
	fields := logrus.Fields{}
	if e.URL != "" {
		fields["url"] = e.URL
	}
	if e.HTTPStatus != 0 {
		fields["status"] = e.HTTPStatus
	}
	if e.Response != "" {
		fields["response"] = e.Response
	}
	message := e.LogMsg
	if message == "" {
		message = e.SimpleMsg
	}
	entry(ctx).WithFields(fields).Error(msgPrefix + message)
	return e
}

// HTTPErr is an error that should be reported with a particular HTTP status
type HTTPErr struct {
	Status  int
	Message string
}

func (err HTTPErr) Error() string {
	return fmt.Sprintf("%d: %s", err.Status, err.Message)
}

// HTTPError logs and writes an error response
func HTTPError(request *http.Request, writer http.ResponseWriter, ctx LogContext, message string, status int) {
	LogAudit(ctx, LogAuditInput{
		Actor:    request.URL.String(),
		Action:   request.Method + " response",
		Actee:    request.RemoteAddr,
		Message:  message,
		Severity: ERROR,
	})
	http.Error(writer, message, status)
}
