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
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppName is the name every log entry is tagged with
const AppName = "ndvi-composer"

// Severity is the severity of an audit log entry
type Severity string

// Audit severities
const (
	DEBUG   Severity = "DEBUG"
	INFO    Severity = "INFO"
	WARNING Severity = "WARNING"
	ERROR   Severity = "ERROR"
)

var logger = logrus.New()

// LogContext is implemented by anything that carries enough
// identity to tag a log entry
type LogContext interface {
	AppName() string
	SessionID() string
}

// BasicLogContext is a LogContext with a lazily created session ID
type BasicLogContext struct {
	once      sync.Once
	sessionID string
}

// AppName returns the application name
func (c *BasicLogContext) AppName() string {
	return AppName
}

// SessionID returns a Session ID, creating one if needed
func (c *BasicLogContext) SessionID() string {
	c.once.Do(func() {
		c.sessionID, _ = PsuUUID()
	})
	return c.sessionID
}

// LogAuditInput describes a single audited action
type LogAuditInput struct {
	Actor    string
	Action   string
	Actee    string
	Message  string
	Severity Severity
}

// InitLogger configures the package logger. Level is any logrus level name;
// format is "json" or "text".
func InitLogger(level, format string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(parsed)

	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}

// SetLogOutput redirects log output, mostly for tests
func SetLogOutput(w io.Writer) {
	logger.SetOutput(w)
}

func entry(ctx LogContext) *logrus.Entry {
	if ctx == nil {
		ctx = &BasicLogContext{}
	}
	return logger.WithFields(logrus.Fields{
		"app":     ctx.AppName(),
		"session": ctx.SessionID(),
	})
}

// LogInfo logs an informational message
func LogInfo(ctx LogContext, message string) {
	entry(ctx).Info(message)
}

// LogAlert logs something that deserves attention but did not fail
func LogAlert(ctx LogContext, message string) {
	entry(ctx).Warn(message)
}

// LogSimpleErr logs an error with a message and returns an error
// combining both
func LogSimpleErr(ctx LogContext, message string, err error) error {
	message = strings.TrimSpace(message)
	entry(ctx).WithError(err).Error(message)
	if err == nil {
		return errors.New(message)
	}
	return fmt.Errorf("%s %w", message, err)
}

// LogAudit logs who did what to whom
func LogAudit(ctx LogContext, input LogAuditInput) {
	entry(ctx).WithFields(logrus.Fields{
		"actor":  input.Actor,
		"action": input.Action,
		"actee":  input.Actee,
	}).Log(severityLevel(input.Severity), input.Message)
}

func severityLevel(severity Severity) logrus.Level {
	switch severity {
	case DEBUG:
		return logrus.DebugLevel
	case WARNING:
		return logrus.WarnLevel
	case ERROR:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// PsuUUID returns a random UUID string
func PsuUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
