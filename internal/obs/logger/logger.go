// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the control plane's structured JSON logging. Every
// entry carries the component, instance, and correlation identity needed to
// trace a request across the safety, routing, and telemetry subsystems.
package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	DEBUG Level = "DEBUG"
	INFO  Level = "INFO"
	WARN  Level = "WARN"
	ERROR Level = "ERROR"
)

// Logger is a structured logger bound to one component.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// Entry is one structured log line.
type Entry struct {
	Timestamp     string         `json:"timestamp"`
	Level         Level          `json:"level"`
	Component     string         `json:"component"`
	InstanceID    string         `json:"instance_id"`
	Container     string         `json:"container"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
	Message       string         `json:"message"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// New creates a Logger for the named component, reading instance identity
// from the environment the way a deployed container would set it.
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log writes one structured entry, as a single JSON line with no prefix, to
// the standard log package's writer (os.Stderr unless redirected).
func (l *Logger) Log(level Level, correlationID, requestID, message string, fields map[string]any) {
	entry := Entry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Component:     l.Component,
		InstanceID:    l.InstanceID,
		Container:     l.Container,
		CorrelationID: correlationID,
		RequestID:     requestID,
		Message:       message,
		Fields:        fields,
	}

	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}
	log.Writer().Write(append(b, '\n'))
}

func (l *Logger) Info(correlationID, requestID, message string, fields map[string]any) {
	l.Log(INFO, correlationID, requestID, message, fields)
}

func (l *Logger) Error(correlationID, requestID, message string, fields map[string]any) {
	l.Log(ERROR, correlationID, requestID, message, fields)
}

func (l *Logger) Warn(correlationID, requestID, message string, fields map[string]any) {
	l.Log(WARN, correlationID, requestID, message, fields)
}

func (l *Logger) Debug(correlationID, requestID, message string, fields map[string]any) {
	l.Log(DEBUG, correlationID, requestID, message, fields)
}

// InfoWithDuration logs an info message carrying a duration_ms field.
func (l *Logger) InfoWithDuration(correlationID, requestID, message string, durationMS float64, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["duration_ms"] = durationMS
	l.Info(correlationID, requestID, message, fields)
}

// ErrorWithCode logs an error carrying the taxonomy kind and underlying
// cause, used by cperr.Error values at the point they're logged.
func (l *Logger) ErrorWithCode(correlationID, requestID, message string, kind string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["error_kind"] = kind
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(correlationID, requestID, message, fields)
}
