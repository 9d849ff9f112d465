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

// Package logsink implements ports.NotificationSink and ports.MetricSink as
// structured-log-only defaults. Where the teacher's connectors/slack
// Community stub degrades an unlicensed channel by always erroring, this
// default degrades an unconfigured channel the opposite way: it never
// fails the caller, it just logs, so the control plane has a safe
// zero-dependency binding for both ports out of the box.
package logsink

import (
	"context"
	"time"

	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/ports"
)

// NotificationSink is a log-only ports.NotificationSink.
type NotificationSink struct {
	log *logger.Logger
}

// New builds a NotificationSink writing through log.
func New(log *logger.Logger) *NotificationSink {
	return &NotificationSink{log: log}
}

// Publish logs a notification at info level. Never returns an error: a
// notification channel with no real backend must not make the caller treat
// a routine event (e.g. a shutdown trigger) as failed.
func (s *NotificationSink) Publish(ctx context.Context, channel ports.NotificationChannel, subject, body string) error {
	s.log.Info("", "", "notification", map[string]any{"channel": string(channel), "subject": subject, "body": body})
	return nil
}

// MetricSink is a log-only ports.MetricSink.
type MetricSink struct {
	log *logger.Logger
}

// NewMetricSink builds a MetricSink writing through log.
func NewMetricSink(log *logger.Logger) *MetricSink {
	return &MetricSink{log: log}
}

// Publish logs a metric sample at debug level.
func (s *MetricSink) Publish(ctx context.Context, namespace, metricName string, value float64, unit string, dimensions map[string]string, timestamp time.Time) error {
	s.log.Debug("", "", "metric", map[string]any{
		"namespace": namespace, "metric": metricName, "value": value, "unit": unit, "dimensions": dimensions,
	})
	return nil
}
