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

// Package prommetrics implements ports.MetricSink over
// prometheus/client_golang, grounded on the teacher's package-level
// CounterVec/HistogramVec registration in orchestrator/run.go. Since
// MetricSink publishes arbitrary (namespace, metricName, dimensions)
// triples rather than a fixed metric set known at compile time, GaugeVecs
// are registered lazily, one per (namespace, metricName, sorted dimension
// keys) combination, instead of the teacher's package-level var block.
package prommetrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is a lazily-registering ports.MetricSink backed by a Prometheus
// Registerer.
type Sink struct {
	registerer prometheus.Registerer

	mu    sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

// New builds a Sink registering into reg (typically
// prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer) *Sink {
	return &Sink{registerer: reg, gauges: make(map[string]*prometheus.GaugeVec)}
}

func sanitize(s string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(s)
}

func (s *Sink) gaugeFor(namespace, metricName string, labelNames []string) *prometheus.GaugeVec {
	sorted := append([]string{}, labelNames...)
	sort.Strings(sorted)
	key := namespace + "|" + metricName + "|" + strings.Join(sorted, ",")

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[key]; ok {
		return g
	}

	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: sanitize(namespace),
		Name:      sanitize(metricName),
		Help:      "axonflow control plane metric " + namespace + "." + metricName,
	}, sorted)
	s.registerer.MustRegister(g)
	s.gauges[key] = g
	return g
}

// Publish records value under a GaugeVec keyed by namespace, metricName,
// and the dimension keys present. timestamp and unit are not representable
// in a Prometheus gauge and are accepted only to satisfy the port; both are
// ignored.
func (s *Sink) Publish(ctx context.Context, namespace, metricName string, value float64, unit string, dimensions map[string]string, timestamp time.Time) error {
	labelNames := make([]string, 0, len(dimensions))
	for k := range dimensions {
		labelNames = append(labelNames, k)
	}
	sort.Strings(labelNames)

	g := s.gaugeFor(namespace, metricName, labelNames)
	labels := make(prometheus.Labels, len(dimensions))
	for k, v := range dimensions {
		labels[k] = v
	}
	g.With(labels).Set(value)
	return nil
}
