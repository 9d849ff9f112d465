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

// Command controlplane is the process entrypoint: it loads configuration,
// wires every component through internal/wiring, and serves the
// admin/observability HTTP surface described in SPEC_FULL.md's domain
// stack table. Route registration and the request-processing handler's
// JSON shape are grounded on the teacher's orchestrator/run.go Run() and
// processRequestHandler; unlike that function, this entrypoint shuts down
// gracefully instead of calling log.Fatal on exit.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"axonflow/controlplane/internal/config"
	"axonflow/controlplane/internal/domain"
	"axonflow/controlplane/internal/obs/logger"
	"axonflow/controlplane/internal/wiring"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults to built-in defaults)")
	redisURL := flag.String("redis", os.Getenv("AXONFLOW_REDIS_URL"), "redis URL for the feature flag store (empty uses the in-memory default)")
	addr := flag.String("addr", getEnv("PORT_ADDR", ":8081"), "HTTP listen address")
	flag.Parse()

	log := logger.New("controlplane")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("", "", "failed to load config", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := wiring.New(ctx, cfg, *redisURL, log)
	if err != nil {
		log.Error("", "", "failed to wire control plane", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	sys.Start(ctx)

	srv := &http.Server{Addr: *addr, Handler: newRouter(sys, log)}

	go func() {
		log.Info("", "", "control plane listening", map[string]any{"addr": *addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("", "", "http server error", map[string]any{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	log.Info("", "", "shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("", "", "error during http server shutdown", map[string]any{"error": err.Error()})
	}
	sys.Stop()
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func newRouter(sys *wiring.System, log *logger.Logger) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler(sys)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/debug/router", debugRouterHandler(sys)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/process", processHandler(sys, log)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/drift/evaluate", driftEvaluateHandler(sys)).Methods(http.MethodPost)
	return r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Overall   float64   `json:"overall,omitempty"`
	Anomalies int       `json:"anomalies,omitempty"`
}

// healthHandler reports the Health Monitor's latest sample, the same
// status/service/timestamp envelope shape as the teacher's healthHandler,
// scoped down to the one subsystem this module actually owns.
func healthHandler(sys *wiring.System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Service: "axonflow-controlplane", Timestamp: time.Now()}
		if m, ok := sys.Health.Latest(); ok {
			resp.Overall = m.Overall
			resp.Anomalies = len(m.Anomalies)
		}
		if resp.Overall == 0 {
			resp.Status = "starting"
		} else if resp.Overall >= 0.8 {
			resp.Status = "healthy"
		} else {
			resp.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

type debugRouterResponse struct {
	Rules    []domain.RoutingRule           `json:"rules"`
	Breakers map[string]domain.CircuitState `json:"breakers"`
}

// debugRouterHandler dumps the Intelligent Router's active rule set and
// each known path's Circuit Breaker state, for operator inspection.
func debugRouterHandler(sys *wiring.System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := debugRouterResponse{
			Rules:    sys.Router.Rules(),
			Breakers: make(map[string]domain.CircuitState, 2),
		}
		for _, route := range []domain.RouteType{domain.RouteDirect, domain.RouteMediated} {
			resp.Breakers[string(route)] = sys.Breaker.Snapshot(string(route))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type processRequest struct {
	ID            string            `json:"id,omitempty"`
	Prompt        string            `json:"prompt"`
	Domain        string            `json:"domain,omitempty"`
	Intent        string            `json:"intent,omitempty"`
	UserID        string            `json:"userId,omitempty"`
	OperationType string            `json:"operationType,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

type processResponse struct {
	RequestID string `json:"requestId"`
	Content   string `json:"content,omitempty"`
	Provider  string `json:"provider,omitempty"`
	Route     string `json:"route,omitempty"`
	Blocked   bool   `json:"blocked,omitempty"`
	Error     string `json:"error,omitempty"`
}

// processHandler decodes a request body the same way the teacher's
// processRequestHandler decodes OrchestratorRequest, generating a request
// ID when the caller omits one, then runs it through the Gateway's
// route -> pre-check -> provider -> post-check pipeline.
func processHandler(sys *wiring.System, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body processRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(processResponse{Error: "invalid request body: " + err.Error()})
			return
		}
		if body.Prompt == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(processResponse{Error: "prompt is required"})
			return
		}

		op := domain.OperationGeneration
		switch body.OperationType {
		case string(domain.OperationRAG):
			op = domain.OperationRAG
		case string(domain.OperationCached):
			op = domain.OperationCached
		}

		req := domain.Request{
			ID:     body.ID,
			Prompt: body.Prompt,
			Context: domain.RequestContext{
				Domain: body.Domain,
				Intent: body.Intent,
				UserID: body.UserID,
			},
			Metadata: body.Metadata,
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		result := sys.Gateway.Process(r.Context(), req, op)
		resp := processResponse{RequestID: req.ID, Route: string(result.Route)}
		if result.Err != nil {
			resp.Error = result.Err.Error()
			resp.Blocked = result.Blocked
			status := http.StatusBadGateway
			if result.Blocked {
				status = http.StatusForbidden
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(resp)
			return
		}

		resp.Content = result.Response.Content
		resp.Provider = string(result.Response.Provider)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type driftEvaluateResponse struct {
	Metrics domain.DriftMetrics `json:"metrics"`
	Alerts  []domain.Alert      `json:"alerts"`
}

// driftEvaluateHandler lets an external model-evaluation job (the source
// of accuracy/quality/toxicity samples this control plane doesn't compute
// itself) submit a domain.DriftMetrics snapshot and get back the derived
// scores plus any threshold alerts, exercising the Drift Monitor over HTTP
// the same way /api/v1/process exercises the Gateway.
func driftEvaluateHandler(sys *wiring.System) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var metrics domain.DriftMetrics
		if err := json.NewDecoder(r.Body).Decode(&metrics); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "invalid request body: " + err.Error()})
			return
		}

		evaluated, alerts := sys.Drift.Evaluate(metrics)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(driftEvaluateResponse{Metrics: evaluated, Alerts: alerts})
	}
}
