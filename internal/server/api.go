package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/inboxpilot/internal/instrumentation"
)

const (
	// DefaultAPIAddr is the default address for the API server.
	DefaultAPIAddr = ":8080"

	// DefaultAPIReadTimeout bounds reading a request, header included.
	DefaultAPIReadTimeout = 15 * time.Second

	// DefaultAPIWriteTimeout bounds writing a response. Query handling
	// spans multiple planner rounds, so this is generous.
	DefaultAPIWriteTimeout = 2 * time.Minute

	// statusProbeTimeout bounds a single reachability probe on the
	// services-status endpoint.
	statusProbeTimeout = 10 * time.Second
)

// Service status values reported by the services-status endpoint.
const (
	ServiceStatusConnected     = "connected"
	ServiceStatusError         = "error"
	ServiceStatusNotConfigured = "not_configured"
)

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// APIServerConfig holds configuration for the API server.
type APIServerConfig struct {
	// Addr is the address to bind the API server to (e.g., ":8080").
	Addr string

	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration

	// Services lists the service names the status endpoint reports,
	// in response order. A service without a registered probe is
	// reported as not configured.
	Services []string

	// Metrics records HTTP request metrics when non-nil.
	Metrics *instrumentation.Metrics
}

// APIServer serves the query and status endpoints.
type APIServer struct {
	httpServer *http.Server
	sc         *ServerContext
	health     *HealthChecker
	services   []string
	metrics    *instrumentation.Metrics
	addr       string
}

// NewAPIServer creates a new API server around the given server context.
func NewAPIServer(sc *ServerContext, config APIServerConfig) (*APIServer, error) {
	if sc == nil {
		return nil, fmt.Errorf("server context is required")
	}
	if sc.Handler() == nil {
		return nil, fmt.Errorf("query handler is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultAPIAddr
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = DefaultAPIReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = DefaultAPIWriteTimeout
	}

	s := &APIServer{
		sc:       sc,
		health:   NewHealthChecker(sc),
		services: config.Services,
		metrics:  config.Metrics,
		addr:     config.Addr,
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/query", s.instrument("/api/query", http.HandlerFunc(s.handleQuery)))
	mux.Handle("GET /api/services/status", s.instrument("/api/services/status", http.HandlerFunc(s.handleServicesStatus)))
	s.health.RegisterHealthEndpoints(mux)

	s.httpServer = &http.Server{
		Addr:              config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: config.ReadTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
	return s, nil
}

// Start starts the API server in a blocking manner.
// Call this in a goroutine if you need non-blocking operation.
func (s *APIServer) Start() error {
	slog.Info("starting API server", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the API server. New requests are
// rejected while in-flight queries drain.
func (s *APIServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	_ = s.sc.Shutdown()
	slog.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured address for the API server.
func (s *APIServer) Addr() string {
	return s.addr
}

// Handler returns the server's HTTP handler, for tests.
func (s *APIServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// HealthChecker returns the server's health checker.
func (s *APIServer) HealthChecker() *HealthChecker {
	return s.health
}

// queryRequest is the body of POST /api/query.
type queryRequest struct {
	Query string `json:"query"`
}

// errorResponse is the body of a 4xx response.
type errorResponse struct {
	Detail string `json:"detail"`
}

// ServiceStatus is the per-service entry of the services-status
// response.
type ServiceStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// handleQuery answers a natural-language query. Upstream or planner
// failures never surface as non-2xx here: the orchestrator folds them
// into the response text, so only a malformed request is an error.
func (s *APIServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "request body must be a JSON object with a \"query\" field"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "query must not be empty"})
		return
	}

	resp := s.sc.Handler().HandleQuery(r.Context(), req.Query)
	writeJSON(w, http.StatusOK, resp)
}

// handleServicesStatus probes each configured upstream service and
// reports connectivity. Probes run against a bounded context so a hung
// upstream cannot stall the endpoint indefinitely.
func (s *APIServer) handleServicesStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusProbeTimeout)
	defer cancel()

	statuses := make(map[string]ServiceStatus, len(s.services))
	for _, name := range s.services {
		p := s.sc.Probe(name)
		if p == nil {
			statuses[name] = ServiceStatus{Status: ServiceStatusNotConfigured}
			continue
		}
		if err := p.Ping(ctx); err != nil {
			statuses[name] = ServiceStatus{Status: ServiceStatusError, Message: err.Error()}
			continue
		}
		statuses[name] = ServiceStatus{Status: ServiceStatusConnected}
	}

	writeJSON(w, http.StatusOK, statuses)
}

// instrument wraps a handler to record request count and duration. The
// path label is the route pattern, never the raw URL, to keep metric
// cardinality bounded.
func (s *APIServer) instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Context(), r.Method, path, sw.status, time.Since(start))
		}
	})
}

// statusWriter captures the response status code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}
