// Package server provides the HTTP surfaces of the inboxpilot service.
//
// # Key Components
//
// ServerContext holds the query handler and the per-service
// reachability probes, and coordinates graceful shutdown.
//
// APIServer serves the application endpoints:
//   - POST /api/query answers a natural-language query; upstream and
//     planner failures are folded into the response body, so the
//     endpoint only returns non-2xx for a malformed request
//   - GET /api/services/status probes each configured upstream service
//   - /healthz and /readyz back Kubernetes liveness and readiness
//
// MetricsServer serves Prometheus metrics on a dedicated port,
// isolating operational metrics from application traffic.
package server
