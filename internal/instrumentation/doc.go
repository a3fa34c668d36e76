// Package instrumentation provides OpenTelemetry instrumentation for
// the inboxpilot service.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, query orchestration, and upstream API calls
//   - Distributed tracing for request flows and API calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//
// # Metrics
//
// The package exposes the following metric categories:
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//   - active_queries: Gauge of queries currently in flight
//
// Query Orchestration Metrics:
//   - agent_queries_total: Counter of handled queries by terminal state
//   - agent_query_duration_seconds: Histogram of end-to-end query durations
//   - agent_query_rounds: Histogram of planning rounds used per query
//   - agent_planner_rounds_total: Counter of planner rounds by outcome
//   - agent_planner_round_duration_seconds: Histogram of planner round durations
//   - agent_capability_invocations_total: Counter of capability invocations by name and status
//   - agent_capability_duration_seconds: Histogram of capability invocation durations
//
// Upstream API Metrics:
//   - upstream_api_operations_total: Counter of upstream operations by service, operation, status
//   - upstream_api_operation_duration_seconds: Histogram of upstream operation durations
//
// MCP Tool Metrics:
//   - mcp_tool_invocations_total: Counter of MCP tool invocations by tool name and status
//   - mcp_tool_duration_seconds: Histogram of MCP tool execution durations
//
// # Tracing
//
// Distributed tracing spans are created for:
//   - HTTP request handling
//   - MCP tool invocations (tool.<name>)
//   - Upstream API calls (upstream.<service>.<operation>)
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: Metrics exporter type (prometheus, otlp, stdout, default: prometheus)
//   - TRACING_EXPORTER: Tracing exporter type (otlp, stdout, none, default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: inboxpilot)
//
// # Example Usage
//
//	// Initialize instrumentation
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.Config{
//		ServiceName:    "inboxpilot",
//		ServiceVersion: "0.1.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	// Get metrics recorder
//	recorder := provider.Metrics()
//
//	// Record an HTTP request
//	recorder.RecordHTTPRequest(ctx, "POST", "/api/query", 200, time.Since(start))
//
//	// Record an upstream API operation
//	recorder.RecordUpstreamOperation(ctx, "github", "list", "success", time.Since(start))
//
//	// Record a completed query
//	recorder.RecordQuery(ctx, "done", 2, time.Since(start))
package instrumentation
