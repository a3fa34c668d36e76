package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	// Common attributes (reused across metrics)
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrState      = "state"
	attrOutcome    = "outcome"
	attrOperation  = "operation"
	attrService    = "service"
	attrCapability = "capability"
	attrTool       = "tool"
	attrAccount    = "account"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeQueries       metric.Int64UpDownCounter

	// Query orchestration metrics
	queriesTotal  metric.Int64Counter
	queryDuration metric.Float64Histogram
	queryRounds   metric.Int64Histogram

	// Planner metrics
	plannerRoundsTotal   metric.Int64Counter
	plannerRoundDuration metric.Float64Histogram

	// Capability execution metrics
	capabilityInvocationsTotal metric.Int64Counter
	capabilityDuration         metric.Float64Histogram

	// Upstream API metrics (gmail, github, llm)
	upstreamOperationsTotal   metric.Int64Counter
	upstreamOperationDuration metric.Float64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Configuration
	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeQueries, err = meter.Int64UpDownCounter(
		"active_queries",
		metric.WithDescription("Number of queries currently being processed"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_queries gauge: %w", err)
	}

	// Query Orchestration Metrics
	m.queriesTotal, err = meter.Int64Counter(
		"agent_queries_total",
		metric.WithDescription("Total number of handled queries by terminal state"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_queries_total counter: %w", err)
	}

	m.queryDuration, err = meter.Float64Histogram(
		"agent_query_duration_seconds",
		metric.WithDescription("End-to-end query handling duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_query_duration_seconds histogram: %w", err)
	}

	m.queryRounds, err = meter.Int64Histogram(
		"agent_query_rounds",
		metric.WithDescription("Number of planning rounds used per query"),
		metric.WithUnit("{round}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_query_rounds histogram: %w", err)
	}

	// Planner Metrics
	m.plannerRoundsTotal, err = meter.Int64Counter(
		"agent_planner_rounds_total",
		metric.WithDescription("Total number of planner rounds by outcome"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_planner_rounds_total counter: %w", err)
	}

	m.plannerRoundDuration, err = meter.Float64Histogram(
		"agent_planner_round_duration_seconds",
		metric.WithDescription("Planner round duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_planner_round_duration_seconds histogram: %w", err)
	}

	// Capability Execution Metrics
	m.capabilityInvocationsTotal, err = meter.Int64Counter(
		"agent_capability_invocations_total",
		metric.WithDescription("Total number of capability invocations by capability and status"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_capability_invocations_total counter: %w", err)
	}

	m.capabilityDuration, err = meter.Float64Histogram(
		"agent_capability_duration_seconds",
		metric.WithDescription("Capability invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent_capability_duration_seconds histogram: %w", err)
	}

	// Upstream API Metrics
	m.upstreamOperationsTotal, err = meter.Int64Counter(
		"upstream_api_operations_total",
		metric.WithDescription("Total number of upstream API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_api_operations_total counter: %w", err)
	}

	m.upstreamOperationDuration, err = meter.Float64Histogram(
		"upstream_api_operation_duration_seconds",
		metric.WithDescription("Upstream API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_api_operation_duration_seconds histogram: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordQuery records a completed query with its terminal state, the
// number of planning rounds it used, and its total duration.
//
// Parameters:
//   - state: Terminal orchestrator state ("done" or "failed")
//   - rounds: Number of planning rounds the query consumed
//   - duration: End-to-end handling time
func (m *Metrics) RecordQuery(ctx context.Context, state string, rounds int, duration time.Duration) {
	if m.queriesTotal == nil || m.queryDuration == nil || m.queryRounds == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrState, state),
	}

	m.queriesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.queryRounds.Record(ctx, int64(rounds), metric.WithAttributes(attrs...))
}

// RecordPlannerRound records one planner round with its outcome.
// Outcome should be one of: "steps", "final_answer", "fallback", "error"
func (m *Metrics) RecordPlannerRound(ctx context.Context, outcome string, duration time.Duration) {
	if m.plannerRoundsTotal == nil || m.plannerRoundDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
	}

	m.plannerRoundsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.plannerRoundDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCapabilityInvocation records one capability execution.
//
// Parameters:
//   - capabilityName: Registered capability name (e.g. "search_gmail")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the invocation including retries
func (m *Metrics) RecordCapabilityInvocation(ctx context.Context, capabilityName, status string, duration time.Duration) {
	if m.capabilityInvocationsTotal == nil || m.capabilityDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrCapability, capabilityName),
		attribute.String(attrStatus, status),
	}

	m.capabilityInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.capabilityDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUpstreamOperation records an upstream API operation with service,
// operation, status, and duration.
//
// Parameters:
//   - service: Upstream service name (gmail, github, llm)
//   - operation: Operation type (list, get, search, complete, ping)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordUpstreamOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.upstreamOperationsTotal == nil || m.upstreamOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.upstreamOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.upstreamOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "ask", "search_gmail")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocationWithAccount records an MCP tool invocation with account info.
// This is the detailed version that includes account information when detailedLabels is enabled.
//
// Parameters:
//   - toolName: Name of the MCP tool
//   - status: Result status ("success" or "error")
//   - account: User account/email (only included if detailedLabels is true)
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveQueries increments the in-flight query counter.
func (m *Metrics) IncrementActiveQueries(ctx context.Context) {
	if m.activeQueries == nil {
		return // Instrumentation not initialized
	}

	m.activeQueries.Add(ctx, 1)
}

// DecrementActiveQueries decrements the in-flight query counter.
func (m *Metrics) DecrementActiveQueries(ctx context.Context) {
	if m.activeQueries == nil {
		return // Instrumentation not initialized
	}

	m.activeQueries.Add(ctx, -1)
}
