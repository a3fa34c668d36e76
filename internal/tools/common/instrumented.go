package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxpilot/internal/instrumentation"
)

// ToolHandlerFunc is the mcp-go tool handler signature. It is an alias
// so wrapped handlers stay assignable to server.ToolHandlerFunc.
type ToolHandlerFunc = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// Instrumentation bundles the optional metrics recorder and audit
// logger shared by all instrumented tool handlers. Either field may be
// nil; a fully nil value makes the wrappers pass-through. Account is
// the configured mailbox account and is attached to mailbox-backed
// invocations when set.
type Instrumentation struct {
	Metrics     *instrumentation.Metrics
	AuditLogger *instrumentation.AuditLogger
	Account     string
}

// InstrumentedToolHandler wraps a tool handler with metrics and audit logging.
// It records tool invocation metrics and logs the invocation for audit purposes.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", instr, handler))
func InstrumentedToolHandler(toolName string, instr Instrumentation, handler ToolHandlerFunc) ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		// If no instrumentation configured, just call the handler
		if instr.Metrics == nil && instr.AuditLogger == nil {
			return handler(ctx, request)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx)

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
			if err != nil {
				invocation.CompleteWithError(err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			instrumentation.SetSpanSuccess(span)
			invocation.CompleteSuccess()
		}

		if instr.Metrics != nil {
			instr.Metrics.RecordToolInvocation(ctx, toolName, status, duration)
		}

		if instr.AuditLogger != nil {
			instr.AuditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}

// InstrumentedToolHandlerWithService is like InstrumentedToolHandler but also
// records the upstream service and operation type for more detailed metrics.
//
// This handler records both:
// - MCP tool invocation metrics (mcp_tool_invocations_total, mcp_tool_duration_seconds)
// - upstream API operation metrics (upstream_api_operations_total, upstream_api_operation_duration_seconds)
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandlerWithService("my_tool", "gmail", "search", instr, handler))
func InstrumentedToolHandlerWithService(toolName, serviceName, operation string, instr Instrumentation, handler ToolHandlerFunc) ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if instr.Metrics == nil && instr.AuditLogger == nil {
			return handler(ctx, request)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.NewSpanAttributeBuilder().
				WithService(serviceName).
				WithOperation(operation).
				WithReadOnly(true).
				Build()...,
		)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithService(serviceName, operation)

		account := ""
		if serviceName == instrumentation.ServiceGmail {
			account = instr.Account
			invocation.WithAccount(account)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
			if err != nil {
				invocation.CompleteWithError(err)
			} else {
				invocation.Complete(false, nil)
			}
		} else {
			instrumentation.SetSpanSuccess(span)
			invocation.CompleteSuccess()
		}

		if instr.Metrics != nil {
			if account != "" {
				instr.Metrics.RecordToolInvocationWithAccount(ctx, toolName, status, account, duration)
			} else {
				instr.Metrics.RecordToolInvocation(ctx, toolName, status, duration)
			}
			instr.Metrics.RecordUpstreamOperation(ctx, serviceName, operation, status, duration)
		}

		if instr.AuditLogger != nil {
			instr.AuditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}
