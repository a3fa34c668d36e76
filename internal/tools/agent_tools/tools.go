package agent_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxpilot/internal/agent"
	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/tools/common"
)

// QueryHandler answers a natural-language query end to end.
type QueryHandler interface {
	HandleQuery(ctx context.Context, text string) *agent.Response
}

// RegisterAgentTools registers the ask tool and one tool per registered
// capability with the MCP server. The ask tool runs the full planning
// loop; the capability tools invoke a single adapter operation directly.
func RegisterAgentTools(s *mcpserver.MCPServer, registry *capability.Registry, handler QueryHandler, instr common.Instrumentation) error {
	if err := registerAskTool(s, handler, instr); err != nil {
		return fmt.Errorf("failed to register ask tool: %w", err)
	}

	for _, c := range registry.List() {
		if err := registerCapabilityTool(s, c, instr); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", c.Name, err)
		}
	}

	return nil
}

func registerAskTool(s *mcpserver.MCPServer, handler QueryHandler, instr common.Instrumentation) error {
	if handler == nil {
		return fmt.Errorf("query handler is required")
	}

	askTool := mcp.NewTool("ask",
		mcp.WithDescription("Answer a natural-language question about your mailbox and repositories. Plans and runs the necessary lookups, then returns the answer together with the list of actions taken."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to answer (e.g., 'any warnings from github?')"),
		),
	)

	s.AddTool(askTool, common.InstrumentedToolHandler("ask", instr, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		query, ok := args["query"].(string)
		if !ok || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		resp := handler.HandleQuery(ctx, query)

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode response: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}))

	return nil
}

func registerCapabilityTool(s *mcpserver.MCPServer, c *capability.Capability, instr common.Instrumentation) error {
	opts := []mcp.ToolOption{mcp.WithDescription(c.Description)}
	for _, p := range c.Params {
		opts = append(opts, paramOption(p))
	}

	tool := mcp.NewTool(c.Name, opts...)

	handler := common.InstrumentedToolHandlerWithService(c.Name, c.Service, operationFor(c.Name), instr, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := capability.Args(request.GetArguments())

		if err := c.ValidateArgs(args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result, err := c.Invoke(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to invoke %s: %v", c.Name, err)), nil
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	})

	s.AddTool(tool, handler)
	return nil
}

func paramOption(p capability.Param) mcp.ToolOption {
	switch p.Type {
	case capability.TypeInteger:
		numOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			numOpts = append(numOpts, mcp.Required())
		}
		return mcp.WithNumber(p.Name, numOpts...)
	default:
		strOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			strOpts = append(strOpts, mcp.Required())
		}
		if len(p.Enum) > 0 {
			strOpts = append(strOpts, mcp.Enum(p.Enum...))
		}
		return mcp.WithString(p.Name, strOpts...)
	}
}

// operationFor maps a capability name onto the coarse operation label
// used by the upstream API metrics.
func operationFor(name string) string {
	switch {
	case strings.HasPrefix(name, "search"):
		return instrumentation.OperationSearch
	case strings.HasPrefix(name, "get_repo"):
		return instrumentation.OperationList
	default:
		return instrumentation.OperationGet
	}
}
