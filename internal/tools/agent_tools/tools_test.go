package agent_tools

import (
	"context"
	"encoding/json"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/agent"
	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/tools/common"
)

type stubHandler struct{}

func (stubHandler) HandleQuery(_ context.Context, text string) *agent.Response {
	return &agent.Response{Text: "answered: " + text, ActionsTaken: []string{}}
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(&capability.Capability{
		Name:        "search_gmail",
		Description: "Search mailbox messages",
		Service:     "gmail",
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Required: true},
			{Name: "max_results", Type: capability.TypeInteger},
		},
		Invoke: func(context.Context, capability.Args) (*capability.Result, error) {
			return &capability.Result{}, nil
		},
	}))
	require.NoError(t, reg.Register(&capability.Capability{
		Name:        "get_repo_issues",
		Description: "List repository issues",
		Service:     "github",
		Params: []capability.Param{
			{Name: "repo_name", Type: capability.TypeString, Required: true},
			{Name: "state", Type: capability.TypeString, Enum: []string{"open", "closed", "all"}},
		},
		Invoke: func(context.Context, capability.Args) (*capability.Result, error) {
			return &capability.Result{}, nil
		},
	}))
	return reg
}

func TestRegisterAgentTools(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "0.0.0")

	err := RegisterAgentTools(s, testRegistry(t), stubHandler{}, common.Instrumentation{})
	require.NoError(t, err)
}

func TestAskToolInvocation(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterAgentTools(s, testRegistry(t), stubHandler{}, common.Instrumentation{}))

	resp := s.HandleMessage(context.Background(), []byte(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tools/call",
		"params": {"name": "ask", "arguments": {"query": "any github warnings?"}}
	}`))

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(out), "answered: any github warnings?")
}

func TestRegisterAgentToolsRequiresHandler(t *testing.T) {
	s := mcpserver.NewMCPServer("test", "0.0.0")

	err := RegisterAgentTools(s, testRegistry(t), nil, common.Instrumentation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query handler")
}

func TestOperationFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "search_gmail", want: instrumentation.OperationSearch},
		{name: "search_github_repos", want: instrumentation.OperationSearch},
		{name: "get_repo_alerts", want: instrumentation.OperationList},
		{name: "get_repo_issues", want: instrumentation.OperationList},
		{name: "get_email", want: instrumentation.OperationGet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, operationFor(tt.name))
		})
	}
}
