package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/fault"
)

// scriptedCompleter returns canned completions in sequence.
type scriptedCompleter struct {
	completions []string
	err         error
	prompts     []string
}

func (s *scriptedCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	i := len(s.prompts) - 1
	if i >= len(s.completions) {
		i = len(s.completions) - 1
	}
	return s.completions[i], nil
}

func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(&capability.Capability{
		Name:        "search_gmail",
		Description: "Search the Gmail inbox",
		Service:     "gmail",
		Params: []capability.Param{
			{Name: "query", Type: capability.TypeString, Required: true, Description: "Gmail search query"},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			return &capability.Result{}, nil
		},
	}))
	require.NoError(t, reg.Register(&capability.Capability{
		Name:        "get_repo_alerts",
		Description: "List Dependabot alerts for a repository",
		Service:     "github",
		Params: []capability.Param{
			{Name: "repo_name", Type: capability.TypeString, Description: "owner/repo"},
		},
		Invoke: func(ctx context.Context, args capability.Args) (*capability.Result, error) {
			return &capability.Result{}, nil
		},
	}))
	return reg
}

func TestPlanParsesSteps(t *testing.T) {
	completer := &scriptedCompleter{completions: []string{
		`{"steps": [{"capability": "search_gmail", "arguments": {"query": "github"}, "depends_on": null}]}`,
	}}
	p := NewLLMPlanner(completer, testRegistry(t))

	out, err := p.Plan(context.Background(), PlanContext{Query: Query{Text: "any github mail?"}, Round: 1})
	require.NoError(t, err)
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "search_gmail", out.Steps[0].Capability)
	assert.Equal(t, "github", out.Steps[0].Arguments.String("query"))
	assert.Nil(t, out.Steps[0].DependsOn)
	assert.Empty(t, out.FinalAnswer)
}

func TestPlanParsesFinalAnswer(t *testing.T) {
	completer := &scriptedCompleter{completions: []string{
		"Here you go:\n```json\n{\"final_answer\": \"Nothing urgent in your inbox.\"}\n```",
	}}
	p := NewLLMPlanner(completer, testRegistry(t))

	out, err := p.Plan(context.Background(), PlanContext{Query: Query{Text: "anything urgent?"}, Round: 1})
	require.NoError(t, err)
	assert.Empty(t, out.Steps)
	assert.Equal(t, "Nothing urgent in your inbox.", out.FinalAnswer)
	assert.False(t, out.Fallback)
}

func TestPlanRetriesOnceWithFormatReminder(t *testing.T) {
	completer := &scriptedCompleter{completions: []string{
		"I think I should search the inbox first.",
		`{"final_answer": "done"}`,
	}}
	p := NewLLMPlanner(completer, testRegistry(t))

	out, err := p.Plan(context.Background(), PlanContext{Query: Query{Text: "q"}, Round: 1})
	require.NoError(t, err)
	assert.Equal(t, "done", out.FinalAnswer)

	require.Len(t, completer.prompts, 2)
	assert.NotContains(t, completer.prompts[0], "not valid JSON")
	assert.Contains(t, completer.prompts[1], "not valid JSON")
}

func TestPlanFallsBackAfterTwoParseFailures(t *testing.T) {
	completer := &scriptedCompleter{completions: []string{
		"still not json",
		"and again not json",
	}}
	p := NewLLMPlanner(completer, testRegistry(t))

	out, err := p.Plan(context.Background(), PlanContext{Query: Query{Text: "q"}, Round: 1})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, fallbackAnswer, out.FinalAnswer)
	assert.Len(t, completer.prompts, 2)
}

func TestPlanPropagatesModelErrors(t *testing.T) {
	completer := &scriptedCompleter{err: fault.New(fault.KindAuth, "bad key")}
	p := NewLLMPlanner(completer, testRegistry(t))

	_, err := p.Plan(context.Background(), PlanContext{Query: Query{Text: "q"}, Round: 1})
	require.Error(t, err)
	assert.Equal(t, fault.KindAuth, fault.KindOf(err))
}

func TestPlanForceFinalRejectsMoreSteps(t *testing.T) {
	completer := &scriptedCompleter{completions: []string{
		`{"steps": [{"capability": "search_gmail", "arguments": {"query": "x"}}]}`,
	}}
	p := NewLLMPlanner(completer, testRegistry(t))

	out, err := p.Plan(context.Background(), PlanContext{Query: Query{Text: "q"}, Round: 4, ForceFinal: true})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
		ok       bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"prose around", `Sure! {"a": {"b": 2}} Hope that helps.`, `{"a": {"b": 2}}`, true},
		{"brace inside string", `{"a": "closing } brace"}`, `{"a": "closing } brace"}`, true},
		{"escaped quote", `{"a": "say \"hi\" {now}"}`, `{"a": "say \"hi\" {now}"}`, true},
		{"unbalanced", `{"a": 1`, "", false},
		{"no object", "plain text only", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildUserPromptOmitsExcludedServices(t *testing.T) {
	reg := testRegistry(t)
	pc := PlanContext{
		Query:            Query{Text: "q"},
		Round:            2,
		ExcludedServices: map[string]bool{"gmail": true},
	}
	prompt := buildUserPrompt(pc, reg.List())
	assert.NotContains(t, prompt, "search_gmail")
	assert.Contains(t, prompt, "get_repo_alerts")
}

func TestSerializeResultBoundsRecords(t *testing.T) {
	res := &capability.Result{}
	for i := 0; i < 100; i++ {
		res.Records = append(res.Records, capability.Record{
			"subject": strings.Repeat("x", 200),
		})
	}
	out := serializeResult(res)
	assert.Less(t, len(out), maxResultChars+200)
	assert.Contains(t, out, "more records omitted")
}

func TestPlanStepMissingCapabilityIsParseError(t *testing.T) {
	_, err := parsePlannerOutput(`{"steps": [{"arguments": {}}]}`, false)
	require.Error(t, err)
	assert.Equal(t, fault.KindPlannerParse, fault.KindOf(err))
}
