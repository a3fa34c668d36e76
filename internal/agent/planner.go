package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/teemow/inboxpilot/internal/capability"
	"github.com/teemow/inboxpilot/internal/fault"
	"github.com/teemow/inboxpilot/internal/llm"
	"github.com/teemow/inboxpilot/internal/logging"
)

// fallbackAnswer is returned when the model produces malformed output
// twice in a row within one round.
const fallbackAnswer = "I'm sorry, I wasn't able to work out a reliable answer to that. Please try rephrasing your question."

// Planner decides, per round, whether to run more tools or answer.
// Implementations must be safe for concurrent use across queries.
type Planner interface {
	Plan(ctx context.Context, pc PlanContext) (*PlannerOutput, error)
}

// LLMPlanner is the production planner backed by a language model. A
// malformed completion is retried once with a stricter format reminder;
// a second malformed completion degrades to a fallback final answer
// instead of failing the query.
type LLMPlanner struct {
	completer llm.Completer
	registry  *capability.Registry
	logger    *slog.Logger
}

// NewLLMPlanner builds a planner over the given model and registry.
func NewLLMPlanner(completer llm.Completer, registry *capability.Registry) *LLMPlanner {
	return &LLMPlanner{
		completer: completer,
		registry:  registry,
		logger:    logging.WithService(slog.Default(), "planner"),
	}
}

// Plan runs one planning round. It returns an error only when the model
// backend itself is unavailable; parse trouble is absorbed by the
// retry-then-fallback path.
func (p *LLMPlanner) Plan(ctx context.Context, pc PlanContext) (*PlannerOutput, error) {
	prompt := buildUserPrompt(pc, p.registry.List())

	raw, err := p.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	out, parseErr := parsePlannerOutput(raw, pc.ForceFinal)
	if parseErr == nil {
		return out, nil
	}

	p.logger.WarnContext(ctx, "malformed planner output, retrying with format reminder",
		logging.Round(pc.Round),
		logging.Err(parseErr),
	)
	raw, err = p.completer.Complete(ctx, systemPrompt, prompt+"\n\n"+formatReminder)
	if err != nil {
		return nil, err
	}
	out, parseErr = parsePlannerOutput(raw, pc.ForceFinal)
	if parseErr == nil {
		return out, nil
	}

	p.logger.ErrorContext(ctx, "planner output unparseable after retry, using fallback answer",
		logging.Round(pc.Round),
		logging.Err(parseErr),
	)
	return &PlannerOutput{FinalAnswer: fallbackAnswer, Fallback: true}, nil
}

// plannerEnvelope is the wire form the model is instructed to emit.
type plannerEnvelope struct {
	Steps []struct {
		Capability string                 `json:"capability"`
		Arguments  map[string]interface{} `json:"arguments"`
		DependsOn  *int                   `json:"depends_on"`
	} `json:"steps"`
	FinalAnswer string `json:"final_answer"`
}

// parsePlannerOutput extracts and decodes the first JSON object in the
// completion. Models wrap JSON in fences or prose often enough that a
// plain Unmarshal of the whole string is not good enough.
func parsePlannerOutput(raw string, forceFinal bool) (*PlannerOutput, error) {
	payload, ok := extractJSONObject(raw)
	if !ok {
		return nil, fault.New(fault.KindPlannerParse, "no JSON object in completion")
	}

	var env plannerEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fault.Wrapf(fault.KindPlannerParse, err, "decode planner output")
	}

	if env.FinalAnswer != "" {
		return &PlannerOutput{FinalAnswer: env.FinalAnswer}, nil
	}
	if len(env.Steps) == 0 {
		return nil, fault.New(fault.KindPlannerParse, "completion has neither steps nor final_answer")
	}
	if forceFinal {
		return nil, fault.New(fault.KindPlannerParse, "expected final_answer, got more steps")
	}

	out := &PlannerOutput{Steps: make([]Step, 0, len(env.Steps))}
	for _, s := range env.Steps {
		if s.Capability == "" {
			return nil, fault.New(fault.KindPlannerParse, "step missing capability name")
		}
		args := capability.Args(s.Arguments)
		if args == nil {
			args = capability.Args{}
		}
		out.Steps = append(out.Steps, Step{
			Capability: s.Capability,
			Arguments:  args,
			DependsOn:  s.DependsOn,
		})
	}
	return out, nil
}

// extractJSONObject returns the first balanced top-level JSON object in
// s along with whether one was found. Braces inside JSON strings are
// skipped.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
