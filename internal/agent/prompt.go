package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teemow/inboxpilot/internal/capability"
)

// maxResultChars bounds how much of one step's records is fed back into
// the planner prompt. Records beyond the cut are dropped and the prompt
// notes how many were omitted, so a large alert listing cannot blow up
// model context.
const maxResultChars = 4000

const systemPrompt = `You are a planning assistant for a personal inbox and code-hosting dashboard.
You answer the user's question by planning read-only tool calls, then synthesizing a final answer from their results.

Respond with EXACTLY ONE JSON object, no prose around it, in one of two forms:

To call tools:
{"steps": [{"capability": "<name>", "arguments": {...}, "depends_on": null}]}

To answer (when you have enough information, or no tool is needed):
{"final_answer": "<your answer to the user>"}

Rules:
- Only use capabilities from the list given to you, with the parameters they declare.
- "depends_on" is the zero-based index of an earlier step this step needs; use null when independent.
- Prefer few, targeted calls. Results are truncated, so do not page through large sets.`

const formatReminder = `Your previous reply was not valid JSON in the required form.
Reply again with ONLY one JSON object: either {"steps": [...]} or {"final_answer": "..."}. No markdown fences, no commentary.`

const forceFinalInstruction = `The tool budget is exhausted. You MUST reply with {"final_answer": "..."} now, summarizing what the results show and naming anything that failed.`

// buildCapabilityList renders the registered capabilities for the
// prompt, in registration order, skipping adapters excluded after an
// authentication failure.
func buildCapabilityList(caps []*capability.Capability, excluded map[string]bool) string {
	var b strings.Builder
	for _, c := range caps {
		if excluded[c.Service] {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		for _, p := range c.Params {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&b, "    %s (%s, %s): %s", p.Name, p.Type, req, p.Description)
			if len(p.Enum) > 0 {
				fmt.Fprintf(&b, " [one of: %s]", strings.Join(p.Enum, ", "))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// buildUserPrompt assembles the per-round planner input: the query, the
// available capabilities, and the results accumulated so far.
func buildUserPrompt(pc PlanContext, caps []*capability.Capability) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User query: %s\n\n", pc.Query.Text)
	b.WriteString("Available capabilities:\n")
	b.WriteString(buildCapabilityList(caps, pc.ExcludedServices))

	if len(pc.Results) > 0 {
		b.WriteString("\nResults so far:\n")
		for i, r := range pc.Results {
			fmt.Fprintf(&b, "[%d] %s -> %s\n", i, r.Step.Capability, r.Outcome)
			if r.Outcome == OutcomeSuccess {
				b.WriteString(indent(serializeResult(r.Data)))
			} else {
				fmt.Fprintf(&b, "    error (%s): %s\n", r.ErrKind, r.ErrMessage)
			}
		}
	}

	if pc.ForceFinal {
		b.WriteString("\n" + forceFinalInstruction + "\n")
	}
	return b.String()
}

// serializeResult renders a step's records as compact JSON, bounded by
// maxResultChars. When the bound cuts records off, the tail notes how
// many were omitted.
func serializeResult(res *capability.Result) string {
	if res == nil || len(res.Records) == 0 {
		return "(no records)\n"
	}

	var b strings.Builder
	included := 0
	for _, rec := range res.Records {
		line, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if b.Len()+len(line) > maxResultChars {
			break
		}
		b.Write(line)
		b.WriteString("\n")
		included++
	}
	if omitted := len(res.Records) - included; omitted > 0 {
		fmt.Fprintf(&b, "(%d more records omitted)\n", omitted)
	}
	if res.Truncated {
		b.WriteString("(result set was truncated by the service)\n")
	}
	return b.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
