package capability

import (
	"context"
	"fmt"
	"math"

	"github.com/teemow/inboxpilot/internal/fault"
)

// Type is the wire type of a capability parameter.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
)

// Param describes a single parameter of a capability. The ordered
// parameter list doubles as the schema advertised to the planner.
type Param struct {
	Name        string
	Type        Type
	Description string
	Required    bool
	// Enum restricts string parameters to a fixed set of values.
	Enum []string
}

// Args holds the arguments of a planned invocation, as decoded from the
// planner's JSON output.
type Args map[string]interface{}

// String returns the string argument for key, or "" when absent.
func (a Args) String(key string) string {
	v, _ := a[key].(string)
	return v
}

// Int returns the integer argument for key, or def when absent. JSON
// numbers decode as float64, so both forms are accepted.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Record is a single normalized result record as produced by a service
// adapter (a message, an alert, an issue).
type Record map[string]interface{}

// Result is the normalized outcome of a capability invocation.
type Result struct {
	Records []Record `json:"records"`
	// Truncated is set when the adapter dropped records beyond its
	// fixed result bound instead of failing.
	Truncated bool `json:"truncated,omitempty"`
}

// InvokeFunc executes a capability against its bound adapter operation.
type InvokeFunc func(ctx context.Context, args Args) (*Result, error)

// Capability is a named, schema-described tool backed by a service
// adapter operation. Registered once at startup and immutable after.
type Capability struct {
	// Name uniquely identifies the capability to the planner.
	Name string

	// Description is shown to the planner when advertising tools.
	Description string

	// Service names the backing adapter ("gmail", "github"). Used to
	// exclude an adapter from later rounds after an auth failure.
	Service string

	// Params is the ordered parameter schema.
	Params []Param

	// Invoke dispatches to the adapter.
	Invoke InvokeFunc

	// Describe renders a human-readable action description for the
	// actions_taken trace, e.g. `Searched Gmail for "github"`.
	Describe func(args Args) string
}

// ValidateArgs checks args against the capability's parameter schema.
// A missing required parameter, a type mismatch, or a value outside an
// enum rejects the step before it reaches the adapter. Unknown keys are
// ignored; planners occasionally add extras and they are harmless.
func (c *Capability) ValidateArgs(args Args) error {
	for _, p := range c.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fault.Newf(fault.KindInvalidArguments, "%s: missing required parameter %q", c.Name, p.Name)
			}
			continue
		}
		switch p.Type {
		case TypeString:
			s, ok := v.(string)
			if !ok {
				return fault.Newf(fault.KindInvalidArguments, "%s: parameter %q must be a string", c.Name, p.Name)
			}
			if len(p.Enum) > 0 && !contains(p.Enum, s) {
				return fault.Newf(fault.KindInvalidArguments, "%s: parameter %q must be one of %v", c.Name, p.Name, p.Enum)
			}
		case TypeInteger:
			switch n := v.(type) {
			case int:
			case float64:
				if n != math.Trunc(n) {
					return fault.Newf(fault.KindInvalidArguments, "%s: parameter %q must be an integer", c.Name, p.Name)
				}
			default:
				return fault.Newf(fault.KindInvalidArguments, "%s: parameter %q must be an integer", c.Name, p.Name)
			}
		default:
			return fault.Newf(fault.KindInvalidArguments, "%s: parameter %q has unsupported type %q", c.Name, p.Name, p.Type)
		}
	}
	return nil
}

// ActionDescription renders the human-readable trace entry for an
// invocation, falling back to a generic form when the capability does
// not provide its own renderer.
func (c *Capability) ActionDescription(args Args) string {
	if c.Describe != nil {
		return c.Describe(args)
	}
	return fmt.Sprintf("Invoked %s", c.Name)
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
