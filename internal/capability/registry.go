package capability

import (
	"errors"
	"fmt"
)

// ErrDuplicateCapability indicates a capability name was registered twice.
var ErrDuplicateCapability = errors.New("duplicate capability")

// ErrUnknownCapability indicates a lookup for an unregistered name.
var ErrUnknownCapability = errors.New("unknown capability")

// Registry maps capability names to their definitions. It is populated
// once at process start and read-only afterwards, so lookups need no
// locking on the query path.
type Registry struct {
	caps  map[string]*Capability
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]*Capability)}
}

// Register adds a capability. Registration order is preserved so the
// planner prompt is reproducible across runs.
func (r *Registry) Register(c *Capability) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("capability must have a name")
	}
	if c.Invoke == nil {
		return fmt.Errorf("capability %s has no invoke binding", c.Name)
	}
	if _, exists := r.caps[c.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCapability, c.Name)
	}
	r.caps[c.Name] = c
	r.order = append(r.order, c.Name)
	return nil
}

// Resolve returns the capability registered under name.
func (r *Registry) Resolve(name string) (*Capability, error) {
	c, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	return c, nil
}

// List returns all capabilities in registration order.
func (r *Registry) List() []*Capability {
	out := make([]*Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.order)
}
