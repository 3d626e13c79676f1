package tool

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hupe1980/agentgraph/core"
)

// ErrDuplicateTool is returned when two tools share a name within one registry.
var ErrDuplicateTool = errors.New("duplicate tool")

// Registry is a name keyed, ordered collection of tools. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates a registry from tools. Duplicate names are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema),
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds t to the registry.
func (r *Registry) Register(t Tool) error {
	name := t.Descriptor().Name
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get resolves a tool by name. Unknown names yield an error wrapping core.ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotFound, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotFound, name)
	}
	return t, nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []Tool {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Descriptors returns the tool descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	tools := r.Tools()
	out := make([]Descriptor, len(tools))
	for i, t := range tools {
		out[i] = t.Descriptor()
	}
	return out
}

// Merge returns a new registry holding the tools of r followed by other.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	return NewRegistry(append(r.Tools(), other.Tools()...)...)
}

// Subset returns a new registry limited to names, in the given order.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	tools := make([]Tool, 0, len(names))
	for _, n := range names {
		t, err := r.Get(n)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}
	return NewRegistry(tools...)
}

// Validate checks args against the schema of the named tool. Compiled
// schemas are cached per tool name.
func (r *Registry) Validate(name string, args json.RawMessage) error {
	t, err := r.Get(name)
	if err != nil {
		return &ToolError{Tool: name, Message: err.Error(), Code: CodeNotFound, Err: err}
	}

	schema, err := r.compiled(name, t.Descriptor())
	if err != nil {
		return &ToolError{Tool: name, Message: fmt.Sprintf("invalid schema: %v", err), Code: CodeValidation, Err: err}
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var payload any
	if err := json.Unmarshal(args, &payload); err != nil {
		return &ToolError{Tool: name, Message: fmt.Sprintf("failed to unmarshal args: %v", err), Code: CodeValidation, Err: err}
	}

	if err := schema.Validate(payload); err != nil {
		return &ToolError{
			Tool:    name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
			Err:     err,
		}
	}
	return nil
}

func (r *Registry) compiled(name string, d Descriptor) (*jsonschema.Schema, error) {
	r.mu.RLock()
	s, ok := r.schemas[name]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}

	// Round trip through JSON so the compiler only sees decoded JSON values.
	raw, err := json.Marshal(d.Schema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	s, err = c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	r.mu.Lock()
	r.schemas[name] = s
	r.mu.Unlock()
	return s, nil
}
