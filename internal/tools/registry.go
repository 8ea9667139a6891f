// Package tools implements the tool registry: named, JSON-Schema
// validated capabilities a task's steps invoke, plus the built-in
// filesystem and shell tools. MCP-sourced tools register into the same
// registry under the "mcp/<server>/<tool>" namespace (internal/mcp).
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Context carries the per-invocation state a handler needs: the
// workspace root its filesystem calls are confined to, and the
// task/step the call is running on behalf of (for logging and
// artifact placement).
type Context struct {
	context.Context
	WorkspaceRoot string
	TaskID        string
	StepID        string
}

// Handler executes a tool call and returns a JSON-serializable result.
type Handler func(ctx *Context, args map[string]any) (map[string]any, error)

// Spec describes one registered tool.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON-Schema, as a decoded document
	Risky       bool           // requires approval by default
	Handler     Handler

	compiled *jsonschema.Schema
}

// Registry is a one-shot, name-collision-checked set of tool specs.
// Safe for concurrent reads after registration completes; Register
// itself is also safe to call concurrently (e.g. while MCP servers are
// still starting up).
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*Spec
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

// Register adds a tool spec, compiling its JSON-Schema up front so
// malformed schemas fail fast at startup rather than on first call.
// Re-registering an existing name is an error.
func (r *Registry) Register(spec Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tools: already registered: %s", spec.Name)
	}
	if spec.InputSchema != nil {
		compiled, err := compileSchema(spec.Name, spec.InputSchema)
		if err != nil {
			return fmt.Errorf("tools: compile schema for %s: %w", spec.Name, err)
		}
		spec.compiled = compiled
	}
	s := spec
	r.specs[spec.Name] = &s
	return nil
}

// Get returns the spec for a tool name.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// List returns every registered spec, optionally filtered to an
// allowlist (nil or empty allowed means "all").
func (r *Registry) List(allowed []string) []*Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(allowed) == 0 {
		out := make([]*Spec, 0, len(r.specs))
		for _, s := range r.specs {
			out = append(out, s)
		}
		return out
	}
	out := make([]*Spec, 0, len(allowed))
	for _, name := range allowed {
		if s, ok := r.specs[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Run looks up name, lightly validates args against the tool's
// JSON-Schema (the handler still does its own semantic validation),
// and invokes the handler. A validation failure or unknown tool name
// is returned as an error without running the handler; a handler error
// is returned as-is — the caller (internal/orchestrator) is responsible
// for turning it into a failed step.
func (r *Registry) Run(ctx *Context, name string, args map[string]any) (map[string]any, error) {
	spec, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool: %s", name)
	}
	if spec.compiled != nil {
		if err := spec.compiled.Validate(toAny(args)); err != nil {
			return nil, fmt.Errorf("tools: invalid args for %s: %w", name, err)
		}
	}
	return spec.Handler(ctx, args)
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := "mem://tools/" + name
	if err := c.AddResource(url, schema); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// toAny normalizes a map[string]any for jsonschema's validator, which
// expects the same shape encoding/json would have produced.
func toAny(v map[string]any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}
