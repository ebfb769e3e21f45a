// Package tools provides the tool registry consumed by agent executors.
// A Registry is an explicit dependency: construct one, register tools,
// inject it. There is no package-level default.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Handler executes a tool invocation with already-validated parameters.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Validator checks call parameters before execution.
type Validator func(params map[string]any) ValidationResult

// ValidationResult reports parameter validation output.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Valid returns a passing validation result.
func Valid() ValidationResult { return ValidationResult{Valid: true} }

// Invalid returns a failing validation result with the given messages.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Descriptor describes a registered tool.
type Descriptor struct {
	Name        string
	Description string
	Category    string
	Validate    Validator // optional; nil means every call is valid
	Handler     Handler
}

// Registry stores tool descriptors keyed by name. Registration of an
// existing name overwrites the previous descriptor; listing by category
// preserves first-registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Descriptor
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Descriptor)}
}

// Register adds or replaces a tool descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; !exists {
		r.order = append(r.order, d.Name)
	}
	r.tools[d.Name] = d
}

// Get returns the descriptor for name.
func (r *Registry) Get(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// All returns every registered descriptor in registration order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// ByCategory returns descriptors in the given category, registration order.
func (r *Registry) ByCategory(category string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, name := range r.order {
		if d := r.tools[name]; d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Validate checks params against the named tool's validator. An unknown
// tool is reported as invalid; a tool without a validator accepts any
// parameters.
func (r *Registry) Validate(name string, params map[string]any) ValidationResult {
	d, ok := r.Get(name)
	if !ok {
		return Invalid(fmt.Sprintf("tool not found: %s", name))
	}
	if d.Validate == nil {
		return Valid()
	}
	return d.Validate(params)
}

// Describe renders a "name: description" line per tool, used to build
// planning prompts.
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, d := range r.All() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
	}
	return b.String()
}
