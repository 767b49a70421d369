// Package tools defines the named, callable functions that executors may be
// granted during a turn, and the registry that scopes tool selection.
package tools

import (
	"github.com/avetisov/parley/internal/executor"
)

// Registry holds the full set of tools known to the process. Built once at
// startup and read-only afterwards; safe for concurrent use.
type Registry struct {
	byName map[string]executor.Tool
	order  []string
}

// NewRegistry creates a registry with the given tools. Later registrations
// of the same name replace earlier ones.
func NewRegistry(ts ...executor.Tool) *Registry {
	r := &Registry{byName: make(map[string]executor.Tool)}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t executor.Tool) {
	if _, exists := r.byName[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.byName[t.Name] = t
}

// Lookup returns the named tool.
func (r *Registry) Lookup(name string) (executor.Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns every registered tool in registration order.
func (r *Registry) All() []executor.Tool {
	ts := make([]executor.Tool, 0, len(r.order))
	for _, name := range r.order {
		ts = append(ts, r.byName[name])
	}
	return ts
}

// Filter resolves a list of tool names to tools, preserving order and
// silently dropping names that are not registered. Duplicate names resolve
// to one entry each time they appear.
func (r *Registry) Filter(names []string) []executor.Tool {
	var ts []executor.Tool
	for _, name := range names {
		if t, ok := r.byName[name]; ok {
			ts = append(ts, t)
		}
	}
	return ts
}

// FilterNames returns the subset of names that are registered, preserving
// order. Unknown names are dropped without error.
func (r *Registry) FilterNames(names []string) []string {
	var out []string
	for _, name := range names {
		if _, ok := r.byName[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
