package strategy

import (
	"fmt"
	"sort"
)

// Factory builds a fresh, uninitialized strategy instance. Each run gets its
// own instance so state never leaks between runs.
type Factory func() Strategy

// Registry holds a named collection of strategy factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Create builds a new instance of the named strategy.
func (r *Registry) Create(name string) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (registered: %v)", name, r.List())
	}
	return f(), nil
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry preloaded with the strategies this module
// ships.
func Default() *Registry {
	r := NewRegistry()
	r.Register("sma_cross", func() Strategy { return &SMACross{} })
	return r
}
