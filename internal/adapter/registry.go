// internal/adapter/registry.go

package adapter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quotescope/quotescope/internal/blocker"
	"github.com/quotescope/quotescope/internal/bus"
)

// Deps is everything a factory needs to assemble an adapter for one session.
type Deps struct {
	Logger      *zap.Logger
	Events      *bus.Bus
	Blocker     *blocker.Policy
	GraceWindow time.Duration
}

// Factory builds a fresh adapter instance. One instance per plugin name per
// session; factories must not share mutable state between calls.
type Factory func(deps Deps) Adapter

// Registry maps plugin names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a plugin name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names lists the registered plugin names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build instantiates one adapter per name, preserving the requested order
// (the order matters: it is the ShallBlock tie-break order).
func (r *Registry) Build(names []string, deps Deps) ([]Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registered := make([]string, 0, len(r.factories))
	for n := range r.factories {
		registered = append(registered, n)
	}
	sort.Strings(registered)

	adapters := make([]Adapter, 0, len(names))
	for _, n := range names {
		f, ok := r.factories[n]
		if !ok {
			return nil, fmt.Errorf("unknown adapter %q (registered: %v)", n, registered)
		}
		adapters = append(adapters, f(deps))
	}
	return adapters, nil
}
