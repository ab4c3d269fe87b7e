package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hifzlab/tasmee/pkg/provider/semantic"
)

// ErrProviderNotRegistered is returned by [Registry.CreateAnalyzer] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps analyzer backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]func(ProviderEntry) (semantic.Analyzer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		analyzers: make(map[string]func(ProviderEntry) (semantic.Analyzer, error)),
	}
}

// RegisterAnalyzer registers an analyzer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterAnalyzer(name string, factory func(ProviderEntry) (semantic.Analyzer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzers[name] = factory
}

// CreateAnalyzer instantiates an analyzer using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateAnalyzer(entry ProviderEntry) (semantic.Analyzer, error) {
	r.mu.RLock()
	factory, ok := r.analyzers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered analyzer names, for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	return names
}
