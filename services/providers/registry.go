package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrProviderNotFound          = errors.New("provider not found")
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry maps the provider names used by catalog variants to adapters.
// Adapters are registered once at startup and read on every dispatch.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Provider)}
}

// RegisterProvider adds p under p.Name()
func (r *Registry) RegisterProvider(p Provider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.adapters[name]; dup {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyRegistered, name)
	}
	r.adapters[name] = p
	return nil
}

// GetProvider resolves the adapter serving a variant's provider
func (r *Registry) GetProvider(name string) (Provider, error) {
	r.mu.RLock()
	p, ok := r.adapters[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// ListProviders returns the registered names in lexical order
func (r *Registry) ListProviders() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *Registry) GetProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
