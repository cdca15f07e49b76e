package papersources

import (
	"slices"
	"sync"

	"github.com/helixir/snowball-review/internal/domain"
)

// Registry holds the configured providers in priority order. Providers are
// consulted in the order they were registered; re-registering a source type
// replaces the provider in place and keeps its position.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry pre-populated with providers, in order.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register appends a provider, or replaces the provider of the same source
// type. Nil providers are ignored.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.providers, func(existing Provider) bool {
		return existing.SourceType() == p.SourceType()
	})
	if idx >= 0 {
		r.providers[idx] = p
		return
	}
	r.providers = append(r.providers, p)
}

// Get returns the provider for a source type, or nil if none is registered.
func (r *Registry) Get(sourceType domain.SourceType) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.SourceType() == sourceType {
			return p
		}
	}
	return nil
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// All returns a snapshot of every registered provider in priority order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.providers)
}

// Enabled returns the enabled providers in priority order.
func (r *Registry) Enabled() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.IsEnabled() {
			out = append(out, p)
		}
	}
	return out
}

// GraphProviders returns the enabled providers that expose citation edges,
// in priority order.
func (r *Registry) GraphProviders() []GraphProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GraphProvider, 0, len(r.providers))
	for _, p := range r.providers {
		if gp, ok := p.(GraphProvider); ok && p.IsEnabled() {
			out = append(out, gp)
		}
	}
	return out
}

// Reorder moves the named source types to the front in the given order.
// Unknown types are ignored; unnamed providers keep their relative order.
func (r *Registry) Reorder(order []domain.SourceType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rank := func(p Provider) int {
		if i := slices.Index(order, p.SourceType()); i >= 0 {
			return i
		}
		return len(order)
	}
	slices.SortStableFunc(r.providers, func(a, b Provider) int {
		return rank(a) - rank(b)
	})
}
