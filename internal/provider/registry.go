package provider

import (
	"fmt"
	"sync"
)

// Registry holds the ordered provider set per logical data source
// ("bitcoin", "ethereum-price"). Registration order defines base priority
// for the selector. The registry is an explicit object constructed at
// startup and passed by reference; there is no package-level state.
type Registry struct {
	mutex   sync.RWMutex
	sources map[string][]*Provider
}

func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string][]*Provider),
	}
}

// Register validates and adds a provider to a source's ranked list.
// Priority is assigned from registration order. Duplicate names within one
// source are rejected.
func (r *Registry) Register(source string, p *Provider) error {
	if source == "" {
		return fmt.Errorf("register provider: source name is required")
	}
	if p == nil {
		return fmt.Errorf("register provider for %s: provider is nil", source)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("register provider %q for %s: %w", p.Name, source, err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, existing := range r.sources[source] {
		if existing.Name == p.Name {
			return fmt.Errorf("register provider %q for %s: already registered", p.Name, source)
		}
	}

	p.Priority = len(r.sources[source])
	r.sources[source] = append(r.sources[source], p)
	return nil
}

// Providers returns a copy of a source's provider list in registration
// order. Callers may reorder the copy freely.
func (r *Registry) Providers(source string) []*Provider {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return append([]*Provider(nil), r.sources[source]...)
}

// Lookup finds a provider by name within a source.
func (r *Registry) Lookup(source, name string) (*Provider, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, p := range r.sources[source] {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Sources lists every registered logical data source.
func (r *Registry) Sources() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}
