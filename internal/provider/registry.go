package provider

import (
	"sort"
	"sync"
)

// domainProviders maps an investigation domain to the providers its
// specialist may use.
var domainProviders = map[string][]string{
	"compute": {"kubernetes", "grafana"},
	"storage": {"ceph", "kubernetes", "grafana"},
	"network": {"kubernetes", "grafana"},
}

// Registry holds the configured provider clients and resolves which of
// them serve each investigation domain.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: map[string]*Client{}}
}

// Register adds or replaces a provider client.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
}

// Get returns the named provider, or nil when not configured.
func (r *Registry) Get(name string) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[name]
}

// Names returns the configured provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForDomain returns the configured providers serving an investigation
// domain, in the domain's preference order. Unknown domains get every
// configured provider.
func (r *Registry) ForDomain(domain string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wanted, ok := domainProviders[domain]
	if !ok {
		wanted = r.namesLocked()
	}
	var out []*Client
	for _, name := range wanted {
		if c, exists := r.clients[name]; exists {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
