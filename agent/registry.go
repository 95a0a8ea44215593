package agent

import "sync"

// Registry holds the ordered set of available agents. It is safe for
// concurrent use; Replace swaps the whole set atomically.
type Registry struct {
	mu     sync.RWMutex
	agents []Descriptor
}

// NewRegistry creates a registry holding agents in the given order.
func NewRegistry(agents ...Descriptor) *Registry {
	r := &Registry{}
	r.Replace(agents)
	return r
}

// Replace swaps the registered agents for agents.
func (r *Registry) Replace(agents []Descriptor) {
	cp := make([]Descriptor, len(agents))
	copy(cp, agents)

	r.mu.Lock()
	r.agents = cp
	r.mu.Unlock()
}

// ListAll returns every agent in registry order.
func (r *Registry) ListAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.agents))
	copy(out, r.agents)
	return out
}

// ByName returns the first agent called name.
func (r *Registry) ByName(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.Name == name {
			return a, true
		}
	}
	return Descriptor{}, false
}

// ByCapability returns the agents declaring capability, in registry order.
func (r *Registry) ByCapability(capability string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for _, a := range r.agents {
		if a.HasCapability(capability) {
			out = append(out, a)
		}
	}
	return out
}

// RequireAny returns ErrNoAgents when the registry is empty.
func (r *Registry) RequireAny() error {
	if r.Len() == 0 {
		return ErrNoAgents
	}
	return nil
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Infos returns the public metadata of every agent.
func (r *Registry) Infos() []Info {
	agents := r.ListAll()
	out := make([]Info, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Info())
	}
	return out
}
