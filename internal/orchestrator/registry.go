package orchestrator

import (
	"errors"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/profile-enricher/internal/provider"
)

// Sentinel errors for administrative operations.
var (
	ErrProviderNotFound          = errors.New("provider not found")
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
	ErrNoApplicableProvider      = errors.New("no applicable provider")
)

// registry holds providers in registration order.
type registry struct {
	mu        sync.RWMutex
	providers map[string]provider.Provider
	order     []string
}

func newRegistry() *registry {
	return &registry{providers: make(map[string]provider.Provider)}
}

func (r *registry) add(p provider.Provider) error {
	if p == nil {
		return eris.New("orchestrator: nil provider")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, ok := r.providers[name]; ok {
		return eris.Wrapf(ErrProviderAlreadyRegistered, "orchestrator: register %q", name)
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

func (r *registry) remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return eris.Wrapf(ErrProviderNotFound, "orchestrator: unregister %q", name)
	}
	delete(r.providers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *registry) get(name string) (provider.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Wrapf(ErrProviderNotFound, "orchestrator: provider %q", name)
	}
	return p, nil
}

// list returns providers in registration order.
func (r *registry) list() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Provider, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.providers[n])
	}
	return out
}
