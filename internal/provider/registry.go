package provider

import (
	"sync"

	"go.uber.org/zap"
)

// Registry holds the adapters that could actually be constructed. A provider
// appears in Available only when its credentials were present at startup.
type Registry struct {
	mu         sync.RWMutex
	adapters   map[ID]Adapter
	defaultID  ID
	configured []ID // construction order, used for deterministic listing
}

// NewRegistry creates an empty registry with the configured default identity.
// The default may turn out to be unavailable; callers must treat that case
// as "no default" and fall back.
func NewRegistry(defaultID ID) *Registry {
	return &Registry{
		adapters:  make(map[ID]Adapter),
		defaultID: defaultID,
	}
}

// Register adds a constructed adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.Name()]; !exists {
		r.configured = append(r.configured, a.Name())
	}
	r.adapters[a.Name()] = a
}

// Available lists providers whose adapters exist, in registration order.
func (r *Registry) Available() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ID, 0, len(r.configured))
	for _, id := range r.configured {
		if _, ok := r.adapters[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Default returns the configured default identity and whether it is
// available.
func (r *Registry) Default() (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.adapters[r.defaultID]
	return r.defaultID, ok
}

// Get returns the adapter for identity. ErrUnknownProvider for identities
// the system has never heard of, ErrProviderUnavailable for known ones with
// no constructed adapter.
func (r *Registry) Get(id ID) (Adapter, error) {
	if _, err := ParseID(string(id)); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, ErrProviderUnavailable
	}
	return a, nil
}

// Build constructs every provider the config knows about and registers the
// ones whose credentials are present. Constructors are tried in a fixed
// order so Available stays deterministic.
func Build(reg *Registry, constructors map[ID]func() (Adapter, error)) {
	for _, id := range All() {
		ctor, ok := constructors[id]
		if !ok {
			continue
		}
		a, err := ctor()
		if err != nil {
			zap.L().Info("provider not available",
				zap.String("provider", string(id)),
				zap.Error(err),
			)
			continue
		}
		reg.Register(a)
	}
}
