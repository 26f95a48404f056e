package revocation

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRegistry favors clarity over performance; production deployments
// use the Redis or Postgres registries.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]Entry // keyed by exact public-key PEM
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{entries: make(map[string]Entry)}
}

func (r *InMemoryRegistry) Append(_ context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// First revocation wins; a duplicate append must not rewrite the
	// original reason or timestamp.
	if _, ok := r.entries[entry.PublicKeyPEM]; ok {
		return nil
	}
	r.entries[entry.PublicKeyPEM] = entry
	return nil
}

func (r *InMemoryRegistry) Contains(_ context.Context, publicKeyPEM string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[publicKeyPEM]
	return ok, nil
}

func (r *InMemoryRegistry) Find(_ context.Context, publicKeyPEM string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[publicKeyPEM]; ok {
		return &e, nil
	}
	return nil, nil
}

func (r *InMemoryRegistry) List(_ context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevokedAt.After(out[j].RevokedAt) })
	return out, nil
}
