package keystore

import (
	"context"
	"sync"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

// InMemoryStore keeps keys in process memory; for tests and development only.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[id.IdentityID]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{keys: make(map[id.IdentityID]string)}
}

func (s *InMemoryStore) Put(_ context.Context, identityID id.IdentityID, privateKeyPEM string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[identityID]; ok {
		return sentinel.ErrConflict
	}
	s.keys[identityID] = privateKeyPEM
	return nil
}

func (s *InMemoryStore) Replace(_ context.Context, identityID id.IdentityID, privateKeyPEM string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[identityID] = privateKeyPEM
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, identityID id.IdentityID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[identityID]; ok {
		return key, nil
	}
	return "", sentinel.ErrNotFound
}
