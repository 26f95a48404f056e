package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.CredentialID]Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.CredentialID]Record)}
}

func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, credentialID id.CredentialID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &rec, nil
}

func (s *InMemoryStore) FindBySignature(_ context.Context, signature string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.Signature == signature {
			return &rec, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Revoke(_ context.Context, credentialID id.CredentialID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true
	rec.RevokedReason = reason
	rec.RevokedAt = &at
	s.records[credentialID] = rec
	return nil
}

func (s *InMemoryStore) ListByIssuer(_ context.Context, issuerID id.IdentityID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.IssuerID == issuerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}
