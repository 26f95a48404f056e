package identity

import (
	"context"
	"sync"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

// InMemoryStore keeps the lifecycle testable without a database. The mutex
// makes UpdateState an atomic compare-and-set.
type InMemoryStore struct {
	mu         sync.RWMutex
	identities map[id.IdentityID]Identity
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{identities: make(map[id.IdentityID]Identity)}
}

func (s *InMemoryStore) Save(_ context.Context, ident Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[ident.ID] = ident
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, identityID id.IdentityID) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ident, ok := s.identities[identityID]; ok {
		return &ident, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) UpdateState(_ context.Context, identityID id.IdentityID, from, to State, fields UpdateFields) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ident, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if ident.State != from {
		return nil, sentinel.ErrConflict
	}

	ident.State = to
	ident.UpdatedAt = fields.At
	if fields.Remarks != "" {
		ident.AdminRemarks = fields.Remarks
	}
	if to == StateRevoked {
		ident.Revocation = &RevocationRecord{
			Reason:    fields.Remarks,
			RevokedBy: fields.ActorID,
			RevokedAt: fields.At,
		}
	}
	s.identities[identityID] = ident
	return &ident, nil
}

func (s *InMemoryStore) SetPublicKey(_ context.Context, identityID id.IdentityID, publicKeyPEM string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ident, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ident.State != StateApproved {
		return sentinel.ErrConflict
	}
	ident.PublicKeyPEM = publicKeyPEM
	s.identities[identityID] = ident
	return nil
}
