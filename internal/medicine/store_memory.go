package medicine

import (
	"context"
	"sync"

	id "pharmatrust/pkg/domain"
	"pharmatrust/pkg/platform/sentinel"
)

// InMemoryStore keeps the catalog collaborator testable without a database.
type InMemoryStore struct {
	mu        sync.RWMutex
	medicines map[id.MedicineID]Medicine
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{medicines: make(map[id.MedicineID]Medicine)}
}

func (s *InMemoryStore) GetMedicine(_ context.Context, medicineID id.MedicineID) (*Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.medicines[medicineID]; ok {
		return &m, nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, m Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.medicines[m.ID] = m
	return nil
}

func (s *InMemoryStore) UpdateApprovalState(_ context.Context, medicineID id.MedicineID, state ApprovalState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.medicines[medicineID]
	if !ok {
		return sentinel.ErrNotFound
	}
	m.ApprovalState = state
	s.medicines[medicineID] = m
	return nil
}
