package memory

import (
	"context"
	"sync"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// PolicyStore is an in-memory implementation of storage.PolicyStore.
type PolicyStore struct {
	mu     sync.RWMutex
	policy *domain.ThresholdPolicy
}

// NewPolicyStore creates a new in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{}
}

// Get retrieves the active policy. Returns ErrNotFound before any Put.
func (s *PolicyStore) Get(_ context.Context) (*domain.ThresholdPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.policy == nil {
		return nil, storage.ErrNotFound
	}
	cp := *s.policy
	return &cp, nil
}

// Put replaces the active policy.
func (s *PolicyStore) Put(_ context.Context, p *domain.ThresholdPolicy) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.policy = &cp
	return nil
}

// Verify interface compliance at compile time.
var _ storage.PolicyStore = (*PolicyStore)(nil)
