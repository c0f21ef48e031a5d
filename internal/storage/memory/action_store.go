package memory

import (
	"context"
	"sync"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// ActionStore is an in-memory implementation of storage.ActionStore.
type ActionStore struct {
	mu   sync.RWMutex
	data []*domain.Action // newest first
}

// NewActionStore creates a new in-memory action store.
func NewActionStore() *ActionStore {
	return &ActionStore{}
}

// InsertTrimmed adds an action and trims the log to keep entries.
func (s *ActionStore) InsertTrimmed(_ context.Context, a *domain.Action, keep int) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.ID == a.ID {
			return storage.ErrDuplicateKey
		}
	}

	cp := *a
	s.data = append([]*domain.Action{&cp}, s.data...)

	if keep > 0 && len(s.data) > keep {
		s.data = s.data[:keep]
	}
	return nil
}

// OpenByCampaignKind retrieves the open action for the pair.
func (s *ActionStore) OpenByCampaignKind(_ context.Context, campaignID string, kind domain.ActionKind) (*domain.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.data {
		if a.CampaignID == campaignID && a.Kind == kind && !a.Resolved {
			cp := *a
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// ResolveOpen marks any open action for the pair as resolved.
func (s *ActionStore) ResolveOpen(_ context.Context, campaignID string, kind domain.ActionKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.data {
		if a.CampaignID == campaignID && a.Kind == kind && !a.Resolved {
			a.Resolved = true
		}
	}
	return nil
}

// List retrieves up to limit actions, newest first.
func (s *ActionStore) List(_ context.Context, limit int) ([]*domain.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.data)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]*domain.Action, 0, n)
	for _, a := range s.data[:n] {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.ActionStore = (*ActionStore)(nil)
