package memory

import (
	"context"
	"sync"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// SuggestionStore is an in-memory implementation of storage.SuggestionStore.
type SuggestionStore struct {
	mu   sync.RWMutex
	data []*domain.Suggestion // newest first
}

// NewSuggestionStore creates a new in-memory suggestion store.
func NewSuggestionStore() *SuggestionStore {
	return &SuggestionStore{}
}

// InsertTrimmed adds a suggestion and trims the log to keep entries.
func (s *SuggestionStore) InsertTrimmed(_ context.Context, sg *domain.Suggestion, keep int) error {
	if sg == nil || sg.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.ID == sg.ID {
			return storage.ErrDuplicateKey
		}
	}

	cp := *sg
	s.data = append([]*domain.Suggestion{&cp}, s.data...)

	if keep > 0 && len(s.data) > keep {
		s.data = s.data[:keep]
	}
	return nil
}

// GetByID retrieves a suggestion. Returns ErrNotFound if not exists.
func (s *SuggestionStore) GetByID(_ context.Context, suggestionID string) (*domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sg := range s.data {
		if sg.ID == suggestionID {
			cp := *sg
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// OpenByCampaignKind retrieves the open suggestion for the pair.
func (s *SuggestionStore) OpenByCampaignKind(_ context.Context, campaignID string, kind domain.ActionKind) (*domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sg := range s.data {
		if sg.CampaignID == campaignID && sg.Kind == kind && !sg.Applied {
			cp := *sg
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// MarkApplied flips Applied to true.
func (s *SuggestionStore) MarkApplied(_ context.Context, suggestionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sg := range s.data {
		if sg.ID == suggestionID {
			sg.Applied = true
			return nil
		}
	}
	return storage.ErrNotFound
}

// Delete removes a suggestion.
func (s *SuggestionStore) Delete(_ context.Context, suggestionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sg := range s.data {
		if sg.ID == suggestionID {
			s.data = append(s.data[:i], s.data[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

// ListOpen retrieves all unapplied suggestions, newest first.
func (s *SuggestionStore) ListOpen(_ context.Context) ([]*domain.Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Suggestion
	for _, sg := range s.data {
		if !sg.Applied {
			cp := *sg
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SuggestionStore = (*SuggestionStore)(nil)
