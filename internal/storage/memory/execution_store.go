// Package memory provides in-memory store implementations used by the
// one-shot launcher and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data []*domain.PipelineExecution // newest first
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{}
}

// AppendTrimmed adds a terminal execution and trims the log to keep entries.
func (s *ExecutionStore) AppendTrimmed(_ context.Context, e *domain.PipelineExecution, keep int) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.data {
		if existing.ID == e.ID {
			return storage.ErrDuplicateKey
		}
	}

	cp := copyExecution(e)
	s.data = append([]*domain.PipelineExecution{cp}, s.data...)

	sort.SliceStable(s.data, func(i, j int) bool {
		return s.data[i].StartedAt > s.data[j].StartedAt
	})

	if keep > 0 && len(s.data) > keep {
		s.data = s.data[:keep]
	}
	return nil
}

// GetByID retrieves an execution. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(_ context.Context, executionID string) (*domain.PipelineExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.data {
		if e.ID == executionID {
			return copyExecution(e), nil
		}
	}
	return nil, storage.ErrNotFound
}

// List retrieves up to limit executions, newest first.
func (s *ExecutionStore) List(_ context.Context, limit int) ([]*domain.PipelineExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.data)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]*domain.PipelineExecution, 0, n)
	for _, e := range s.data[:n] {
		result = append(result, copyExecution(e))
	}
	return result, nil
}

// copyExecution deep-copies an execution to prevent external mutation.
func copyExecution(e *domain.PipelineExecution) *domain.PipelineExecution {
	cp := *e
	cp.Errors = append([]string(nil), e.Errors...)
	cp.Config.Keywords = append([]string(nil), e.Config.Keywords...)
	cp.PartialResults.CreativeURLs = append([]string(nil), e.PartialResults.CreativeURLs...)
	if len(e.PartialResults.ScrapedOffers) > 0 {
		offers := make([]*domain.CandidateOffer, len(e.PartialResults.ScrapedOffers))
		for i, o := range e.PartialResults.ScrapedOffers {
			offer := *o
			offers[i] = &offer
		}
		cp.PartialResults.ScrapedOffers = offers
	}
	if e.PartialResults.SelectedOffer != nil {
		offer := *e.PartialResults.SelectedOffer
		cp.PartialResults.SelectedOffer = &offer
	}
	if e.PartialResults.Product != nil {
		product := *e.PartialResults.Product
		cp.PartialResults.Product = &product
	}
	if e.PartialResults.Funnel != nil {
		funnel := *e.PartialResults.Funnel
		cp.PartialResults.Funnel = &funnel
	}
	return &cp
}

// Verify interface compliance at compile time.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)
