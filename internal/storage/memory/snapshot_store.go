package memory

import (
	"context"
	"sync"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// snapshotRow pairs a record with the cycle it was captured in.
type snapshotRow struct {
	cycleAt int64
	record  domain.CampaignRecord
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data []snapshotRow // insertion order == cycle order
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// InsertBulk appends one cycle's worth of campaign records.
func (s *SnapshotStore) InsertBulk(_ context.Context, cycleAt int64, records []*domain.CampaignRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r == nil || r.ID == "" {
			return storage.ErrInvalidInput
		}
		s.data = append(s.data, snapshotRow{cycleAt: cycleAt, record: *r})
	}
	return nil
}

// GetByCampaignID retrieves snapshots for a campaign, oldest first.
func (s *SnapshotStore) GetByCampaignID(_ context.Context, campaignID string) ([]*domain.CampaignRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CampaignRecord
	for _, row := range s.data {
		if row.record.ID == campaignID {
			cp := row.record
			result = append(result, &cp)
		}
	}
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)
