package clickhouse

import (
	"context"
	"fmt"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse. One row
// per campaign per evaluation cycle, append-only.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk appends one cycle's worth of campaign records.
func (s *SnapshotStore) InsertBulk(ctx context.Context, cycleAt int64, records []*domain.CampaignRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO campaign_snapshots (
			cycle_at, campaign_id, name, budget, spend, clicks, impressions,
			conversions, revenue, roas, ctr, active
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		active := uint8(0)
		if r.Active {
			active = 1
		}
		err = batch.Append(
			uint64(cycleAt), r.ID, r.Name, r.Budget, r.Spend,
			uint64(r.Clicks), uint64(r.Impressions), uint64(r.Conversions),
			r.Revenue, r.ROAS, r.CTR, active,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByCampaignID retrieves snapshots for a campaign, oldest first.
func (s *SnapshotStore) GetByCampaignID(ctx context.Context, campaignID string) ([]*domain.CampaignRecord, error) {
	query := `
		SELECT campaign_id, name, budget, spend, clicks, impressions,
		       conversions, revenue, roas, ctr, active
		FROM campaign_snapshots
		WHERE campaign_id = ?
		ORDER BY cycle_at ASC
	`

	rows, err := s.conn.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by campaign id: %w", err)
	}
	defer rows.Close()

	var records []*domain.CampaignRecord
	for rows.Next() {
		var (
			r                               domain.CampaignRecord
			clicks, impressions, conversion uint64
			active                          uint8
		)

		err := rows.Scan(
			&r.ID, &r.Name, &r.Budget, &r.Spend, &clicks, &impressions,
			&conversion, &r.Revenue, &r.ROAS, &r.CTR, &active,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}

		r.Clicks = int64(clicks)
		r.Impressions = int64(impressions)
		r.Conversions = int64(conversion)
		r.Active = active == 1
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return records, nil
}
