package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// ActionStore implements storage.ActionStore using PostgreSQL.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ActionStore = (*ActionStore)(nil)

// InsertTrimmed adds an action and trims the log to keep entries.
func (s *ActionStore) InsertTrimmed(ctx context.Context, a *domain.Action, keep int) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO actions (
			action_id, kind, campaign_id, before_value, after_value,
			executed_at, success, reason, manual, resolved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		a.ID,
		string(a.Kind),
		a.CampaignID,
		a.Before,
		a.After,
		a.ExecutedAt,
		a.Success,
		a.Reason,
		a.Manual,
		a.Resolved,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert action: %w", err)
	}

	if keep > 0 {
		trim := `
			DELETE FROM actions
			WHERE action_id NOT IN (
				SELECT action_id FROM actions
				ORDER BY executed_at DESC, action_id DESC
				LIMIT $1
			)
		`
		if _, err := s.pool.Exec(ctx, trim, keep); err != nil {
			return fmt.Errorf("trim actions: %w", err)
		}
	}
	return nil
}

// OpenByCampaignKind retrieves the open action for the pair.
func (s *ActionStore) OpenByCampaignKind(ctx context.Context, campaignID string, kind domain.ActionKind) (*domain.Action, error) {
	query := `
		SELECT action_id, kind, campaign_id, before_value, after_value,
		       executed_at, success, reason, manual, resolved
		FROM actions
		WHERE campaign_id = $1 AND kind = $2 AND NOT resolved
		ORDER BY executed_at DESC, action_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, campaignID, string(kind))
	a, err := scanAction(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open action: %w", err)
	}
	return a, nil
}

// ResolveOpen marks any open action for the pair as resolved.
func (s *ActionStore) ResolveOpen(ctx context.Context, campaignID string, kind domain.ActionKind) error {
	query := `
		UPDATE actions SET resolved = TRUE
		WHERE campaign_id = $1 AND kind = $2 AND NOT resolved
	`

	if _, err := s.pool.Exec(ctx, query, campaignID, string(kind)); err != nil {
		return fmt.Errorf("resolve open action: %w", err)
	}
	return nil
}

// List retrieves up to limit actions, newest first.
func (s *ActionStore) List(ctx context.Context, limit int) ([]*domain.Action, error) {
	query := `
		SELECT action_id, kind, campaign_id, before_value, after_value,
		       executed_at, success, reason, manual, resolved
		FROM actions
		ORDER BY executed_at DESC, action_id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []*domain.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return actions, nil
}

// scanAction scans a single row into an Action.
func scanAction(row pgx.Row) (*domain.Action, error) {
	var a domain.Action
	var kind string

	err := row.Scan(
		&a.ID,
		&kind,
		&a.CampaignID,
		&a.Before,
		&a.After,
		&a.ExecutedAt,
		&a.Success,
		&a.Reason,
		&a.Manual,
		&a.Resolved,
	)
	if err != nil {
		return nil, err
	}

	a.Kind = domain.ActionKind(kind)
	return &a, nil
}
