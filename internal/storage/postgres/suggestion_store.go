package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// SuggestionStore implements storage.SuggestionStore using PostgreSQL.
type SuggestionStore struct {
	pool *Pool
}

// NewSuggestionStore creates a new SuggestionStore.
func NewSuggestionStore(pool *Pool) *SuggestionStore {
	return &SuggestionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SuggestionStore = (*SuggestionStore)(nil)

// InsertTrimmed adds a suggestion and trims the log to keep entries.
func (s *SuggestionStore) InsertTrimmed(ctx context.Context, sg *domain.Suggestion, keep int) error {
	if sg == nil || sg.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO suggestions (
			suggestion_id, kind, priority, campaign_id, rationale,
			estimated_impact, created_at_ms, applied
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		sg.ID,
		string(sg.Kind),
		string(sg.Priority),
		sg.CampaignID,
		sg.Rationale,
		sg.EstimatedImpact,
		sg.CreatedAt,
		sg.Applied,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert suggestion: %w", err)
	}

	if keep > 0 {
		trim := `
			DELETE FROM suggestions
			WHERE suggestion_id NOT IN (
				SELECT suggestion_id FROM suggestions
				ORDER BY created_at_ms DESC, suggestion_id DESC
				LIMIT $1
			)
		`
		if _, err := s.pool.Exec(ctx, trim, keep); err != nil {
			return fmt.Errorf("trim suggestions: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a suggestion. Returns ErrNotFound if not exists.
func (s *SuggestionStore) GetByID(ctx context.Context, suggestionID string) (*domain.Suggestion, error) {
	query := `
		SELECT suggestion_id, kind, priority, campaign_id, rationale,
		       estimated_impact, created_at_ms, applied
		FROM suggestions
		WHERE suggestion_id = $1
	`

	row := s.pool.QueryRow(ctx, query, suggestionID)
	sg, err := scanSuggestion(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get suggestion by id: %w", err)
	}
	return sg, nil
}

// OpenByCampaignKind retrieves the open suggestion for the pair.
func (s *SuggestionStore) OpenByCampaignKind(ctx context.Context, campaignID string, kind domain.ActionKind) (*domain.Suggestion, error) {
	query := `
		SELECT suggestion_id, kind, priority, campaign_id, rationale,
		       estimated_impact, created_at_ms, applied
		FROM suggestions
		WHERE campaign_id = $1 AND kind = $2 AND NOT applied
		ORDER BY created_at_ms DESC, suggestion_id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, campaignID, string(kind))
	sg, err := scanSuggestion(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get open suggestion: %w", err)
	}
	return sg, nil
}

// MarkApplied flips Applied to true.
func (s *SuggestionStore) MarkApplied(ctx context.Context, suggestionID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE suggestions SET applied = TRUE WHERE suggestion_id = $1`, suggestionID)
	if err != nil {
		return fmt.Errorf("mark suggestion applied: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a suggestion.
func (s *SuggestionStore) Delete(ctx context.Context, suggestionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM suggestions WHERE suggestion_id = $1`, suggestionID)
	if err != nil {
		return fmt.Errorf("delete suggestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListOpen retrieves all unapplied suggestions, newest first.
func (s *SuggestionStore) ListOpen(ctx context.Context) ([]*domain.Suggestion, error) {
	query := `
		SELECT suggestion_id, kind, priority, campaign_id, rationale,
		       estimated_impact, created_at_ms, applied
		FROM suggestions
		WHERE NOT applied
		ORDER BY created_at_ms DESC, suggestion_id DESC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list open suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*domain.Suggestion
	for rows.Next() {
		sg, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion row: %w", err)
		}
		suggestions = append(suggestions, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestion rows: %w", err)
	}
	return suggestions, nil
}

// scanSuggestion scans a single row into a Suggestion.
func scanSuggestion(row pgx.Row) (*domain.Suggestion, error) {
	var sg domain.Suggestion
	var kind, priority string

	err := row.Scan(
		&sg.ID,
		&kind,
		&priority,
		&sg.CampaignID,
		&sg.Rationale,
		&sg.EstimatedImpact,
		&sg.CreatedAt,
		&sg.Applied,
	)
	if err != nil {
		return nil, err
	}

	sg.Kind = domain.ActionKind(kind)
	sg.Priority = domain.Priority(priority)
	return &sg, nil
}
