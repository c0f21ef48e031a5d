package storage

import (
	"context"

	"adpilot/internal/domain"
)

// ExecutionStore is the bounded append log for terminal pipeline executions.
type ExecutionStore interface {
	// AppendTrimmed adds a terminal execution and trims the log to keep at
	// most keep entries, newest first. Returns ErrDuplicateKey if the
	// execution id already exists.
	AppendTrimmed(ctx context.Context, e *domain.PipelineExecution, keep int) error

	// GetByID retrieves an execution. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, executionID string) (*domain.PipelineExecution, error)

	// List retrieves up to limit executions, newest first.
	List(ctx context.Context, limit int) ([]*domain.PipelineExecution, error)
}

// ActionStore records applied actions and tracks which are still open for
// the per (campaign, kind) dedup invariant.
type ActionStore interface {
	// InsertTrimmed adds an action and trims the log to keep entries,
	// newest first. Returns ErrDuplicateKey if the action id exists.
	InsertTrimmed(ctx context.Context, a *domain.Action, keep int) error

	// OpenByCampaignKind retrieves the open action for the pair, or
	// ErrNotFound when the dedup slot is free.
	OpenByCampaignKind(ctx context.Context, campaignID string, kind domain.ActionKind) (*domain.Action, error)

	// ResolveOpen marks any open action for the pair as resolved.
	ResolveOpen(ctx context.Context, campaignID string, kind domain.ActionKind) error

	// List retrieves up to limit actions, newest first.
	List(ctx context.Context, limit int) ([]*domain.Action, error)
}

// SuggestionStore holds optimization suggestions queued for approval.
type SuggestionStore interface {
	// InsertTrimmed adds a suggestion and trims the log to keep entries,
	// newest first. Returns ErrDuplicateKey if the suggestion id exists.
	InsertTrimmed(ctx context.Context, s *domain.Suggestion, keep int) error

	// GetByID retrieves a suggestion. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, suggestionID string) (*domain.Suggestion, error)

	// OpenByCampaignKind retrieves the open (unapplied) suggestion for the
	// pair, or ErrNotFound when none exists.
	OpenByCampaignKind(ctx context.Context, campaignID string, kind domain.ActionKind) (*domain.Suggestion, error)

	// MarkApplied flips Applied to true. Returns ErrNotFound if the
	// suggestion does not exist.
	MarkApplied(ctx context.Context, suggestionID string) error

	// Delete removes a suggestion (human rejection).
	Delete(ctx context.Context, suggestionID string) error

	// ListOpen retrieves all unapplied suggestions, newest first.
	ListOpen(ctx context.Context) ([]*domain.Suggestion, error)
}

// SnapshotStore is the append-only warehouse of normalized campaign records,
// one row per campaign per evaluation cycle.
type SnapshotStore interface {
	// InsertBulk appends one cycle's worth of campaign records.
	InsertBulk(ctx context.Context, cycleAt int64, records []*domain.CampaignRecord) error

	// GetByCampaignID retrieves snapshots for a campaign, oldest first.
	GetByCampaignID(ctx context.Context, campaignID string) ([]*domain.CampaignRecord, error)
}

// PolicyStore holds the single active threshold policy.
type PolicyStore interface {
	// Get retrieves the active policy. Returns ErrNotFound before any Put.
	Get(ctx context.Context) (*domain.ThresholdPolicy, error)

	// Put replaces the active policy.
	Put(ctx context.Context, p *domain.ThresholdPolicy) error
}
