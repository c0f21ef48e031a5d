package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// PolicyStore implements storage.PolicyStore using PostgreSQL. One row holds
// the single active policy as a JSONB blob.
type PolicyStore struct {
	pool *Pool
}

// NewPolicyStore creates a new PolicyStore.
func NewPolicyStore(pool *Pool) *PolicyStore {
	return &PolicyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PolicyStore = (*PolicyStore)(nil)

// Get retrieves the active policy. Returns ErrNotFound before any Put.
func (s *PolicyStore) Get(ctx context.Context) (*domain.ThresholdPolicy, error) {
	var policyJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT policy FROM threshold_policy WHERE id = 1`).Scan(&policyJSON)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}

	var p domain.ThresholdPolicy
	if err := json.Unmarshal(policyJSON, &p); err != nil {
		return nil, fmt.Errorf("unmarshal policy: %w", err)
	}
	return &p, nil
}

// Put replaces the active policy.
func (s *PolicyStore) Put(ctx context.Context, p *domain.ThresholdPolicy) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	policyJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	query := `
		INSERT INTO threshold_policy (id, policy, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET policy = EXCLUDED.policy, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, policyJSON); err != nil {
		return fmt.Errorf("put policy: %w", err)
	}
	return nil
}
