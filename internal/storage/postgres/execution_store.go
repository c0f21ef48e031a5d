package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"adpilot/internal/domain"
	"adpilot/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL. The
// config and partial results are stored as JSONB blobs; queries only ever
// need the id and ordering columns.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// AppendTrimmed adds a terminal execution and trims the log to keep entries.
func (s *ExecutionStore) AppendTrimmed(ctx context.Context, e *domain.PipelineExecution, keep int) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	configJSON, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	resultsJSON, err := json.Marshal(e.PartialResults)
	if err != nil {
		return fmt.Errorf("marshal partial results: %w", err)
	}
	errorsJSON, err := json.Marshal(e.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}

	query := `
		INSERT INTO pipeline_executions (
			execution_id, config, stage, progress_pct, status,
			partial_results, errors, started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		e.ID,
		configJSON,
		string(e.Stage),
		e.ProgressPct,
		string(e.Status),
		resultsJSON,
		errorsJSON,
		e.StartedAt,
		e.EndedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}

	if keep > 0 {
		trim := `
			DELETE FROM pipeline_executions
			WHERE execution_id NOT IN (
				SELECT execution_id FROM pipeline_executions
				ORDER BY started_at DESC, execution_id DESC
				LIMIT $1
			)
		`
		if _, err := s.pool.Exec(ctx, trim, keep); err != nil {
			return fmt.Errorf("trim executions: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an execution. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(ctx context.Context, executionID string) (*domain.PipelineExecution, error) {
	query := `
		SELECT execution_id, config, stage, progress_pct, status,
		       partial_results, errors, started_at, ended_at
		FROM pipeline_executions
		WHERE execution_id = $1
	`

	row := s.pool.QueryRow(ctx, query, executionID)
	e, err := scanExecution(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution by id: %w", err)
	}
	return e, nil
}

// List retrieves up to limit executions, newest first.
func (s *ExecutionStore) List(ctx context.Context, limit int) ([]*domain.PipelineExecution, error) {
	query := `
		SELECT execution_id, config, stage, progress_pct, status,
		       partial_results, errors, started_at, ended_at
		FROM pipeline_executions
		ORDER BY started_at DESC, execution_id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*domain.PipelineExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return executions, nil
}

// scanExecution scans a single row into a PipelineExecution.
func scanExecution(row pgx.Row) (*domain.PipelineExecution, error) {
	var (
		e           domain.PipelineExecution
		stage       string
		status      string
		configJSON  []byte
		resultsJSON []byte
		errorsJSON  []byte
	)

	err := row.Scan(
		&e.ID,
		&configJSON,
		&stage,
		&e.ProgressPct,
		&status,
		&resultsJSON,
		&errorsJSON,
		&e.StartedAt,
		&e.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &e.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := json.Unmarshal(resultsJSON, &e.PartialResults); err != nil {
		return nil, fmt.Errorf("unmarshal partial results: %w", err)
	}
	if err := json.Unmarshal(errorsJSON, &e.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}

	e.Stage = domain.Stage(stage)
	e.Status = domain.ExecutionStatus(status)
	return &e, nil
}
