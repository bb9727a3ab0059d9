package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `run_id, chain_id, account, status, failed_step, error,
	swaps_requested, swaps_succeeded, started_at, finished_at`

// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.Run) (err error) {
	defer func(start time.Time) { s.pool.track("insert_run", start, err) }(time.Now())

	query := `INSERT INTO runs (` + runColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(ctx, query,
		r.RunID,
		r.ChainID,
		r.Account,
		string(r.Status),
		r.FailedStep,
		r.Error,
		r.SwapsRequested,
		r.SwapsSucceeded,
		r.StartedAt,
		r.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Finish records the terminal state of a run. Returns ErrNotFound if not exists.
func (s *RunStore) Finish(ctx context.Context, r *domain.Run) (err error) {
	defer func(start time.Time) { s.pool.track("finish_run", start, err) }(time.Now())

	query := `
		UPDATE runs
		SET status = $2, failed_step = $3, error = $4, swaps_succeeded = $5, finished_at = $6
		WHERE run_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		r.RunID,
		string(r.Status),
		r.FailedStep,
		r.Error,
		r.SwapsSucceeded,
		r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(ctx context.Context, runID string) (_ *domain.Run, err error) {
	defer func(start time.Time) { s.pool.track("get_run", start, err) }(time.Now())

	query := `SELECT ` + runColumns + ` FROM runs WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// List returns the most recent runs, newest first.
func (s *RunStore) List(ctx context.Context, limit int) (_ []*domain.Run, err error) {
	defer func(start time.Time) { s.pool.track("list_runs", start, err) }(time.Now())

	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id ASC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// scanRun scans a single row into a Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var r domain.Run
	var status string

	err := row.Scan(
		&r.RunID,
		&r.ChainID,
		&r.Account,
		&status,
		&r.FailedStep,
		&r.Error,
		&r.SwapsRequested,
		&r.SwapsSucceeded,
		&r.StartedAt,
		&r.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = domain.RunStatus(status)
	return &r, nil
}
