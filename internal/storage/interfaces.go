package storage

import (
	"context"

	"amm-lab/internal/domain"
)

// RunStore provides access to runs storage.
type RunStore interface {
	// Insert adds a new run. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.Run) error

	// Finish records the terminal state of a running run.
	// Returns ErrNotFound if the run does not exist.
	Finish(ctx context.Context, r *domain.Run) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.Run, error)

	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]*domain.Run, error)
}

// DeploymentStore provides access to deployed_contracts storage.
type DeploymentStore interface {
	// Insert adds a deployed contract. Returns ErrDuplicateKey if (run_id, step) exists.
	Insert(ctx context.Context, d *domain.DeployedContract) error

	// GetByRunID retrieves all contracts of a run, in deployment order.
	GetByRunID(ctx context.Context, runID string) ([]*domain.DeployedContract, error)
}

// SwapRecordStore provides access to swap_records storage.
type SwapRecordStore interface {
	// Insert adds a swap record. Returns ErrDuplicateKey if record_id exists.
	Insert(ctx context.Context, r *domain.SwapRecord) error

	// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, records []*domain.SwapRecord) error

	// GetByRunID retrieves all records of a run, ordered by index ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.SwapRecord, error)
}

// SwapSink receives swap records for analytics. Writes are append-only.
type SwapSink interface {
	InsertBulk(ctx context.Context, records []*domain.SwapRecord) error
}

// Stores groups the stores used by a run. Nil members are skipped.
type Stores struct {
	Runs        RunStore
	Deployments DeploymentStore
	Swaps       SwapRecordStore
	Analytics   SwapSink
}
