package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

func insertRun(t *testing.T, ctx context.Context, pool *Pool, runID string, startedAt int64) {
	t.Helper()
	err := NewRunStore(pool).Insert(ctx, &domain.Run{
		RunID:          runID,
		ChainID:        31337,
		Account:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Status:         domain.RunStatusRunning,
		SwapsRequested: 10,
		StartedAt:      startedAt,
	})
	require.NoError(t, err)
}

func TestRunStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	var ops []string
	pool.SetQueryObserver(func(op string, _ time.Duration, _ error) { ops = append(ops, op) })

	store := NewRunStore(pool)
	ctx := context.Background()

	insertRun(t, ctx, pool, "run-1", 1704067200000)

	err := store.Finish(ctx, &domain.Run{
		RunID:          "run-1",
		Status:         domain.RunStatusPartial,
		FailedStep:     "swap #4",
		Error:          "transaction reverted: InsufficientLiquidity",
		SwapsSucceeded: 3,
		FinishedAt:     1704067260000,
	})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPartial, got.Status)
	assert.Equal(t, "swap #4", got.FailedStep)
	assert.Equal(t, 3, got.SwapsSucceeded)
	assert.Equal(t, 10, got.SwapsRequested)
	assert.Equal(t, int64(31337), got.ChainID)

	assert.Contains(t, ops, "insert_run")
	assert.Contains(t, ops, "finish_run")
}

func TestRunStore_Errors(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	insertRun(t, ctx, pool, "run-dup", 1)

	err := store.Insert(ctx, &domain.Run{RunID: "run-dup", Status: domain.RunStatusRunning})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.Finish(ctx, &domain.Run{RunID: "missing", Status: domain.RunStatusFailed})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	insertRun(t, ctx, pool, "old", 1000)
	insertRun(t, ctx, pool, "new", 3000)
	insertRun(t, ctx, pool, "mid", 2000)

	runs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].RunID)
	assert.Equal(t, "mid", runs[1].RunID)
}
