package memory

import (
	"context"
	"errors"
	"testing"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

func TestRunStore_InsertFinishGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := &domain.Run{
		RunID:          "run-1",
		ChainID:        31337,
		Account:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Status:         domain.RunStatusRunning,
		SwapsRequested: 10,
		StartedAt:      1704067200000,
	}
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the caller's copy must not affect the store
	run.Status = domain.RunStatusFailed

	got, err := store.GetByID(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.RunStatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}

	err = store.Finish(ctx, &domain.Run{
		RunID:          "run-1",
		Status:         domain.RunStatusPartial,
		FailedStep:     "swap #4",
		Error:          "transaction reverted",
		SwapsSucceeded: 3,
		FinishedAt:     1704067260000,
	})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, _ = store.GetByID(ctx, "run-1")
	if got.Status != domain.RunStatusPartial || got.SwapsSucceeded != 3 || got.FailedStep != "swap #4" {
		t.Errorf("unexpected finished run: %+v", got)
	}
	if got.SwapsRequested != 10 || got.ChainID != 31337 {
		t.Errorf("Finish overwrote immutable fields: %+v", got)
	}
}

func TestRunStore_Errors(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, &domain.Run{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Run{RunID: "a"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, &domain.Run{RunID: "a"}); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Finish(ctx, &domain.Run{RunID: "missing"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	for i, id := range []string{"old", "new", "mid"} {
		started := map[string]int64{"old": 1000, "mid": 2000, "new": 3000}[id]
		if err := store.Insert(ctx, &domain.Run{RunID: id, StartedAt: started}); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "new" || runs[1].RunID != "mid" {
		t.Errorf("unexpected order: %s, %s", runs[0].RunID, runs[1].RunID)
	}
}
