package memory

import (
	"context"
	"sort"
	"sync"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// SwapRecordStore is an in-memory implementation of storage.SwapRecordStore.
// It also satisfies storage.SwapSink.
type SwapRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapRecord // keyed by record_id
}

// NewSwapRecordStore creates a new in-memory swap record store.
func NewSwapRecordStore() *SwapRecordStore {
	return &SwapRecordStore{
		data: make(map[string]*domain.SwapRecord),
	}
}

// Insert adds a swap record. Returns ErrDuplicateKey if record_id exists.
func (s *SwapRecordStore) Insert(_ context.Context, r *domain.SwapRecord) error {
	if r == nil || r.RecordID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RecordID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[r.RecordID] = r.Clone()
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *SwapRecordStore) InsertBulk(_ context.Context, records []*domain.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates first (atomic)
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[r.RecordID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[r.RecordID] = struct{}{}
	}

	for _, r := range records {
		s.data[r.RecordID] = r.Clone()
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by index ASC.
func (s *SwapRecordStore) GetByRunID(_ context.Context, runID string) ([]*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapRecord
	for _, r := range s.data {
		if r.RunID == runID {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})

	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.SwapRecordStore = (*SwapRecordStore)(nil)
	_ storage.SwapSink        = (*SwapRecordStore)(nil)
)
