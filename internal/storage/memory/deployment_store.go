package memory

import (
	"context"
	"sort"
	"sync"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// DeploymentStore is an in-memory implementation of storage.DeploymentStore.
type DeploymentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.DeployedContract // keyed by run_id|step
}

// NewDeploymentStore creates a new in-memory deployment store.
func NewDeploymentStore() *DeploymentStore {
	return &DeploymentStore{
		data: make(map[string]*domain.DeployedContract),
	}
}

func deploymentKey(runID, step string) string {
	return runID + "|" + step
}

// Insert adds a deployed contract. Returns ErrDuplicateKey if (run_id, step) exists.
func (s *DeploymentStore) Insert(_ context.Context, d *domain.DeployedContract) error {
	if d == nil || d.RunID == "" || d.Step == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := deploymentKey(d.RunID, d.Step)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	dCopy := *d
	s.data[key] = &dCopy
	return nil
}

// GetByRunID retrieves all contracts of a run, in deployment order.
func (s *DeploymentStore) GetByRunID(_ context.Context, runID string) ([]*domain.DeployedContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.DeployedContract
	for _, d := range s.data {
		if d.RunID == runID {
			dCopy := *d
			result = append(result, &dCopy)
		}
	}

	// Sort by block, then deployed_at, then step
	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		if result[i].DeployedAt != result[j].DeployedAt {
			return result[i].DeployedAt < result[j].DeployedAt
		}
		return result[i].Step < result[j].Step
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.DeploymentStore = (*DeploymentStore)(nil)
