package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// DeploymentStore implements storage.DeploymentStore using PostgreSQL.
type DeploymentStore struct {
	pool *Pool
}

// NewDeploymentStore creates a new DeploymentStore.
func NewDeploymentStore(pool *Pool) *DeploymentStore {
	return &DeploymentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.DeploymentStore = (*DeploymentStore)(nil)

// Insert adds a deployed contract. Returns ErrDuplicateKey if (run_id, step) exists.
func (s *DeploymentStore) Insert(ctx context.Context, d *domain.DeployedContract) (err error) {
	defer func(start time.Time) { s.pool.track("insert_deployment", start, err) }(time.Now())

	query := `
		INSERT INTO deployed_contracts (
			deployment_id, run_id, step, kind, address, tx_hash, block_number, deployed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.pool.Exec(ctx, query,
		d.DeploymentID,
		d.RunID,
		d.Step,
		string(d.Kind),
		d.Address.Hex(),
		d.TxHash.Hex(),
		d.BlockNumber,
		d.DeployedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// GetByRunID retrieves all contracts of a run, in deployment order.
func (s *DeploymentStore) GetByRunID(ctx context.Context, runID string) (_ []*domain.DeployedContract, err error) {
	defer func(start time.Time) { s.pool.track("get_deployments", start, err) }(time.Now())

	query := `
		SELECT deployment_id, run_id, step, kind, address, tx_hash, block_number, deployed_at
		FROM deployed_contracts
		WHERE run_id = $1
		ORDER BY block_number ASC, deployed_at ASC, step ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get deployments by run: %w", err)
	}
	defer rows.Close()

	var result []*domain.DeployedContract
	for rows.Next() {
		var d domain.DeployedContract
		var kind, address, txHash string

		err := rows.Scan(
			&d.DeploymentID,
			&d.RunID,
			&d.Step,
			&kind,
			&address,
			&txHash,
			&d.BlockNumber,
			&d.DeployedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}

		d.Kind = domain.ContractKind(kind)
		d.Address = common.HexToAddress(address)
		d.TxHash = common.HexToHash(txHash)
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployment rows: %w", err)
	}

	return result, nil
}
