package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// SwapRecordStore implements storage.SwapRecordStore using PostgreSQL.
type SwapRecordStore struct {
	pool *Pool
}

// NewSwapRecordStore creates a new SwapRecordStore.
func NewSwapRecordStore(pool *Pool) *SwapRecordStore {
	return &SwapRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapRecordStore = (*SwapRecordStore)(nil)

const insertSwapRecord = `
	INSERT INTO swap_records (
		record_id, run_id, swap_index, pool, token_in, token_out,
		amount_in, amount_out_expected, balance_before, balance_after,
		reserve_in_before, reserve_out_before, reserve_in_after, reserve_out_after,
		tx_hash, block_number, success, error, executed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7::numeric, $8::numeric, $9::numeric, $10::numeric,
		$11::numeric, $12::numeric, $13::numeric, $14::numeric,
		$15, $16, $17, $18, $19
	)
`

func swapRecordArgs(r *domain.SwapRecord) []any {
	txHash := ""
	if r.TxHash != (common.Hash{}) {
		txHash = r.TxHash.Hex()
	}
	return []any{
		r.RecordID, r.RunID, r.Index, r.Pool.Hex(), r.TokenIn.Hex(), r.TokenOut.Hex(),
		numeric(r.AmountIn), numeric(r.AmountOutExpected), numeric(r.BalanceBefore), numeric(r.BalanceAfter),
		numeric(r.ReserveInBefore), numeric(r.ReserveOutBefore), numeric(r.ReserveInAfter), numeric(r.ReserveOutAfter),
		txHash, r.BlockNumber, r.Success, r.Error, r.ExecutedAt,
	}
}

// Insert adds a swap record. Returns ErrDuplicateKey if record_id exists.
func (s *SwapRecordStore) Insert(ctx context.Context, r *domain.SwapRecord) (err error) {
	defer func(start time.Time) { s.pool.track("insert_swap_record", start, err) }(time.Now())

	if r == nil || r.RecordID == "" || r.AmountIn == nil {
		return storage.ErrInvalidInput
	}

	_, err = s.pool.Exec(ctx, insertSwapRecord, swapRecordArgs(r)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap record: %w", err)
	}
	return nil
}

// InsertBulk adds multiple records atomically. Fails entire batch on any duplicate.
func (s *SwapRecordStore) InsertBulk(ctx context.Context, records []*domain.SwapRecord) (err error) {
	defer func(start time.Time) { s.pool.track("insert_swap_records", start, err) }(time.Now())

	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if r == nil || r.RecordID == "" || r.AmountIn == nil {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertSwapRecord, swapRecordArgs(r)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert swap record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by index ASC.
func (s *SwapRecordStore) GetByRunID(ctx context.Context, runID string) (_ []*domain.SwapRecord, err error) {
	defer func(start time.Time) { s.pool.track("get_swap_records", start, err) }(time.Now())

	query := `
		SELECT record_id, run_id, swap_index, pool, token_in, token_out,
			amount_in::text, amount_out_expected::text, balance_before::text, balance_after::text,
			reserve_in_before::text, reserve_out_before::text, reserve_in_after::text, reserve_out_after::text,
			tx_hash, block_number, success, error, executed_at
		FROM swap_records
		WHERE run_id = $1
		ORDER BY swap_index ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get swap records by run: %w", err)
	}
	defer rows.Close()

	var result []*domain.SwapRecord
	for rows.Next() {
		r, err := scanSwapRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap record row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap record rows: %w", err)
	}

	return result, nil
}

// scanSwapRecord scans a single row into a SwapRecord.
func scanSwapRecord(row pgx.Row) (*domain.SwapRecord, error) {
	var r domain.SwapRecord
	var pool, tokenIn, tokenOut, txHash string
	var amounts [8]*string

	err := row.Scan(
		&r.RecordID, &r.RunID, &r.Index, &pool, &tokenIn, &tokenOut,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3],
		&amounts[4], &amounts[5], &amounts[6], &amounts[7],
		&txHash, &r.BlockNumber, &r.Success, &r.Error, &r.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}

	targets := [8]**big.Int{
		&r.AmountIn, &r.AmountOutExpected, &r.BalanceBefore, &r.BalanceAfter,
		&r.ReserveInBefore, &r.ReserveOutBefore, &r.ReserveInAfter, &r.ReserveOutAfter,
	}
	for i, s := range amounts {
		v, err := parseNumeric(s)
		if err != nil {
			return nil, err
		}
		*targets[i] = v
	}

	r.Pool = common.HexToAddress(pool)
	r.TokenIn = common.HexToAddress(tokenIn)
	r.TokenOut = common.HexToAddress(tokenOut)
	if txHash != "" {
		r.TxHash = common.HexToHash(txHash)
	}
	return &r, nil
}
