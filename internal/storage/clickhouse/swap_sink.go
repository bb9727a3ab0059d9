package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// SwapSink implements storage.SwapSink using ClickHouse.
type SwapSink struct {
	conn *Conn
}

// NewSwapSink creates a new SwapSink.
func NewSwapSink(conn *Conn) *SwapSink {
	return &SwapSink{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapSink = (*SwapSink)(nil)

// InsertBulk appends records in one batch. Rows are keyed by (run_id, swap_index);
// a re-sent record replaces the earlier row on merge.
func (s *SwapSink) InsertBulk(ctx context.Context, records []*domain.SwapRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_records (
			record_id, run_id, swap_index, pool, token_in, token_out,
			amount_in, amount_out_expected, amount_out_observed,
			reserve_in_before, reserve_out_before, reserve_in_after, reserve_out_after,
			tx_hash, block_number, success, error, executed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		if r == nil || r.RecordID == "" {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			r.RecordID, r.RunID, uint32(r.Index), r.Pool.Hex(), r.TokenIn.Hex(), r.TokenOut.Hex(),
			orZero(r.AmountIn), orZero(r.AmountOutExpected), orZero(r.AmountOutObserved()),
			orZero(r.ReserveInBefore), orZero(r.ReserveOutBefore), orZero(r.ReserveInAfter), orZero(r.ReserveOutAfter),
			r.TxHash.Hex(), r.BlockNumber, boolToUInt8(r.Success), r.Error, time.UnixMilli(r.ExecutedAt).UTC(),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByRunID returns the number of successful and failed swaps of a run.
func (s *SwapSink) CountByRunID(ctx context.Context, runID string) (succeeded, failed uint64, err error) {
	row := s.conn.QueryRow(ctx, `
		SELECT countIf(success = 1), countIf(success = 0)
		FROM swap_records FINAL
		WHERE run_id = ?
	`, runID)
	if err := row.Scan(&succeeded, &failed); err != nil {
		return 0, 0, fmt.Errorf("count swaps: %w", err)
	}
	return succeeded, failed, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
