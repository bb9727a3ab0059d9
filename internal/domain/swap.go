package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapRecord is the observation of one swap iteration.
// Corresponds to swap_records table in PostgreSQL and ClickHouse.
type SwapRecord struct {
	RecordID          string         // deterministic hash of (run_id, index)
	RunID             string         // FK to runs
	Index             int            // 1-based iteration number
	Pool              common.Address // pool contract
	TokenIn           common.Address // token sold
	TokenOut          common.Address // counter-asset received
	AmountIn          *big.Int       // fixed input amount
	AmountOutExpected *big.Int       // pool's getAmountOut before submission
	BalanceBefore     *big.Int       // counter-asset balance before the swap
	BalanceAfter      *big.Int       // counter-asset balance after confirmation
	ReserveInBefore   *big.Int
	ReserveOutBefore  *big.Int
	ReserveInAfter    *big.Int
	ReserveOutAfter   *big.Int
	TxHash            common.Hash
	BlockNumber       uint64
	Success           bool
	Error             string // failure reason when Success is false
	ExecutedAt        int64  // Unix timestamp in milliseconds
}

// AmountOutObserved returns BalanceAfter - BalanceBefore, or nil when unknown.
func (r *SwapRecord) AmountOutObserved() *big.Int {
	if r.BalanceBefore == nil || r.BalanceAfter == nil {
		return nil
	}
	return new(big.Int).Sub(r.BalanceAfter, r.BalanceBefore)
}

// Clone returns a deep copy of r.
func (r *SwapRecord) Clone() *SwapRecord {
	c := *r
	for _, p := range []**big.Int{
		&c.AmountIn, &c.AmountOutExpected, &c.BalanceBefore, &c.BalanceAfter,
		&c.ReserveInBefore, &c.ReserveOutBefore, &c.ReserveInAfter, &c.ReserveOutAfter,
	} {
		if *p != nil {
			*p = new(big.Int).Set(*p)
		}
	}
	return &c
}
