// Package swaploop executes a fixed number of identical swaps against a pool,
// recording balances and reserves around each one.
package swaploop

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"amm-lab/internal/amm"
	"amm-lab/internal/domain"
	"amm-lab/internal/idhash"
	"amm-lab/internal/ledger"
)

// Request describes one swap loop.
type Request struct {
	RunID         string
	Pool          ledger.Contract
	TokenIn       ledger.Contract
	TokenOut      ledger.Contract
	AmountPerSwap *big.Int
	Count         int
}

func (r Request) validate() error {
	if r.AmountPerSwap == nil || r.AmountPerSwap.Sign() <= 0 {
		return fmt.Errorf("amount per swap: %w", amm.ErrInvalidAmount)
	}
	if r.Count < 0 {
		return fmt.Errorf("swap count must not be negative, got %d", r.Count)
	}
	if r.TokenIn.Address == r.TokenOut.Address {
		return fmt.Errorf("token in and out are the same: %w", amm.ErrInvalidToken)
	}
	return nil
}

// Options configures a Driver.
type Options struct {
	Ledger ledger.Ledger

	// Interval is the minimum spacing between swap submissions. Zero disables it.
	Interval time.Duration

	Policy Policy

	// OnRecord is called for every recorded swap, successful or not.
	OnRecord func(rec domain.SwapRecord)

	Logger *zap.Logger
	Now    func() time.Time
}

// Driver runs swap loops.
type Driver struct {
	opts    Options
	log     *zap.Logger
	limiter *rate.Limiter
}

// New creates a Driver.
func New(opts Options) *Driver {
	if opts.Policy == "" {
		opts.Policy = PolicyFailFast
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	return &Driver{
		opts:    opts,
		log:     log.Named("swaploop"),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// snapshot is the observable state around one swap.
type snapshot struct {
	balance    *big.Int // counter-asset balance of the account
	reserveIn  *big.Int
	reserveOut *big.Int
	expected   *big.Int // pool's getAmountOut, before only
}

// Run executes req.Count swaps sequentially.
//
// Under PolicyFailFast the first failure stops the loop: the records of the
// successful swaps so far are returned with a *SwapExecutionError and no
// further swap is submitted. Under PolicyContinue failures are recorded and
// a *SwapExecutionError is returned once the loop completes.
func (d *Driver) Run(ctx context.Context, req Request) ([]domain.SwapRecord, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tokenA, tokenB, err := ledger.PoolTokens(ctx, d.opts.Ledger, req.Pool)
	if err != nil {
		return nil, fmt.Errorf("read pool tokens: %w", err)
	}
	var inIsA bool
	switch {
	case req.TokenIn.Address == tokenA && req.TokenOut.Address == tokenB:
		inIsA = true
	case req.TokenIn.Address == tokenB && req.TokenOut.Address == tokenA:
		inIsA = false
	default:
		return nil, fmt.Errorf("pool %s does not trade %s/%s: %w",
			req.Pool.Address.Hex(), req.TokenIn.Address.Hex(), req.TokenOut.Address.Hex(), amm.ErrInvalidToken)
	}

	records := make([]domain.SwapRecord, 0, req.Count)
	var firstErr *SwapExecutionError

	for i := 1; i <= req.Count; i++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return records, fmt.Errorf("wait before swap #%d: %w", i, err)
		}

		rec, err := d.swapOnce(ctx, req, i, inIsA)
		if err != nil {
			d.log.Error("swap failed", zap.Int("swap", i), zap.Error(err))
			if ctx.Err() != nil {
				return records, fmt.Errorf("swap #%d: %w", i, err)
			}
			if firstErr == nil {
				firstErr = &SwapExecutionError{Index: i, Err: err}
			}
			firstErr.Failed++

			if d.opts.Policy == PolicyFailFast {
				firstErr.Records = records
				return records, firstErr
			}
			rec.Success = false
			rec.Error = err.Error()
			d.emit(rec)
			records = append(records, rec)
			continue
		}

		d.emit(rec)
		records = append(records, rec)
		d.log.Info("swap confirmed",
			zap.Int("swap", i),
			zap.String("tx", rec.TxHash.Hex()),
			zap.Stringer("amount_in", rec.AmountIn),
			zap.Stringer("amount_out_expected", rec.AmountOutExpected),
			zap.Stringer("amount_out_observed", rec.AmountOutObserved()),
			zap.Stringer("reserve_in", rec.ReserveInAfter),
			zap.Stringer("reserve_out", rec.ReserveOutAfter),
		)
	}

	if firstErr != nil {
		firstErr.Records = records
		return records, firstErr
	}
	return records, nil
}

// swapOnce performs one iteration. On error the returned record holds
// whatever was observed before the failure.
func (d *Driver) swapOnce(ctx context.Context, req Request, index int, inIsA bool) (domain.SwapRecord, error) {
	rec := domain.SwapRecord{
		RecordID: idhash.ComputeSwapRecordID(req.RunID, req.Pool.Address, index),
		RunID:    req.RunID,
		Index:    index,
		Pool:     req.Pool.Address,
		TokenIn:  req.TokenIn.Address,
		TokenOut: req.TokenOut.Address,
		AmountIn: new(big.Int).Set(req.AmountPerSwap),
	}

	before, err := d.observe(ctx, req, inIsA, true)
	if err != nil {
		rec.ExecutedAt = d.opts.Now().UnixMilli()
		return rec, fmt.Errorf("read state before swap: %w", err)
	}
	rec.BalanceBefore = before.balance
	rec.ReserveInBefore = before.reserveIn
	rec.ReserveOutBefore = before.reserveOut
	rec.AmountOutExpected = before.expected

	tx, err := d.opts.Ledger.Transact(ctx, req.Pool, ledger.MethodSwap, req.TokenIn.Address, req.AmountPerSwap)
	if err != nil {
		rec.ExecutedAt = d.opts.Now().UnixMilli()
		return rec, fmt.Errorf("submit swap: %w", err)
	}
	rec.TxHash = tx.Hash

	rcpt, err := d.opts.Ledger.WaitForConfirmation(ctx, tx)
	rec.ExecutedAt = d.opts.Now().UnixMilli()
	if rcpt != nil {
		rec.BlockNumber = rcpt.BlockNumber
	}
	if err != nil {
		return rec, fmt.Errorf("confirm swap: %w", err)
	}

	after, err := d.observe(ctx, req, inIsA, false)
	if err != nil {
		return rec, fmt.Errorf("read state after swap: %w", err)
	}
	rec.BalanceAfter = after.balance
	rec.ReserveInAfter = after.reserveIn
	rec.ReserveOutAfter = after.reserveOut
	rec.Success = true
	return rec, nil
}

// observe reads the counter-asset balance, the reserves and, when quote is
// set, the pool's quote for the next swap. Reads run concurrently.
func (d *Driver) observe(ctx context.Context, req Request, inIsA, quote bool) (snapshot, error) {
	var snap snapshot
	var reserves amm.Reserves
	account := d.opts.Ledger.Account()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bal, err := ledger.TokenBalance(gctx, d.opts.Ledger, req.TokenOut, account)
		snap.balance = bal
		return err
	})
	g.Go(func() error {
		r, err := ledger.PoolReserves(gctx, d.opts.Ledger, req.Pool)
		reserves = r
		return err
	})
	if quote {
		g.Go(func() error {
			out, err := ledger.AmountOut(gctx, d.opts.Ledger, req.Pool, req.TokenIn.Address, req.AmountPerSwap)
			snap.expected = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}

	if inIsA {
		snap.reserveIn, snap.reserveOut = reserves.A, reserves.B
	} else {
		snap.reserveIn, snap.reserveOut = reserves.B, reserves.A
	}
	return snap, nil
}

func (d *Driver) emit(rec domain.SwapRecord) {
	if d.opts.OnRecord != nil {
		d.opts.OnRecord(rec)
	}
}
