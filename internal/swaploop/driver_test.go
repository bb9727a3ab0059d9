package swaploop

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"amm-lab/internal/amm"
	"amm-lab/internal/artifact"
	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
	"amm-lab/internal/ledger/simulated"
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type market struct {
	ledger *simulated.Ledger
	tokenA ledger.Contract
	tokenB ledger.Contract
	pool   ledger.Contract
}

// setupMarket deploys two tokens and a funded pool, and approves the pool
// to spend `approveA` of token A for swaps.
func setupMarket(t *testing.T, l *simulated.Ledger, approveA *big.Int) *market {
	t.Helper()
	ctx := context.Background()

	deploy := func(kind domain.ContractKind, args ...any) ledger.Contract {
		a, err := artifact.EmbeddedProvider{}.Artifact(ctx, kind)
		if err != nil {
			t.Fatal(err)
		}
		tx, err := l.Deploy(ctx, a, args...)
		if err != nil {
			t.Fatal(err)
		}
		rcpt, err := l.WaitForConfirmation(ctx, tx)
		if err != nil {
			t.Fatal(err)
		}
		c, err := ledger.NewContract(rcpt.ContractAddress, a)
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	transact := func(c ledger.Contract, method string, args ...any) {
		tx, err := l.Transact(ctx, c, method, args...)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := l.WaitForConfirmation(ctx, tx); err != nil {
			t.Fatalf("%s: %v", method, err)
		}
	}

	m := &market{ledger: l}
	m.tokenA = deploy(domain.ContractKindToken, "Alpha", "ALP", ether(100_000))
	m.tokenB = deploy(domain.ContractKindToken, "Beta", "BET", ether(10_000))
	m.pool = deploy(domain.ContractKindPool, m.tokenA.Address, m.tokenB.Address)
	transact(m.tokenA, ledger.MethodApprove, m.pool.Address, new(big.Int).Add(ether(50_000), approveA))
	transact(m.tokenB, ledger.MethodApprove, m.pool.Address, ether(500))
	transact(m.pool, ledger.MethodAddLiquidity, ether(50_000), ether(500))
	return m
}

func (m *market) request(count int) Request {
	return Request{
		RunID:         "run-1",
		Pool:          m.pool,
		TokenIn:       m.tokenA,
		TokenOut:      m.tokenB,
		AmountPerSwap: ether(100),
		Count:         count,
	}
}

func countSwaps(l *simulated.Ledger) int {
	n := 0
	for _, s := range l.Submissions() {
		if s.Method == ledger.MethodSwap {
			n++
		}
	}
	return n
}

func TestRun_AllSucceed(t *testing.T) {
	l := simulated.New()
	m := setupMarket(t, l, ether(300))

	var emitted int
	records, err := New(Options{Ledger: l, OnRecord: func(domain.SwapRecord) { emitted++ }}).Run(context.Background(), m.request(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(records) != 3 || emitted != 3 {
		t.Fatalf("records = %d, emitted = %d, want 3", len(records), emitted)
	}

	for i, rec := range records {
		if rec.Index != i+1 || !rec.Success {
			t.Errorf("record %d: index=%d success=%v", i, rec.Index, rec.Success)
		}
		if rec.AmountOutObserved().Cmp(rec.AmountOutExpected) != 0 {
			t.Errorf("swap %d: observed %s, expected %s", rec.Index, rec.AmountOutObserved(), rec.AmountOutExpected)
		}
		before := amm.Reserves{A: rec.ReserveInBefore, B: rec.ReserveOutBefore}
		after := amm.Reserves{A: rec.ReserveInAfter, B: rec.ReserveOutAfter}
		if !amm.InvariantHolds(before, after) {
			t.Errorf("swap %d: product decreased %s -> %s", rec.Index, before, after)
		}
		if i > 0 && rec.ReserveInBefore.Cmp(records[i-1].ReserveInAfter) != 0 {
			t.Errorf("swap %d: reserves not re-read", rec.Index)
		}
		if rec.RecordID == "" {
			t.Errorf("swap %d: empty record id", rec.Index)
		}
	}

	want, _ := new(big.Int).SetString("995015938219190933", 10)
	if records[0].AmountOutExpected.Cmp(want) != 0 {
		t.Errorf("first swap expected %s, want %s", records[0].AmountOutExpected, want)
	}
	want2, _ := new(big.Int).SetString("991057653949317359", 10)
	if records[1].AmountOutExpected.Cmp(want2) != 0 {
		t.Errorf("second swap expected %s, want %s", records[1].AmountOutExpected, want2)
	}
}

func TestRun_FailFast(t *testing.T) {
	swaps := 0
	l := simulated.New(simulated.WithHooks(simulated.Hooks{
		Revert: func(s simulated.Submission) string {
			if s.Method != ledger.MethodSwap {
				return ""
			}
			swaps++
			if swaps == 4 {
				return "InsufficientLiquidity"
			}
			return ""
		},
	}))
	m := setupMarket(t, l, ether(1000))

	records, err := New(Options{Ledger: l}).Run(context.Background(), m.request(10))

	var se *SwapExecutionError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SwapExecutionError, got %v", err)
	}
	if se.Index != 4 {
		t.Errorf("failed index = %d, want 4", se.Index)
	}
	if !errors.Is(err, ledger.ErrReverted) {
		t.Errorf("expected ErrReverted in chain, got %v", err)
	}
	if len(records) != 3 || len(se.Records) != 3 {
		t.Fatalf("records = %d (error carries %d), want exactly 3", len(records), len(se.Records))
	}
	for _, rec := range records {
		if !rec.Success {
			t.Errorf("record %d not successful", rec.Index)
		}
	}
	if n := countSwaps(l); n != 4 {
		t.Errorf("submitted %d swaps, want 4 (#5..#10 never submitted)", n)
	}
}

func TestRun_Continue(t *testing.T) {
	swaps := 0
	l := simulated.New(simulated.WithHooks(simulated.Hooks{
		Revert: func(s simulated.Submission) string {
			if s.Method == ledger.MethodSwap {
				swaps++
				if swaps == 2 {
					return "boom"
				}
			}
			return ""
		},
	}))
	m := setupMarket(t, l, ether(400))

	records, err := New(Options{Ledger: l, Policy: PolicyContinue}).Run(context.Background(), m.request(4))

	var se *SwapExecutionError
	if !errors.As(err, &se) || se.Index != 2 || se.Failed != 1 {
		t.Fatalf("expected failure at #2, got %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	if records[1].Success || records[1].Error == "" {
		t.Errorf("record 2 = %+v, want failed with error", records[1])
	}
	if n := countSwaps(l); n != 4 {
		t.Errorf("submitted %d swaps, want 4", n)
	}
}

func TestRun_AllowanceExhausted(t *testing.T) {
	l := simulated.New()
	m := setupMarket(t, l, ether(200))

	records, err := New(Options{Ledger: l}).Run(context.Background(), m.request(5))

	var se *SwapExecutionError
	if !errors.As(err, &se) || se.Index != 3 {
		t.Fatalf("expected failure at #3, got %v", err)
	}
	var re *ledger.RevertError
	if !errors.As(err, &re) || re.Reason != "InsufficientAllowance" {
		t.Errorf("expected InsufficientAllowance, got %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records = %d, want 2", len(records))
	}
}

func TestRun_Interval(t *testing.T) {
	l := simulated.New()
	m := setupMarket(t, l, ether(300))

	start := time.Now()
	_, err := New(Options{Ledger: l, Interval: 30 * time.Millisecond}).Run(context.Background(), m.request(3))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("3 swaps took %s, want at least 2 intervals", elapsed)
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	l := simulated.New()
	m := setupMarket(t, l, ether(1))
	d := New(Options{Ledger: l})

	req := m.request(1)
	req.AmountPerSwap = big.NewInt(0)
	if _, err := d.Run(context.Background(), req); !errors.Is(err, amm.ErrInvalidAmount) {
		t.Errorf("zero amount: expected ErrInvalidAmount, got %v", err)
	}

	req = m.request(1)
	req.TokenOut = m.tokenA
	if _, err := d.Run(context.Background(), req); !errors.Is(err, amm.ErrInvalidToken) {
		t.Errorf("same token: expected ErrInvalidToken, got %v", err)
	}

	req = m.request(1)
	req.TokenOut = m.pool
	if _, err := d.Run(context.Background(), req); !errors.Is(err, amm.ErrInvalidToken) {
		t.Errorf("foreign token: expected ErrInvalidToken, got %v", err)
	}

	if n := countSwaps(l); n != 0 {
		t.Errorf("submitted %d swaps for invalid requests", n)
	}
}

func TestRun_ZeroCount(t *testing.T) {
	l := simulated.New()
	m := setupMarket(t, l, ether(1))

	records, err := New(Options{Ledger: l}).Run(context.Background(), m.request(0))
	if err != nil || len(records) != 0 {
		t.Fatalf("records = %v, err = %v", records, err)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicyFailFast, "fail-fast": PolicyFailFast, "continue": PolicyContinue} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("retry"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
