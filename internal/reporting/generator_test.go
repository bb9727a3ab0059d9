package reporting

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
	"amm-lab/internal/storage/memory"
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func setupTestData(t *testing.T) (*memory.RunStore, *memory.DeploymentStore, *memory.SwapRecordStore) {
	ctx := context.Background()

	runStore := memory.NewRunStore()
	deploymentStore := memory.NewDeploymentStore()
	swapStore := memory.NewSwapRecordStore()

	run := &domain.Run{
		RunID:          "run-1",
		ChainID:        31337,
		Account:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Status:         domain.RunStatusPartial,
		FailedStep:     "swap #3",
		Error:          "transaction reverted: InsufficientLiquidity",
		SwapsRequested: 5,
		SwapsSucceeded: 2,
		StartedAt:      1704067200000,
		FinishedAt:     1704067260000,
	}
	if err := runStore.Insert(ctx, run); err != nil {
		t.Fatalf("Insert run failed: %v", err)
	}

	contracts := []*domain.DeployedContract{
		{DeploymentID: "d1", RunID: "run-1", Step: "tokenA", Kind: domain.ContractKindToken, Address: common.HexToAddress("0xa1"), TxHash: common.HexToHash("0x01"), BlockNumber: 1},
		{DeploymentID: "d2", RunID: "run-1", Step: "tokenB", Kind: domain.ContractKindToken, Address: common.HexToAddress("0xb2"), TxHash: common.HexToHash("0x02"), BlockNumber: 2},
		{DeploymentID: "d3", RunID: "run-1", Step: "pool", Kind: domain.ContractKindPool, Address: common.HexToAddress("0xc3"), TxHash: common.HexToHash("0x03"), BlockNumber: 3},
	}
	for _, c := range contracts {
		if err := deploymentStore.Insert(ctx, c); err != nil {
			t.Fatalf("Insert deployment failed: %v", err)
		}
	}

	swaps := []*domain.SwapRecord{
		{
			RecordID: "s2", RunID: "run-1", Index: 2,
			AmountIn: e18(100), AmountOutExpected: big.NewInt(80),
			BalanceBefore: big.NewInt(90), BalanceAfter: big.NewInt(170),
			ReserveInBefore: e18(1100), ReserveOutBefore: big.NewInt(910),
			ReserveInAfter: e18(1200), ReserveOutAfter: big.NewInt(830),
			TxHash: common.HexToHash("0x12"), BlockNumber: 8, Success: true,
		},
		{
			RecordID: "s1", RunID: "run-1", Index: 1,
			AmountIn: e18(100), AmountOutExpected: big.NewInt(90),
			BalanceBefore: big.NewInt(0), BalanceAfter: big.NewInt(90),
			ReserveInBefore: e18(1000), ReserveOutBefore: big.NewInt(1000),
			ReserveInAfter: e18(1100), ReserveOutAfter: big.NewInt(910),
			TxHash: common.HexToHash("0x11"), BlockNumber: 7, Success: true,
		},
		{
			RecordID: "s3", RunID: "run-1", Index: 3,
			AmountIn: e18(100), Success: false,
			Error: "transaction reverted: InsufficientLiquidity",
		},
	}
	for _, s := range swaps {
		if err := swapStore.Insert(ctx, s); err != nil {
			t.Fatalf("Insert swap failed: %v", err)
		}
	}

	return runStore, deploymentStore, swapStore
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func TestGenerator_Generate(t *testing.T) {
	runs, deployments, swaps := setupTestData(t)
	gen := NewGenerator(runs, deployments, swaps).WithClock(fixedClock)

	report, err := gen.Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !report.GeneratedAt.Equal(fixedClock()) {
		t.Errorf("GeneratedAt = %v, want %v", report.GeneratedAt, fixedClock())
	}
	if len(report.Contracts) != 3 || report.Contracts[2].Step != "pool" {
		t.Errorf("expected 3 contracts ending with pool, got %+v", report.Contracts)
	}

	s := report.Swaps
	if s.Recorded != 3 || s.Succeeded != 2 || s.Failed != 1 {
		t.Errorf("summary counts = %d/%d/%d, want 3/2/1", s.Recorded, s.Succeeded, s.Failed)
	}
	if s.TotalIn.Cmp(e18(200)) != 0 {
		t.Errorf("TotalIn = %s, want %s", s.TotalIn, e18(200))
	}
	if s.TotalOut.Cmp(big.NewInt(170)) != 0 {
		t.Errorf("TotalOut = %s, want 170", s.TotalOut)
	}
	if s.FirstAmountOut.Cmp(big.NewInt(90)) != 0 || s.LastAmountOut.Cmp(big.NewInt(80)) != 0 {
		t.Errorf("first/last out = %s/%s, want 90/80", s.FirstAmountOut, s.LastAmountOut)
	}
	if s.QuoteMisses != 0 {
		t.Errorf("QuoteMisses = %d, want 0", s.QuoteMisses)
	}
	if s.StartReserveIn.Cmp(e18(1000)) != 0 || s.EndReserveOut.Cmp(big.NewInt(830)) != 0 {
		t.Errorf("reserves = %s .. %s", s.StartReserveIn, s.EndReserveOut)
	}

	for i, row := range report.SwapRows {
		if row.Index != i+1 {
			t.Errorf("row %d has index %d, want sorted", i, row.Index)
		}
	}
	if report.SwapRows[2].AmountObserved != nil {
		t.Errorf("failed swap should have no observed amount")
	}
	if report.Reproducibility.ReplayCommand != "ammlab report --run-id run-1" {
		t.Errorf("ReplayCommand = %q", report.Reproducibility.ReplayCommand)
	}
}

func TestGenerator_UnknownRun(t *testing.T) {
	runs, deployments, swaps := setupTestData(t)
	_, err := NewGenerator(runs, deployments, swaps).Generate(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerator_DataVersionDeterministic(t *testing.T) {
	runs, deployments, swaps := setupTestData(t)
	gen := NewGenerator(runs, deployments, swaps).WithClock(fixedClock)

	r1, err := gen.Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := gen.Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if r1.Reproducibility.DataVersion != r2.Reproducibility.DataVersion {
		t.Errorf("data version changed between identical reports")
	}
	if len(r1.Reproducibility.DataVersion) != 12 {
		t.Errorf("data version %q: expected 12 hex characters", r1.Reproducibility.DataVersion)
	}
}

func TestRenderMarkdown(t *testing.T) {
	runs, deployments, swaps := setupTestData(t)
	report, err := NewGenerator(runs, deployments, swaps).WithClock(fixedClock).Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}

	md := RenderMarkdown(report)

	for _, want := range []string{
		"# Run run-1",
		"Generated: 2024-01-01T12:00:00Z",
		"| Status | partial |",
		"| Failed Step | swap #3 |",
		"## Contracts",
		"| Succeeded | 2 |",
		"| Total In | 200 |",
		"FAILED: transaction reverted: InsufficientLiquidity",
		"`ammlab report --run-id run-1`",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderSwapsCSV(t *testing.T) {
	rows := []SwapRow{
		{Index: 1, AmountIn: big.NewInt(100), AmountExpected: big.NewInt(90), AmountObserved: big.NewInt(90), Success: true, BlockNumber: 7},
		{Index: 2, AmountIn: big.NewInt(100), Success: false, Error: `reverted: "K", bad`},
	}

	csv := RenderSwapsCSV(rows)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "swap_index,amount_in,") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if lines[1] != "1,100,90,90,,,,7,true,,0" {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], `"reverted: ""K"", bad"`) {
		t.Errorf("row 2 error not quoted: %q", lines[2])
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		in   *big.Int
		want string
	}{
		{nil, "-"},
		{big.NewInt(0), "0"},
		{e18(100), "100"},
		{big.NewInt(1), "0.000000000000000001"},
		{new(big.Int).Add(e18(1), big.NewInt(5e17)), "1.5"},
		{big.NewInt(-5e17), "-0.5"},
	}

	for _, tt := range tests {
		if got := formatUnits(tt.in); got != tt.want {
			t.Errorf("formatUnits(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWrite(t *testing.T) {
	runs, deployments, swaps := setupTestData(t)
	report, err := NewGenerator(runs, deployments, swaps).Generate(context.Background(), "run-1")
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := Write(dir, report)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 files, got %v", paths)
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}
	if filepath.Base(paths[0]) != "run_run-1.md" {
		t.Errorf("unexpected markdown file %s", paths[0])
	}
}
