package reporting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/domain"
	"amm-lab/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	runStore        storage.RunStore
	deploymentStore storage.DeploymentStore
	swapStore       storage.SwapRecordStore
	now             func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	runStore storage.RunStore,
	deploymentStore storage.DeploymentStore,
	swapStore storage.SwapRecordStore,
) *Generator {
	return &Generator{
		runStore:        runStore,
		deploymentStore: deploymentStore,
		swapStore:       swapStore,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate loads a run with its contracts and swap records and builds its report.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	contracts, err := g.deploymentStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	swaps, err := g.swapStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load swap records: %w", err)
	}

	return Build(g.now(), run, contracts, swaps), nil
}

// Build assembles a report from in-memory run data.
func Build(now time.Time, run *domain.Run, contracts []*domain.DeployedContract, swaps []*domain.SwapRecord) *Report {
	r := &Report{
		GeneratedAt: now,
		Run: RunSection{
			RunID:          run.RunID,
			ChainID:        run.ChainID,
			Account:        run.Account,
			Status:         string(run.Status),
			FailedStep:     run.FailedStep,
			Error:          run.Error,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
			SwapsRequested: run.SwapsRequested,
		},
	}

	for _, c := range contracts {
		r.Contracts = append(r.Contracts, ContractRow{
			Step:        c.Step,
			Kind:        string(c.Kind),
			Address:     c.Address.Hex(),
			TxHash:      c.TxHash.Hex(),
			BlockNumber: c.BlockNumber,
		})
	}

	sorted := make([]*domain.SwapRecord, len(swaps))
	copy(sorted, swaps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	r.Swaps = summarizeSwaps(sorted)
	for _, s := range sorted {
		row := SwapRow{
			Index:           s.Index,
			AmountIn:        s.AmountIn,
			AmountExpected:  s.AmountOutExpected,
			AmountObserved:  s.AmountOutObserved(),
			ReserveInAfter:  s.ReserveInAfter,
			ReserveOutAfter: s.ReserveOutAfter,
			BlockNumber:     s.BlockNumber,
			Success:         s.Success,
			Error:           s.Error,
			ExecutedAt:      s.ExecutedAt,
		}
		if s.TxHash != (common.Hash{}) {
			row.TxHash = s.TxHash.Hex()
		}
		r.SwapRows = append(r.SwapRows, row)
	}

	r.Reproducibility = ReproducibilityMetadata{
		DataVersion:   computeDataVersion(contracts, sorted),
		ReplayCommand: "ammlab report --run-id " + run.RunID,
	}
	return r
}

// summarizeSwaps aggregates records sorted by index.
func summarizeSwaps(swaps []*domain.SwapRecord) SwapSummary {
	sum := SwapSummary{
		Recorded: len(swaps),
		TotalIn:  new(big.Int),
		TotalOut: new(big.Int),
	}
	if len(swaps) > 0 {
		sum.StartReserveIn = swaps[0].ReserveInBefore
		sum.StartReserveOut = swaps[0].ReserveOutBefore
	}

	for _, s := range swaps {
		if !s.Success {
			sum.Failed++
			continue
		}
		sum.Succeeded++
		if s.AmountIn != nil {
			sum.TotalIn.Add(sum.TotalIn, s.AmountIn)
		}

		out := s.AmountOutObserved()
		if out != nil {
			sum.TotalOut.Add(sum.TotalOut, out)
			if sum.FirstAmountOut == nil {
				sum.FirstAmountOut = out
			}
			sum.LastAmountOut = out
			if s.AmountOutExpected != nil && out.Cmp(s.AmountOutExpected) != 0 {
				sum.QuoteMisses++
			}
		}
		sum.EndReserveIn = s.ReserveInAfter
		sum.EndReserveOut = s.ReserveOutAfter
	}
	return sum
}

// computeDataVersion hashes contract addresses and swap outcomes.
func computeDataVersion(contracts []*domain.DeployedContract, swaps []*domain.SwapRecord) string {
	h := sha256.New()

	var contractParts []string
	for _, c := range contracts {
		contractParts = append(contractParts, fmt.Sprintf("%s|%s|%s", c.Step, c.Address.Hex(), c.TxHash.Hex()))
	}
	sort.Strings(contractParts)
	h.Write([]byte("CONTRACTS\n"))
	h.Write([]byte(strings.Join(contractParts, "\n")))

	var swapParts []string
	for _, s := range swaps {
		swapParts = append(swapParts, fmt.Sprintf("%s|%t|%s", s.RecordID, s.Success, amount(s.AmountOutObserved())))
	}
	h.Write([]byte("\nSWAPS\n"))
	h.Write([]byte(strings.Join(swapParts, "\n")))

	return hex.EncodeToString(h.Sum(nil))[:12]
}
