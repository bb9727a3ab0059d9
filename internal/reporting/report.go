package reporting

import (
	"math/big"
	"time"
)

// Report is the summary of one pipeline run.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	Run RunSection

	// Contracts in deployment order
	Contracts []ContractRow

	Swaps SwapSummary

	// SwapRows sorted by index
	SwapRows []SwapRow

	Reproducibility ReproducibilityMetadata
}

// RunSection describes the run itself.
type RunSection struct {
	RunID          string
	ChainID        int64
	Account        string
	Status         string
	FailedStep     string
	Error          string
	StartedAt      int64 // Unix ms
	FinishedAt     int64 // Unix ms, 0 while running
	SwapsRequested int
}

// ContractRow is one deployed contract.
type ContractRow struct {
	Step        string
	Kind        string
	Address     string
	TxHash      string
	BlockNumber uint64
}

// SwapSummary aggregates the swap records of a run.
type SwapSummary struct {
	Recorded    int
	Succeeded   int
	Failed      int
	QuoteMisses int // successful swaps whose observed output differs from the quote

	TotalIn  *big.Int // sum over successful swaps
	TotalOut *big.Int // sum of observed outputs over successful swaps

	FirstAmountOut *big.Int // nil when no swap succeeded
	LastAmountOut  *big.Int

	// Reserves of the first swap before and the last successful swap after
	StartReserveIn  *big.Int
	StartReserveOut *big.Int
	EndReserveIn    *big.Int
	EndReserveOut   *big.Int
}

// SwapRow is one swap iteration.
type SwapRow struct {
	Index           int
	AmountIn        *big.Int
	AmountExpected  *big.Int
	AmountObserved  *big.Int
	ReserveInAfter  *big.Int
	ReserveOutAfter *big.Int
	TxHash          string
	BlockNumber     uint64
	Success         bool
	Error           string
	ExecutedAt      int64 // Unix ms
}

// ReproducibilityMetadata identifies the data a report was built from.
type ReproducibilityMetadata struct {
	DataVersion   string // short hash over contracts and swap records
	ReplayCommand string
}
