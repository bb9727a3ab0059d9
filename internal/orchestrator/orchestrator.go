// Package orchestrator runs the deployment-and-swap pipeline end to end.
// It coordinates: artifacts → deployment → liquidity → swap loop → summary
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"amm-lab/internal/amm"
	"amm-lab/internal/artifact"
	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
	"amm-lab/internal/names"
	"amm-lab/internal/observability"
	"amm-lab/internal/reporting"
	"amm-lab/internal/sequencer"
	"amm-lab/internal/storage"
	"amm-lab/internal/swaploop"
)

// Pipeline phase names, used as metric labels.
const (
	PhaseArtifacts = "artifacts"
	PhaseDeploy    = "deploy"
	PhaseSwaps     = "swaps"
	PhaseSummary   = "summary"
)

// Options for creating Orchestrator.
type Options struct {
	// Required collaborators
	Provider artifact.Provider
	Ledger   ledger.Ledger

	// Optional persistence; nil members are skipped
	Stores storage.Stores

	// Amounts in token base units
	TokenASupply *big.Int
	TokenBSupply *big.Int
	LiquidityA   *big.Int
	LiquidityB   *big.Int
	SwapAmount   *big.Int

	SwapCount    int
	SwapInterval time.Duration
	SwapPolicy   swaploop.Policy

	// StepTimeout bounds each deployment step. Zero defers to the ledger.
	StepTimeout time.Duration

	// ReportDir receives the run summary files. Empty skips writing them.
	ReportDir string

	Names   *names.Generator
	Metrics *observability.Metrics
	Logger  *zap.Logger

	// Injectable for deterministic tests
	NewRunID func() string
	Now      func() time.Time
}

// Orchestrator coordinates the pipeline execution.
type Orchestrator struct {
	opts    Options
	log     *zap.Logger
	metrics *observability.Metrics
	names   *names.Generator
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SwapPolicy == "" {
		opts.SwapPolicy = swaploop.PolicyFailFast
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = observability.DefaultMetrics
	}
	gen := opts.Names
	if gen == nil {
		gen = names.New(uint64(opts.Now().UnixNano()))
	}

	return &Orchestrator{
		opts:    opts,
		log:     log.Named("orchestrator"),
		metrics: m,
		names:   gen,
	}
}

// RunResult contains results from orchestrator execution. On failure it
// holds everything confirmed before the failing operation.
type RunResult struct {
	RunID  string
	Status domain.RunStatus

	TokenA common.Address
	TokenB common.Address
	Pool   common.Address

	// Addresses of every confirmed deployment step
	Addresses map[string]common.Address

	Liquidity     amm.Reserves
	Records       []domain.SwapRecord // every recorded swap, failed ones included
	FinalReserves amm.Reserves

	Report      *reporting.Report
	ReportPaths []string

	Err error
}

// SwapsSucceeded counts the successful swap records.
func (r *RunResult) SwapsSucceeded() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Success {
			n++
		}
	}
	return n
}

// Run executes the full pipeline.
// Phases:
//  1. Obtain contract artifacts
//  2. Deploy tokens and pool, fund the pool, approve swap volume
//  3. Run the swap loop
//  4. Read final reserves, persist and summarize
//
// The first fatal error ends the run. Confirmed transactions are never rolled back.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     o.opts.NewRunID(),
		Addresses: map[string]common.Address{},
		Liquidity: amm.Reserves{A: o.opts.LiquidityA, B: o.opts.LiquidityB},
	}
	log := o.log.With(zap.String("run_id", result.RunID))

	run, err := o.startRun(ctx, result.RunID)
	if err != nil {
		return nil, err
	}
	log.Info("run started",
		zap.Int64("chain_id", run.ChainID),
		zap.String("account", run.Account),
		zap.Int("swaps", o.opts.SwapCount))

	rec := newRecorder(o, result.RunID)
	err = o.execute(ctx, log, result, rec)
	result.Err = err

	// Finalization must survive a cancelled run context.
	finalCtx := context.WithoutCancel(ctx)
	if sumErr := o.summarize(finalCtx, log, run, result, rec, err); sumErr != nil {
		log.Error("summary failed", zap.Error(sumErr))
		if err == nil {
			err = sumErr
			result.Err = err
		}
	}

	if err != nil {
		log.Error("run failed", zap.String("status", string(result.Status)), zap.Error(err))
		return result, err
	}
	o.metrics.MarkRunSucceeded(o.opts.Now())
	log.Info("run completed",
		zap.Int("swaps_succeeded", result.SwapsSucceeded()),
		zap.Stringer("final_reserves", result.FinalReserves))
	return result, nil
}

// execute runs phases 1-3.
func (o *Orchestrator) execute(ctx context.Context, log *zap.Logger, result *RunResult, rec *recorder) error {
	// Phase 1: Artifacts
	log.Info("phase 1: obtaining contract artifacts")
	var tokenArt, poolArt *domain.ContractArtifact
	err := o.phase(PhaseArtifacts, func() error {
		var err error
		if tokenArt, err = o.opts.Provider.Artifact(ctx, domain.ContractKindToken); err != nil {
			return err
		}
		poolArt, err = o.opts.Provider.Artifact(ctx, domain.ContractKindPool)
		return err
	})
	if err != nil {
		return fmt.Errorf("phase 1 (artifacts) failed: %w", err)
	}

	// Phase 2: Deployment
	tokenA, tokenB := o.names.Pair()
	log.Info("phase 2: deploying contracts",
		zap.String("token_a", tokenA.Symbol),
		zap.String("token_b", tokenB.Symbol))

	plan := o.plan(tokenArt, poolArt, tokenA, tokenB)
	rec.setPlan(plan)
	seq := sequencer.New(sequencer.Options{
		Ledger:      o.opts.Ledger,
		StepTimeout: o.opts.StepTimeout,
		Observer:    rec,
		Logger:      log,
	})

	var outputs *sequencer.Outputs
	err = o.phase(PhaseDeploy, func() error {
		var err error
		outputs, err = seq.Run(ctx, plan)
		return err
	})
	if outputs != nil {
		for step, addr := range outputs.Addresses() {
			result.Addresses[step] = addr
		}
		result.TokenA = result.Addresses[StepTokenA]
		result.TokenB = result.Addresses[StepTokenB]
		result.Pool = result.Addresses[StepPool]
		rec.deployed(outputs)
	}
	if err != nil {
		return fmt.Errorf("phase 2 (deploy) failed: %w", err)
	}

	poolC, _ := outputs.Contract(StepPool)
	tokenAC, _ := outputs.Contract(StepTokenA)
	tokenBC, _ := outputs.Contract(StepTokenB)
	log.Info("  pool funded",
		zap.String("pool", poolC.Address.Hex()),
		zap.Stringer("liquidity", result.Liquidity))

	// Phase 3: Swap loop
	log.Info("phase 3: running swap loop",
		zap.Int("count", o.opts.SwapCount),
		zap.String("policy", string(o.opts.SwapPolicy)))

	driver := swaploop.New(swaploop.Options{
		Ledger:   o.opts.Ledger,
		Interval: o.opts.SwapInterval,
		Policy:   o.opts.SwapPolicy,
		OnRecord: rec.swapRecorded,
		Logger:   log,
		Now:      o.opts.Now,
	})
	rec.startSwaps()
	err = o.phase(PhaseSwaps, func() error {
		_, err := driver.Run(ctx, swaploop.Request{
			RunID:         result.RunID,
			Pool:          poolC,
			TokenIn:       tokenAC,
			TokenOut:      tokenBC,
			AmountPerSwap: o.opts.SwapAmount,
			Count:         o.opts.SwapCount,
		})
		return err
	})
	result.Records = rec.records()
	if err != nil {
		return fmt.Errorf("phase 3 (swaps) failed: %w", err)
	}
	log.Info("  swaps completed", zap.Int("count", len(result.Records)))
	return nil
}

// summarize is phase 4: final reserves, run status, persistence and report.
func (o *Orchestrator) summarize(ctx context.Context, log *zap.Logger, run *domain.Run, result *RunResult, rec *recorder, runErr error) error {
	log.Info("phase 4: summarizing run")
	start := time.Now()

	result.Status, run.FailedStep = classify(runErr)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	run.Status = result.Status
	run.SwapsSucceeded = result.SwapsSucceeded()
	run.FinishedAt = o.opts.Now().UnixMilli()

	var errs []error
	if result.Pool != (common.Address{}) {
		pool, err := rec.contract(StepPool)
		if err == nil {
			result.FinalReserves, err = ledger.PoolReserves(ctx, o.opts.Ledger, pool)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("read final reserves: %w", err))
		}
	}

	if err := rec.persist(ctx, run); err != nil {
		errs = append(errs, err)
	}

	result.Report = reporting.Build(o.opts.Now().UTC(), run, rec.contracts(), rec.recordPointers())
	if o.opts.ReportDir != "" {
		paths, err := reporting.Write(o.opts.ReportDir, result.Report)
		result.ReportPaths = paths
		if err != nil {
			errs = append(errs, err)
		} else {
			o.metrics.ReportsGenerated.Inc()
			log.Info("  report written", zap.Strings("files", paths))
		}
	}

	err := errors.Join(errs...)
	o.metrics.RecordPipelinePhase(PhaseSummary, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("phase 4 (summary) failed: %w", err)
	}
	return nil
}

// startRun reads the chain identity and records the run as running.
func (o *Orchestrator) startRun(ctx context.Context, runID string) (*domain.Run, error) {
	chainID, err := o.opts.Ledger.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	run := &domain.Run{
		RunID:          runID,
		ChainID:        chainID.Int64(),
		Account:        o.opts.Ledger.Account().Hex(),
		Status:         domain.RunStatusRunning,
		SwapsRequested: o.opts.SwapCount,
		StartedAt:      o.opts.Now().UnixMilli(),
	}
	if o.opts.Stores.Runs != nil {
		if err := o.opts.Stores.Runs.Insert(ctx, run); err != nil {
			return nil, fmt.Errorf("insert run: %w", err)
		}
	}
	return run, nil
}

// phase times fn and records it under name.
func (o *Orchestrator) phase(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	o.metrics.RecordPipelinePhase(name, time.Since(start), err)
	return err
}

// classify maps a run error to its terminal status and failed step.
func classify(err error) (domain.RunStatus, string) {
	if err == nil {
		return domain.RunStatusSucceeded, ""
	}
	var swapErr *swaploop.SwapExecutionError
	if errors.As(err, &swapErr) {
		return domain.RunStatusPartial, fmt.Sprintf("swap #%d", swapErr.Index)
	}
	var depErr *sequencer.DeploymentError
	if errors.As(err, &depErr) {
		return domain.RunStatusFailed, depErr.Step
	}
	return domain.RunStatusFailed, ""
}

func (o *Orchestrator) validate() error {
	if o.opts.Provider == nil {
		return errors.New("orchestrator: no artifact provider")
	}
	if o.opts.Ledger == nil {
		return errors.New("orchestrator: no ledger")
	}
	amounts := []struct {
		name string
		v    *big.Int
	}{
		{"token A supply", o.opts.TokenASupply},
		{"token B supply", o.opts.TokenBSupply},
		{"liquidity A", o.opts.LiquidityA},
		{"liquidity B", o.opts.LiquidityB},
		{"swap amount", o.opts.SwapAmount},
	}
	for _, a := range amounts {
		if a.v == nil || a.v.Sign() <= 0 {
			return fmt.Errorf("orchestrator: %s: %w", a.name, amm.ErrInvalidAmount)
		}
	}
	if o.opts.LiquidityA.Cmp(o.opts.TokenASupply) > 0 || o.opts.LiquidityB.Cmp(o.opts.TokenBSupply) > 0 {
		return errors.New("orchestrator: liquidity exceeds token supply")
	}
	if o.opts.SwapCount < 0 {
		return fmt.Errorf("orchestrator: negative swap count %d", o.opts.SwapCount)
	}
	return nil
}
