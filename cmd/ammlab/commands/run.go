package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amm-lab/internal/names"
	"amm-lab/internal/observability"
	"amm-lab/internal/orchestrator"
	"amm-lab/internal/swaploop"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Deploy tokens and pool, add liquidity and run the swap loop",
		Long: `run executes the whole pipeline: obtain artifacts, deploy token A, token B
and the pool, approve and add liquidity, approve the swap volume and run the
swap loop. The first failure stops the run; confirmed transactions are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd)
		},
	}
}

func (a *app) run(cmd *cobra.Command) error {
	cfg, err := a.load(true)
	if err != nil {
		return err
	}
	log, err := a.logger(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()
	m := observability.DefaultMetrics

	var cl closers
	defer cl.close()

	var healthy atomic.Bool
	healthy.Store(true)
	if cfg.MetricsAddr != "" {
		stop := startMetricsServer(cfg.MetricsAddr, func() error {
			if !healthy.Load() {
				return errors.New("run failed")
			}
			return nil
		}, log)
		cl.add(stop)
	}

	policy, err := swaploop.ParsePolicy(cfg.SwapPolicy)
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	l, err := newLedger(ctx, cfg, m, log, &cl)
	if err != nil {
		return err
	}
	stores, err := openStores(ctx, cfg, m, log, &cl)
	if err != nil {
		return err
	}

	seed := uint64(cfg.NameSeed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	orch := orchestrator.New(orchestrator.Options{
		Provider:     provider,
		Ledger:       l,
		Stores:       stores,
		TokenASupply: cfg.Amounts.TokenASupply,
		TokenBSupply: cfg.Amounts.TokenBSupply,
		LiquidityA:   cfg.Amounts.LiquidityA,
		LiquidityB:   cfg.Amounts.LiquidityB,
		SwapAmount:   cfg.Amounts.SwapAmount,
		SwapCount:    cfg.SwapCount,
		SwapInterval: cfg.SwapInterval,
		SwapPolicy:   policy,
		StepTimeout:  cfg.ConfirmTimeout,
		ReportDir:    cfg.ReportDir,
		Names:        names.New(seed),
		Metrics:      m,
		Logger:       log,
	})

	result, err := orch.Run(ctx)
	if result != nil {
		printResult(cmd.OutOrStdout(), result)
	}
	if err != nil {
		healthy.Store(false)
		log.Debug("run error chain", zap.Error(err))
		return err
	}
	return nil
}

// printResult writes a human-readable run summary.
func printResult(w io.Writer, r *orchestrator.RunResult) {
	fmt.Fprintf(w, "run:       %s (%s)\n", r.RunID, r.Status)

	steps := make([]string, 0, len(r.Addresses))
	for step := range r.Addresses {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	for _, step := range steps {
		fmt.Fprintf(w, "%-10s %s\n", step+":", r.Addresses[step].Hex())
	}

	fmt.Fprintf(w, "liquidity: %s\n", r.Liquidity)
	fmt.Fprintf(w, "swaps:     %d/%d succeeded\n", r.SwapsSucceeded(), len(r.Records))
	for _, rec := range r.Records {
		if rec.Success {
			fmt.Fprintf(w, "  #%-3d in=%s out=%s\n", rec.Index, rec.AmountIn, rec.AmountOutObserved())
		} else {
			fmt.Fprintf(w, "  #%-3d FAILED: %s\n", rec.Index, rec.Error)
		}
	}
	if r.FinalReserves.A != nil {
		fmt.Fprintf(w, "reserves:  %s\n", r.FinalReserves)
	}
	for _, p := range r.ReportPaths {
		fmt.Fprintf(w, "report:    %s\n", p)
	}
}
