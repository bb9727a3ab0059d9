package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"amm-lab/internal/observability"
	"amm-lab/internal/reporting"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "List stored runs or regenerate the report of one run",
		Long: `report reads run history from PostgreSQL (--postgres-dsn).

Without --run-id it lists the most recent runs. With --run-id it rebuilds
the Markdown and CSV reports of that run into --report-dir.`,
		Example: `  ammlab report --postgres-dsn postgres://localhost/ammlab
  ammlab report --postgres-dsn postgres://localhost/ammlab --run-id 1f0c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load(false)
			if err != nil {
				return err
			}
			if cfg.PostgresDSN == "" {
				return errors.New("report requires --postgres-dsn")
			}
			log, err := a.logger(cmd, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var cl closers
			defer cl.close()

			// Analytics are write-only; only PostgreSQL is needed here.
			cfg.ClickhouseDSN = ""
			stores, err := openStores(cmd.Context(), cfg, observability.DefaultMetrics, log, &cl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if runID == "" {
				runs, err := stores.Runs.List(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list runs: %w", err)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN ID\tSTATUS\tSWAPS\tSTARTED\tFAILED STEP")
				for _, r := range runs {
					started := time.UnixMilli(r.StartedAt).UTC().Format(time.RFC3339)
					fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\n",
						r.RunID, r.Status, r.SwapsSucceeded, r.SwapsRequested, started, r.FailedStep)
				}
				return tw.Flush()
			}

			gen := reporting.NewGenerator(stores.Runs, stores.Deployments, stores.Swaps)
			rep, err := gen.Generate(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if cfg.ReportDir == "" {
				fmt.Fprint(out, reporting.RenderMarkdown(rep))
				return nil
			}
			paths, err := reporting.Write(cfg.ReportDir, rep)
			if err != nil {
				return err
			}
			observability.DefaultMetrics.ReportsGenerated.Inc()
			log.Info("report written", zap.String("run_id", runID), zap.Strings("paths", paths))
			for _, p := range paths {
				fmt.Fprintln(out, p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run to render (empty lists recent runs)")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}
