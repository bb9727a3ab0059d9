// Package commands implements the ammlab command tree.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"amm-lab/internal/config"
	"amm-lab/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// app holds state shared by every command.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// newRootCmd builds the command tree.
func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "ammlab",
		Short: "Deploy a token pair and a constant-product pool, then exercise it",
		Long: `ammlab stands up two ERC20 tokens and a constant-product pool on an EVM
chain, funds the pool and runs a fixed number of swaps, recording balances
and reserves around each one.

Configuration (in order of priority):
  1. Command-line flags
  2. Environment variables (AMMLAB_RPC_URL, AMMLAB_PRIVATE_KEY, ...)
  3. Config file (--config, YAML)

Get started:
  $ ammlab run --simulate           # dry run on the in-memory chain
  $ ammlab quote --amount-in 100e18 --reserve-in 50000e18 --reserve-out 500e18`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML config file")
	if err := config.RegisterFlags(root.PersistentFlags(), a.v); err != nil {
		panic(err)
	}

	root.AddCommand(
		newRunCmd(a),
		newQuoteCmd(a),
		newCompileCmd(a),
		newReportCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ammlab version %s\n", Version)
			},
		},
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// load reads the configuration; offline commands skip the node credentials.
func (a *app) load(online bool) (*config.Config, error) {
	if online {
		return config.Load(a.v, a.cfgFile)
	}
	return config.LoadOffline(a.v, a.cfgFile)
}

// logger builds the process logger from cfg, writing to the command's stderr.
func (a *app) logger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log, nil
}
