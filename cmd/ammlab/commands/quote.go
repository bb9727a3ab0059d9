package commands

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"amm-lab/internal/amm"
	"amm-lab/internal/config"
)

type quoteFlags struct {
	amountIn   string
	reserveIn  string
	reserveOut string
	feeNum     uint64
	feeDen     uint64
	swaps      int
}

func newQuoteCmd(_ *app) *cobra.Command {
	var f quoteFlags

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a swap against given reserves without touching a chain",
		Long: `quote applies the constant-product formula with the pool fee:

  amountInWithFee = floor(amountIn * feeNum / feeDen)
  amountOut       = floor(amountInWithFee * reserveOut / (reserveIn + amountInWithFee))

With --swaps N the quote is repeated N times, each swap moving the reserves.`,
		Example: `  ammlab quote --amount-in 100e18 --reserve-in 50000e18 --reserve-out 500e18
  ammlab quote --amount-in 100e18 --reserve-in 50000e18 --reserve-out 500e18 --swaps 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuote(cmd, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.amountIn, "amount-in", "", "input amount in base units (required)")
	fs.StringVar(&f.reserveIn, "reserve-in", "", "reserve of the input token (required)")
	fs.StringVar(&f.reserveOut, "reserve-out", "", "reserve of the output token (required)")
	fs.Uint64Var(&f.feeNum, "fee-num", amm.DefaultFee.Numerator, "fee numerator")
	fs.Uint64Var(&f.feeDen, "fee-den", amm.DefaultFee.Denominator, "fee denominator")
	fs.IntVar(&f.swaps, "swaps", 1, "number of consecutive swaps to simulate")
	for _, name := range []string{"amount-in", "reserve-in", "reserve-out"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runQuote(cmd *cobra.Command, f quoteFlags) error {
	amounts := make([]*big.Int, 3)
	for i, raw := range []struct{ name, value string }{
		{"amount-in", f.amountIn},
		{"reserve-in", f.reserveIn},
		{"reserve-out", f.reserveOut},
	} {
		v, err := config.ParseAmount(raw.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", raw.name, err)
		}
		amounts[i] = v
	}
	if f.swaps < 1 {
		return fmt.Errorf("--swaps must be at least 1")
	}

	fee := amm.Fee{Numerator: f.feeNum, Denominator: f.feeDen}
	amountIn, reserveIn, reserveOut := amounts[0], amounts[1], amounts[2]
	out := cmd.OutOrStdout()

	for i := 1; i <= f.swaps; i++ {
		amountOut, err := amm.QuoteWithFee(amountIn, reserveIn, reserveOut, fee)
		if err != nil {
			return fmt.Errorf("swap %d: %w", i, err)
		}
		reserveIn = new(big.Int).Add(reserveIn, amountIn)
		reserveOut = new(big.Int).Sub(reserveOut, amountOut)

		if f.swaps == 1 {
			fmt.Fprintln(out, amountOut)
			return nil
		}
		fmt.Fprintf(out, "#%d out=%s reserves=(%s, %s)\n", i, amountOut, reserveIn, reserveOut)
	}
	return nil
}
