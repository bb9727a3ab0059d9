package reporting

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// tokenDecimals is the display precision of token amounts.
const tokenDecimals = 18

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Run %s\n\n", r.Run.RunID))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Run
	sb.WriteString("## Run\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Run.Status))
	sb.WriteString(fmt.Sprintf("| Chain ID | %d |\n", r.Run.ChainID))
	sb.WriteString(fmt.Sprintf("| Account | %s |\n", r.Run.Account))
	sb.WriteString(fmt.Sprintf("| Started | %s |\n", formatMillis(r.Run.StartedAt)))
	sb.WriteString(fmt.Sprintf("| Finished | %s |\n", formatMillis(r.Run.FinishedAt)))
	if r.Run.FailedStep != "" {
		sb.WriteString(fmt.Sprintf("| Failed Step | %s |\n", r.Run.FailedStep))
	}
	if r.Run.Error != "" {
		sb.WriteString(fmt.Sprintf("| Error | %s |\n", escapeCell(r.Run.Error)))
	}
	sb.WriteString("\n")

	// Contracts
	sb.WriteString("## Contracts\n\n")
	if len(r.Contracts) > 0 {
		sb.WriteString("| Step | Kind | Address | Tx | Block |\n")
		sb.WriteString("|------|------|---------|----|-------|\n")
		for _, c := range r.Contracts {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d |\n",
				c.Step, c.Kind, c.Address, c.TxHash, c.BlockNumber))
		}
	} else {
		sb.WriteString("No contracts deployed.\n")
	}
	sb.WriteString("\n")

	// Swap summary
	s := r.Swaps
	sb.WriteString("## Swap Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Requested | %d |\n", r.Run.SwapsRequested))
	sb.WriteString(fmt.Sprintf("| Succeeded | %d |\n", s.Succeeded))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", s.Failed))
	sb.WriteString(fmt.Sprintf("| Quote Mismatches | %d |\n", s.QuoteMisses))
	sb.WriteString(fmt.Sprintf("| Total In | %s |\n", formatUnits(s.TotalIn)))
	sb.WriteString(fmt.Sprintf("| Total Out | %s |\n", formatUnits(s.TotalOut)))
	sb.WriteString(fmt.Sprintf("| First Amount Out | %s |\n", formatUnits(s.FirstAmountOut)))
	sb.WriteString(fmt.Sprintf("| Last Amount Out | %s |\n", formatUnits(s.LastAmountOut)))
	sb.WriteString(fmt.Sprintf("| Reserves Before | %s / %s |\n", formatUnits(s.StartReserveIn), formatUnits(s.StartReserveOut)))
	sb.WriteString(fmt.Sprintf("| Reserves After | %s / %s |\n", formatUnits(s.EndReserveIn), formatUnits(s.EndReserveOut)))
	sb.WriteString("\n")

	// Swaps
	sb.WriteString("## Swaps\n\n")
	if len(r.SwapRows) > 0 {
		sb.WriteString("| # | Amount In | Expected | Observed | Reserve In | Reserve Out | Status |\n")
		sb.WriteString("|---|-----------|----------|----------|------------|-------------|--------|\n")
		for _, row := range r.SwapRows {
			status := "OK"
			if !row.Success {
				status = "FAILED: " + escapeCell(row.Error)
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s |\n",
				row.Index,
				formatUnits(row.AmountIn), formatUnits(row.AmountExpected), formatUnits(row.AmountObserved),
				formatUnits(row.ReserveInAfter), formatUnits(row.ReserveOutAfter),
				status))
		}
	} else {
		sb.WriteString("No swaps recorded.\n")
	}
	sb.WriteString("\n")

	// Reproducibility
	sb.WriteString("## Reproducibility\n\n")
	sb.WriteString(fmt.Sprintf("- Data version: `%s`\n", r.Reproducibility.DataVersion))
	sb.WriteString(fmt.Sprintf("- Regenerate: `%s`\n", r.Reproducibility.ReplayCommand))

	return sb.String()
}

// formatUnits renders a base-unit amount with tokenDecimals decimals,
// trailing zeros trimmed. Nil renders as "-".
func formatUnits(v *big.Int) string {
	if v == nil {
		return "-"
	}
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	if len(digits) <= tokenDecimals {
		digits = strings.Repeat("0", tokenDecimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-tokenDecimals]
	frac := strings.TrimRight(digits[len(digits)-tokenDecimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
