package reporting

import (
	"fmt"
	"math/big"
	"strings"
)

// RenderSwapsCSV renders swap rows as CSV string. Amounts are base units.
func RenderSwapsCSV(rows []SwapRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("swap_index,amount_in,amount_out_expected,amount_out_observed,")
	sb.WriteString("reserve_in_after,reserve_out_after,tx_hash,block_number,success,error,executed_at\n")

	// Rows
	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%s,%s,%d,%t,%s,%d\n",
			r.Index,
			amount(r.AmountIn),
			amount(r.AmountExpected),
			amount(r.AmountObserved),
			amount(r.ReserveInAfter),
			amount(r.ReserveOutAfter),
			r.TxHash,
			r.BlockNumber,
			r.Success,
			csvField(r.Error),
			r.ExecutedAt,
		))
	}

	return sb.String()
}

// RenderContractsCSV renders deployed contracts as CSV string.
func RenderContractsCSV(rows []ContractRow) string {
	var sb strings.Builder

	sb.WriteString("step,kind,address,tx_hash,block_number\n")
	for _, c := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%d\n", c.Step, c.Kind, c.Address, c.TxHash, c.BlockNumber))
	}

	return sb.String()
}

// amount renders nil as an empty field.
func amount(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// csvField quotes s when it contains a separator, quote or newline.
func csvField(s string) string {
	if !strings.ContainsAny(s, ",\"\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
