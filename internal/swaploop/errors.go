package swaploop

import (
	"fmt"

	"amm-lab/internal/domain"
)

// SwapExecutionError reports a swap that failed. Records holds the swaps
// that were recorded before the loop returned.
type SwapExecutionError struct {
	Index   int // 1-based index of the first failed swap
	Failed  int // number of failed swaps
	Err     error
	Records []domain.SwapRecord
}

func (e *SwapExecutionError) Error() string {
	if e.Failed > 1 {
		return fmt.Sprintf("swap #%d failed (%d failures total): %v", e.Index, e.Failed, e.Err)
	}
	return fmt.Sprintf("swap #%d failed: %v", e.Index, e.Err)
}

func (e *SwapExecutionError) Unwrap() error {
	return e.Err
}
