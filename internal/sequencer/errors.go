package sequencer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidPlan is returned by Validate for malformed step lists.
var ErrInvalidPlan = errors.New("invalid deployment plan")

// DeploymentError reports the step that aborted a plan. Steps confirmed
// before it are not rolled back; their addresses are listed in Confirmed.
type DeploymentError struct {
	Step      string
	Index     int // 0-based position in the plan
	Err       error
	Confirmed map[string]common.Address
}

func (e *DeploymentError) Error() string {
	msg := fmt.Sprintf("deployment step %q failed: %v", e.Step, e.Err)
	if len(e.Confirmed) == 0 {
		return msg
	}
	names := make([]string, 0, len(e.Confirmed))
	for name := range e.Confirmed {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + "=" + e.Confirmed[name].Hex()
	}
	return msg + " (confirmed: " + strings.Join(parts, ", ") + ")"
}

func (e *DeploymentError) Unwrap() error {
	return e.Err
}
