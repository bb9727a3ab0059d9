package swaploop

import "fmt"

// Policy decides what happens after a failed swap.
type Policy string

// Failure policies.
const (
	// PolicyFailFast stops at the first failed swap.
	PolicyFailFast Policy = "fail-fast"
	// PolicyContinue records the failure and keeps going.
	PolicyContinue Policy = "continue"
)

// ParsePolicy parses a policy name. Empty selects PolicyFailFast.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyFailFast:
		return PolicyFailFast, nil
	case PolicyContinue:
		return PolicyContinue, nil
	default:
		return "", fmt.Errorf("unknown swap policy %q (want %s or %s)", s, PolicyFailFast, PolicyContinue)
	}
}
