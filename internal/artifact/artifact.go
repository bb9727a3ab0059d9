// Package artifact produces compiled contract artifacts (ABI + creation bytecode).
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"amm-lab/internal/domain"
)

// ErrUnknownContract is returned when a provider has no artifact for a contract kind.
var ErrUnknownContract = errors.New("unknown contract")

// Provider supplies contract artifacts by kind.
type Provider interface {
	Artifact(ctx context.Context, kind domain.ContractKind) (*domain.ContractArtifact, error)
}

// Severity classifies a compiler diagnostic.
type Severity string

// Diagnostic severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one compiler message.
type Diagnostic struct {
	Severity Severity
	Type     string // e.g. ParserError, TypeError, Warning
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Type, d.Message)
}

// CompilationError is returned when the compiler rejects a source.
type CompilationError struct {
	Contract    domain.ContractKind
	Diagnostics []Diagnostic
	Err         error // underlying process error, if any
}

func (e *CompilationError) Error() string {
	var msgs []string
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			msgs = append(msgs, d.String())
		}
	}
	if len(msgs) == 0 && e.Err != nil {
		return fmt.Sprintf("compile %s: %v", e.Contract, e.Err)
	}
	return fmt.Sprintf("compile %s: %s", e.Contract, strings.Join(msgs, "; "))
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// hasErrors reports whether any diagnostic has error severity.
func hasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
