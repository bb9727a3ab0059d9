package sequencer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
)

// ArgsFunc builds a step's arguments from the outputs of earlier steps.
type ArgsFunc func(out *Outputs) ([]any, error)

// StaticArgs returns an ArgsFunc with fixed arguments.
func StaticArgs(args ...any) ArgsFunc {
	return func(*Outputs) ([]any, error) { return args, nil }
}

// Step is one transaction of a plan.
type Step interface {
	// StepName is the unique name outputs are recorded under.
	StepName() string
	// Dependencies names earlier steps whose outputs this step reads.
	Dependencies() []string

	submit(ctx context.Context, l ledger.Submitter, out *Outputs) (*ledger.PendingTx, error)
	record(tx *ledger.PendingTx, rcpt *ledger.Receipt) (Output, error)
}

// Deploy creates a contract and records its address.
type Deploy struct {
	Name      string
	Artifact  *domain.ContractArtifact
	Args      ArgsFunc // nil: no constructor arguments
	DependsOn []string
}

// StepName implements Step.
func (d Deploy) StepName() string { return d.Name }

// Dependencies implements Step.
func (d Deploy) Dependencies() []string { return d.DependsOn }

func (d Deploy) submit(ctx context.Context, l ledger.Submitter, out *Outputs) (*ledger.PendingTx, error) {
	if d.Artifact == nil {
		return nil, fmt.Errorf("no artifact")
	}
	args, err := resolveArgs(d.Args, out)
	if err != nil {
		return nil, err
	}
	return l.Deploy(ctx, d.Artifact, args...)
}

func (d Deploy) record(tx *ledger.PendingTx, rcpt *ledger.Receipt) (Output, error) {
	addr := rcpt.ContractAddress
	if addr == (common.Address{}) {
		addr = tx.ContractAddress
	}
	if addr == (common.Address{}) {
		return Output{}, fmt.Errorf("receipt %s has no contract address", rcpt.TxHash.Hex())
	}
	c, err := ledger.NewContract(addr, d.Artifact)
	if err != nil {
		return Output{}, err
	}
	return Output{Contract: &c, Receipt: rcpt}, nil
}

// Call invokes a state-changing method on a contract deployed by an earlier step.
type Call struct {
	Name      string
	Target    string // name of the Deploy step that created the contract
	Method    string
	Args      ArgsFunc
	DependsOn []string
}

// StepName implements Step.
func (c Call) StepName() string { return c.Name }

// Dependencies implements Step. The target is always a dependency.
func (c Call) Dependencies() []string {
	return append([]string{c.Target}, c.DependsOn...)
}

func (c Call) submit(ctx context.Context, l ledger.Submitter, out *Outputs) (*ledger.PendingTx, error) {
	target, err := out.Contract(c.Target)
	if err != nil {
		return nil, err
	}
	args, err := resolveArgs(c.Args, out)
	if err != nil {
		return nil, err
	}
	return l.Transact(ctx, target, c.Method, args...)
}

func (c Call) record(_ *ledger.PendingTx, rcpt *ledger.Receipt) (Output, error) {
	return Output{Receipt: rcpt}, nil
}

func resolveArgs(fn ArgsFunc, out *Outputs) ([]any, error) {
	if fn == nil {
		return nil, nil
	}
	args, err := fn(out)
	if err != nil {
		return nil, fmt.Errorf("resolve arguments: %w", err)
	}
	return args, nil
}
