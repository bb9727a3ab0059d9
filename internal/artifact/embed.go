package artifact

import (
	"context"
	"embed"
	"fmt"

	"amm-lab/internal/domain"
)

//go:embed contracts/*.sol contracts/*.abi.json
var contractFS embed.FS

// Kinds lists the contract kinds shipped with the binary.
var Kinds = []domain.ContractKind{domain.ContractKindToken, domain.ContractKindPool}

// Source returns the embedded Solidity source for kind.
func Source(kind domain.ContractKind) ([]byte, error) {
	data, err := contractFS.ReadFile(fmt.Sprintf("contracts/%s.sol", kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, kind)
	}
	return data, nil
}

// EmbeddedABI returns the embedded ABI JSON for kind.
func EmbeddedABI(kind domain.ContractKind) ([]byte, error) {
	data, err := contractFS.ReadFile(fmt.Sprintf("contracts/%s.abi.json", kind))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, kind)
	}
	return data, nil
}

// EmbeddedProvider serves ABI-only artifacts from the binary.
// The artifacts carry no bytecode, so only ledgers that execute contracts
// natively (the simulated ledger) can deploy them.
type EmbeddedProvider struct{}

// Artifact implements Provider.
func (EmbeddedProvider) Artifact(_ context.Context, kind domain.ContractKind) (*domain.ContractArtifact, error) {
	abiJSON, err := EmbeddedABI(kind)
	if err != nil {
		return nil, err
	}
	return &domain.ContractArtifact{Kind: kind, ABI: abiJSON}, nil
}
