package ledger

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"amm-lab/internal/domain"
)

// ParseABI parses the JSON interface description of an artifact.
func ParseABI(artifact *domain.ContractArtifact) (*abi.ABI, error) {
	if artifact == nil || len(artifact.ABI) == 0 {
		return nil, fmt.Errorf("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return nil, fmt.Errorf("parse %s abi: %w", artifact.Kind, err)
	}
	return &parsed, nil
}
