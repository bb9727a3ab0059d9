package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"amm-lab/internal/domain"
)

// FileProvider loads prebuilt artifacts from a directory.
// Hardhat ("<Kind>.json", bytecode string) and Foundry
// ("<Kind>.sol/<Kind>.json", bytecode object) layouts are recognized.
type FileProvider struct {
	Dir string
}

// fileArtifact covers both layouts; Bytecode is either a string or {"object": "0x.."}.
type fileArtifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

// Artifact implements Provider.
func (p *FileProvider) Artifact(_ context.Context, kind domain.ContractKind) (*domain.ContractArtifact, error) {
	candidates := []string{
		filepath.Join(p.Dir, string(kind)+".json"),
		filepath.Join(p.Dir, string(kind)+".sol", string(kind)+".json"),
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read artifact %s: %w", path, err)
		}
		return parseFileArtifact(kind, data)
	}
	return nil, fmt.Errorf("%w: %s not found in %s", ErrUnknownContract, kind, p.Dir)
}

func parseFileArtifact(kind domain.ContractKind, data []byte) (*domain.ContractArtifact, error) {
	var fa fileArtifact
	if err := json.Unmarshal(data, &fa); err != nil {
		return nil, fmt.Errorf("decode %s artifact: %w", kind, err)
	}
	if len(fa.ABI) == 0 {
		return nil, fmt.Errorf("%s artifact has no abi", kind)
	}

	var hexCode string
	if err := json.Unmarshal(fa.Bytecode, &hexCode); err != nil {
		var obj struct {
			Object string `json:"object"`
		}
		if err := json.Unmarshal(fa.Bytecode, &obj); err != nil {
			return nil, fmt.Errorf("decode %s bytecode: %w", kind, err)
		}
		hexCode = obj.Object
	}
	code, err := hexutil.Decode(ensure0x(hexCode))
	if err != nil {
		return nil, fmt.Errorf("decode %s bytecode: %w", kind, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%s artifact has empty bytecode", kind)
	}
	return &domain.ContractArtifact{Kind: kind, ABI: fa.ABI, Bytecode: code}, nil
}
