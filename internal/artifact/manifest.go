package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"amm-lab/internal/domain"
)

// Manifest maps contract kinds to Solidity source files.
//
//	contracts:
//	  Token: Token.sol
//	  Pool: Pool.sol
type Manifest struct {
	Contracts map[domain.ContractKind]string `yaml:"contracts"`
}

// ManifestFile is the manifest name looked up in a contracts directory.
const ManifestFile = "contracts.yaml"

// DefaultManifest maps every embedded kind to "<Kind>.sol".
func DefaultManifest() *Manifest {
	m := &Manifest{Contracts: make(map[domain.ContractKind]string, len(Kinds))}
	for _, k := range Kinds {
		m.Contracts[k] = string(k) + ".sol"
	}
	return m
}

// LoadManifest reads a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Contracts) == 0 {
		return nil, fmt.Errorf("manifest %s lists no contracts", path)
	}
	return &m, nil
}

// Compiler turns source text into an artifact.
type Compiler interface {
	Compile(ctx context.Context, kind domain.ContractKind, source []byte) (*domain.ContractArtifact, []Diagnostic, error)
}

// SourceProvider compiles contract sources on demand and caches the result
// so each kind is compiled at most once.
type SourceProvider struct {
	compiler Compiler
	manifest *Manifest
	dir      string // empty: use embedded sources

	mu    sync.Mutex
	cache map[domain.ContractKind]*domain.ContractArtifact
}

// NewSourceProvider creates a provider reading sources from dir.
// When dir is empty the embedded sources are compiled. When dir holds a
// contracts.yaml it overrides the default manifest.
func NewSourceProvider(compiler Compiler, dir string) (*SourceProvider, error) {
	manifest := DefaultManifest()
	if dir != "" {
		path := filepath.Join(dir, ManifestFile)
		if _, err := os.Stat(path); err == nil {
			m, err := LoadManifest(path)
			if err != nil {
				return nil, err
			}
			manifest = m
		}
	}
	return &SourceProvider{
		compiler: compiler,
		manifest: manifest,
		dir:      dir,
		cache:    make(map[domain.ContractKind]*domain.ContractArtifact),
	}, nil
}

// Artifact implements Provider.
func (p *SourceProvider) Artifact(ctx context.Context, kind domain.ContractKind) (*domain.ContractArtifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.cache[kind]; ok {
		return a, nil
	}

	source, err := p.source(kind)
	if err != nil {
		return nil, err
	}
	a, _, err := p.compiler.Compile(ctx, kind, source)
	if err != nil {
		return nil, err
	}
	p.cache[kind] = a
	return a, nil
}

func (p *SourceProvider) source(kind domain.ContractKind) ([]byte, error) {
	if p.dir == "" {
		return Source(kind)
	}
	file, ok := p.manifest.Contracts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s not in manifest", ErrUnknownContract, kind)
	}
	data, err := os.ReadFile(filepath.Join(p.dir, file))
	if err != nil {
		return nil, fmt.Errorf("read %s source: %w", kind, err)
	}
	return data, nil
}
