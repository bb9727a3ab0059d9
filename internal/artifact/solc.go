package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"amm-lab/internal/domain"
)

// DefaultSolcPath is the compiler binary looked up on PATH.
const DefaultSolcPath = "solc"

// runFunc executes a command with stdin and returns stdout and stderr.
type runFunc func(ctx context.Context, path string, args []string, stdin []byte) ([]byte, []byte, error)

// SolcCompiler compiles Solidity source with the solc binary.
type SolcCompiler struct {
	path string
	run  runFunc
}

// NewSolcCompiler creates a compiler using the solc binary at path.
func NewSolcCompiler(path string) *SolcCompiler {
	if path == "" {
		path = DefaultSolcPath
	}
	return &SolcCompiler{path: path, run: execRun}
}

func execRun(ctx context.Context, path string, args []string, stdin []byte) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// combinedOutput is the subset of `solc --combined-json abi,bin` we read.
type combinedOutput struct {
	Contracts map[string]struct {
		ABI json.RawMessage `json:"abi"`
		Bin string          `json:"bin"`
	} `json:"contracts"`
	Version string `json:"version"`
}

// Compile compiles source and extracts the contract named kind.
// Any error-severity diagnostic yields *CompilationError.
func (c *SolcCompiler) Compile(ctx context.Context, kind domain.ContractKind, source []byte) (*domain.ContractArtifact, []Diagnostic, error) {
	stdout, stderr, runErr := c.run(ctx, c.path, []string{"--combined-json", "abi,bin", "-"}, source)
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	diags := ParseDiagnostics(string(stderr))
	if runErr != nil || hasErrors(diags) {
		return nil, diags, &CompilationError{Contract: kind, Diagnostics: diags, Err: runErr}
	}

	var out combinedOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, diags, &CompilationError{Contract: kind, Diagnostics: diags, Err: fmt.Errorf("decode solc output: %w", err)}
	}

	for key, entry := range out.Contracts {
		// Keys look like "<stdin>:Token".
		if key[strings.LastIndex(key, ":")+1:] != string(kind) {
			continue
		}
		abiJSON, err := normalizeABI(entry.ABI)
		if err != nil {
			return nil, diags, &CompilationError{Contract: kind, Diagnostics: diags, Err: err}
		}
		bin, err := hexutil.Decode(ensure0x(entry.Bin))
		if err != nil {
			return nil, diags, &CompilationError{Contract: kind, Diagnostics: diags, Err: fmt.Errorf("decode bytecode: %w", err)}
		}
		if len(bin) == 0 {
			return nil, diags, &CompilationError{Contract: kind, Diagnostics: diags, Err: fmt.Errorf("contract %s has no bytecode (abstract?)", kind)}
		}
		return &domain.ContractArtifact{Kind: kind, ABI: abiJSON, Bytecode: bin}, diags, nil
	}
	return nil, diags, &CompilationError{Contract: kind, Diagnostics: diags, Err: fmt.Errorf("%w: %s not in compiler output", ErrUnknownContract, kind)}
}

// normalizeABI accepts both the array form and the string-encoded form older solc emits.
func normalizeABI(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("decode abi string: %w", err)
		}
		return []byte(s), nil
	}
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty abi")
	}
	return trimmed, nil
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

// ParseDiagnostics splits solc stderr into diagnostics.
// Each diagnostic starts with a "<Type>: <message>" header line.
func ParseDiagnostics(stderr string) []Diagnostic {
	var diags []Diagnostic
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimRight(line, "\r")
		typ, msg, ok := strings.Cut(line, ": ")
		if !ok || typ == "" || strings.ContainsAny(typ, " \t-|") {
			continue
		}
		var sev Severity
		switch {
		case typ == "Warning":
			sev = SeverityWarning
		case typ == "Info":
			sev = SeverityInfo
		case strings.HasSuffix(typ, "Error") || strings.HasSuffix(typ, "Exception"):
			sev = SeverityError
		default:
			continue
		}
		diags = append(diags, Diagnostic{Severity: sev, Type: typ, Message: strings.TrimSpace(msg)})
	}
	return diags
}
