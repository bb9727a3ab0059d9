package domain

import "github.com/ethereum/go-ethereum/common"

// ContractKind names a compiled contract type.
type ContractKind string

// Contract kinds deployed by the pipeline.
const (
	ContractKindToken ContractKind = "Token"
	ContractKindPool  ContractKind = "Pool"
)

// ContractArtifact is the compiler output for one contract kind.
// Immutable once produced.
type ContractArtifact struct {
	Kind     ContractKind
	ABI      []byte // JSON interface description
	Bytecode []byte // creation bytecode
}

// DeployedContract is a contract instance created by a confirmed deployment.
// Corresponds to deployed_contracts table in PostgreSQL.
type DeployedContract struct {
	DeploymentID string         // PRIMARY KEY, hash of (run_id, step, tx_hash)
	RunID        string         // FK to runs
	Step         string         // sequencer step that created it
	Kind         ContractKind   // Token | Pool
	Address      common.Address // assigned by the network on confirmation
	TxHash       common.Hash    // deployment transaction
	BlockNumber  uint64         // block the deployment was included in
	DeployedAt   int64          // Unix timestamp in milliseconds
}

// Allowance is a delegated spending permission recorded by a token contract.
type Allowance struct {
	Token   common.Address
	Owner   common.Address
	Spender common.Address
	Amount  string // decimal integer
}
