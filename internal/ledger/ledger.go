// Package ledger defines the blockchain client the orchestrator depends on.
//
// Implementations live in subpackages: evm talks JSON-RPC to a real node,
// simulated keeps an in-memory chain for dry runs and tests.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/domain"
)

// Confirmation errors.
var (
	// ErrReverted is returned when a transaction was included but failed.
	ErrReverted = errors.New("transaction reverted")

	// ErrTimedOut is returned when no receipt was observed within the confirmation timeout.
	ErrTimedOut = errors.New("confirmation timed out")
)

// Reader performs read-only queries. Reads never submit transactions
// and may run concurrently.
type Reader interface {
	// NativeBalance returns the native coin balance of addr.
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)

	// Call executes a read-only contract method and returns its decoded outputs.
	Call(ctx context.Context, c Contract, method string, args ...any) ([]any, error)
}

// Submitter sends state-changing transactions from the ledger's single account.
// Submissions must be serialized by the caller: one transaction is confirmed
// before the next is submitted.
type Submitter interface {
	// Deploy submits a contract creation transaction.
	Deploy(ctx context.Context, artifact *domain.ContractArtifact, args ...any) (*PendingTx, error)

	// Transact submits a state-changing contract call.
	Transact(ctx context.Context, c Contract, method string, args ...any) (*PendingTx, error)

	// WaitForConfirmation blocks until tx is included. It fails with ErrReverted
	// (receipt is still returned) or ErrTimedOut.
	WaitForConfirmation(ctx context.Context, tx *PendingTx) (*Receipt, error)
}

// Ledger is the full blockchain client.
type Ledger interface {
	Reader
	Submitter

	// Account returns the signing account address.
	Account() common.Address

	// ChainID returns the network chain id.
	ChainID(ctx context.Context) (*big.Int, error)
}

// Contract binds an address to the interface description of its code.
type Contract struct {
	Address common.Address
	Kind    domain.ContractKind
	ABI     *abi.ABI
}

// NewContract parses the artifact ABI and binds it to addr.
func NewContract(addr common.Address, artifact *domain.ContractArtifact) (Contract, error) {
	parsed, err := ParseABI(artifact)
	if err != nil {
		return Contract{}, err
	}
	return Contract{Address: addr, Kind: artifact.Kind, ABI: parsed}, nil
}

// PendingTx is a submitted, not yet confirmed transaction.
type PendingTx struct {
	Hash   common.Hash
	Nonce  uint64
	Method string // "constructor" for deployments

	// ContractAddress is the address a deployment will occupy (CREATE rule).
	// It is advisory until the receipt confirms it.
	ContractAddress common.Address
}

// IsDeployment reports whether tx creates a contract.
func (p *PendingTx) IsDeployment() bool {
	return p.Method == MethodConstructor
}

// MethodConstructor marks deployment transactions.
const MethodConstructor = "constructor"

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	TxHash          common.Hash
	BlockNumber     uint64
	GasUsed         uint64
	ContractAddress common.Address // set for deployments
	Success         bool
	RevertReason    string
}

// RevertError reports a transaction that was included with a failed status.
type RevertError struct {
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	msg := ErrReverted.Error()
	if e.TxHash != (common.Hash{}) {
		msg += ": tx " + e.TxHash.Hex()
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets errors.Is match ErrReverted.
func (e *RevertError) Unwrap() error {
	return ErrReverted
}
