// Package simulated implements ledger.Ledger as an in-memory chain.
//
// Token and Pool contracts are executed natively: ERC20 balances and
// allowances with the transferFrom guard, and constant-product pool
// semantics through amm.Pool. Every submission is mined into its own block.
package simulated

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"

	"amm-lab/internal/amm"
	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
)

// DefaultAccount is the signing account used when none is configured.
var DefaultAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// DefaultChainID is the chain id reported by the simulated network.
const DefaultChainID = 31337

// DefaultConfirmTimeout bounds WaitForConfirmation.
const DefaultConfirmTimeout = 2 * time.Minute

// Submission describes a submitted transaction, as seen by hooks.
type Submission struct {
	Hash   common.Hash
	Nonce  uint64
	To     common.Address // zero for deployments
	Kind   domain.ContractKind
	Method string
	Args   []any
}

// Hooks inject failures and latency. All fields are optional.
type Hooks struct {
	// Revert returns a non-empty reason to make the submission revert.
	Revert func(s Submission) string

	// Stall returns true to withhold the confirmation; the wait times out.
	Stall func(s Submission) bool

	// ConfirmDelay delays the confirmation of a submission.
	ConfirmDelay func(s Submission) time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAccount sets the signing account.
func WithAccount(addr common.Address) Option {
	return func(l *Ledger) { l.account = addr }
}

// WithChainID sets the reported chain id.
func WithChainID(id int64) Option {
	return func(l *Ledger) { l.chainID = big.NewInt(id) }
}

// WithClock sets the clock used for delays and timeouts.
func WithClock(c clockwork.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithConfirmTimeout sets the confirmation timeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.confirmTimeout = d }
}

// WithHooks installs failure and latency hooks.
func WithHooks(h Hooks) Option {
	return func(l *Ledger) { l.hooks = h }
}

// WithNativeBalance funds addr with wei.
func WithNativeBalance(addr common.Address, wei *big.Int) Option {
	return func(l *Ledger) { l.native[addr] = new(big.Int).Set(wei) }
}

// Ledger is an in-memory chain with a single signing account.
type Ledger struct {
	mu sync.Mutex

	account        common.Address
	chainID        *big.Int
	clock          clockwork.Clock
	confirmTimeout time.Duration
	hooks          Hooks

	nonce  uint64
	block  uint64
	native map[common.Address]*big.Int
	tokens map[common.Address]*token
	pools  map[common.Address]*amm.Pool
	mined  map[common.Hash]*mined

	submissions []Submission
}

type mined struct {
	submission Submission
	receipt    ledger.Receipt
}

// Compile-time interface check.
var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty chain. The account starts with 10000 ether.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		account:        DefaultAccount,
		chainID:        big.NewInt(DefaultChainID),
		clock:          clockwork.NewRealClock(),
		confirmTimeout: DefaultConfirmTimeout,
		native:         make(map[common.Address]*big.Int),
		tokens:         make(map[common.Address]*token),
		pools:          make(map[common.Address]*amm.Pool),
		mined:          make(map[common.Hash]*mined),
	}
	for _, opt := range opts {
		opt(l)
	}
	if _, ok := l.native[l.account]; !ok {
		l.native[l.account] = new(big.Int).Mul(big.NewInt(10_000), big.NewInt(1e18))
	}
	return l
}

// Account implements ledger.Ledger.
func (l *Ledger) Account() common.Address {
	return l.account
}

// ChainID implements ledger.Ledger.
func (l *Ledger) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// NativeBalance implements ledger.Reader.
func (l *Ledger) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return balanceOf(l.native, addr), nil
}

// Submissions returns every transaction submitted so far, in order.
func (l *Ledger) Submissions() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Submission, len(l.submissions))
	copy(out, l.submissions)
	return out
}

// BlockNumber returns the latest mined block.
func (l *Ledger) BlockNumber() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.block
}

// Deploy implements ledger.Submitter.
func (l *Ledger) Deploy(ctx context.Context, artifact *domain.ContractArtifact, args ...any) (*ledger.PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed, err := ledger.ParseABI(artifact)
	if err != nil {
		return nil, err
	}
	input, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor: %w", artifact.Kind, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	addr := crypto.CreateAddress(l.account, l.nonce)
	data := make([]byte, 0, len(artifact.Bytecode)+len(input))
	data = append(append(data, artifact.Bytecode...), input...)
	sub := l.newSubmission(common.Address{}, artifact.Kind, ledger.MethodConstructor, args, data)

	reason := l.revertReason(sub)
	if reason == "" {
		reason = l.create(addr, artifact.Kind, args)
	}
	l.mine(sub, reason, len(input), addr)

	return &ledger.PendingTx{Hash: sub.Hash, Nonce: sub.Nonce, Method: ledger.MethodConstructor, ContractAddress: addr}, nil
}

// Transact implements ledger.Submitter.
func (l *Ledger) Transact(ctx context.Context, c ledger.Contract, method string, args ...any) (*ledger.PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ABI == nil {
		return nil, fmt.Errorf("contract %s has no abi", c.Address.Hex())
	}
	input, err := c.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.exists(c.Address) {
		return nil, fmt.Errorf("no contract at %s", c.Address.Hex())
	}

	sub := l.newSubmission(c.Address, c.Kind, method, args, input)
	reason := l.revertReason(sub)
	if reason == "" {
		reason = l.execute(c.Address, method, args)
	}
	l.mine(sub, reason, len(input), common.Address{})

	return &ledger.PendingTx{Hash: sub.Hash, Nonce: sub.Nonce, Method: method}, nil
}

// Call implements ledger.Reader.
func (l *Ledger) Call(ctx context.Context, c ledger.Contract, method string, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.ABI != nil {
		if _, err := c.ABI.Pack(method, args...); err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out, reason := l.view(c.Address, method, args)
	if reason != "" {
		return nil, fmt.Errorf("call %s: %w", method, &ledger.RevertError{Reason: reason})
	}
	return out, nil
}

// WaitForConfirmation implements ledger.Submitter.
func (l *Ledger) WaitForConfirmation(ctx context.Context, tx *ledger.PendingTx) (*ledger.Receipt, error) {
	l.mu.Lock()
	m, ok := l.mined[tx.Hash]
	l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", tx.Hash.Hex())
	}

	timeout := l.clock.After(l.confirmTimeout)

	if l.hooks.Stall != nil && l.hooks.Stall(m.submission) {
		select {
		case <-timeout:
			return nil, fmt.Errorf("tx %s: %w after %s", tx.Hash.Hex(), ledger.ErrTimedOut, l.confirmTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if l.hooks.ConfirmDelay != nil {
		if d := l.hooks.ConfirmDelay(m.submission); d > 0 {
			select {
			case <-l.clock.After(d):
			case <-timeout:
				return nil, fmt.Errorf("tx %s: %w after %s", tx.Hash.Hex(), ledger.ErrTimedOut, l.confirmTimeout)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	rcpt := m.receipt
	if !rcpt.Success {
		return &rcpt, &ledger.RevertError{TxHash: rcpt.TxHash, Reason: rcpt.RevertReason}
	}
	return &rcpt, nil
}

// newSubmission assigns the next nonce. Caller holds l.mu.
func (l *Ledger) newSubmission(to common.Address, kind domain.ContractKind, method string, args []any, data []byte) Submission {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], l.nonce)
	sub := Submission{
		Hash:   crypto.Keccak256Hash(l.account.Bytes(), n[:], to.Bytes(), data),
		Nonce:  l.nonce,
		To:     to,
		Kind:   kind,
		Method: method,
		Args:   args,
	}
	l.nonce++
	l.submissions = append(l.submissions, sub)
	return sub
}

func (l *Ledger) revertReason(sub Submission) string {
	if l.hooks.Revert == nil {
		return ""
	}
	return l.hooks.Revert(sub)
}

// mine records the receipt of sub in a new block. created is the address
// of a deployed contract and is only set on successful receipts.
// Caller holds l.mu.
func (l *Ledger) mine(sub Submission, reason string, inputLen int, created common.Address) {
	l.block++
	rcpt := ledger.Receipt{
		TxHash:       sub.Hash,
		BlockNumber:  l.block,
		GasUsed:      21_000 + 16*uint64(inputLen),
		Success:      reason == "",
		RevertReason: reason,
	}
	if rcpt.Success {
		rcpt.ContractAddress = created
	}
	l.mined[sub.Hash] = &mined{submission: sub, receipt: rcpt}
}

func (l *Ledger) exists(addr common.Address) bool {
	_, isToken := l.tokens[addr]
	_, isPool := l.pools[addr]
	return isToken || isPool
}

// create runs a constructor and returns a revert reason on failure.
func (l *Ledger) create(addr common.Address, kind domain.ContractKind, args []any) string {
	switch kind {
	case domain.ContractKindToken:
		if len(args) != 3 {
			return reasonBadArguments
		}
		name, _ := args[0].(string)
		symbol, _ := args[1].(string)
		supply, _ := args[2].(*big.Int)
		if supply == nil {
			return reasonBadArguments
		}
		l.tokens[addr] = newToken(name, symbol, l.account, supply)
		return ""
	case domain.ContractKindPool:
		if len(args) != 2 {
			return reasonBadArguments
		}
		a, _ := args[0].(common.Address)
		b, _ := args[1].(common.Address)
		p, err := amm.NewPool(a, b)
		if err != nil {
			return revertReason(err)
		}
		l.pools[addr] = p
		return ""
	default:
		return reasonUnknownMethod
	}
}
