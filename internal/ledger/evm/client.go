// Package evm implements ledger.Ledger against an Ethereum JSON-RPC node.
//
// Transactions are legacy (EIP-155) transactions signed locally with a single
// account key. Submissions are serialized through a nonce manager; reads may
// run concurrently.
package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"amm-lab/internal/domain"
	"amm-lab/internal/ledger"
)

// Defaults for Config.
const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
	gasMarginPercent      = 20
)

// ErrInvalidKey is returned for a malformed signing key.
var ErrInvalidKey = errors.New("invalid private key")

// Config configures a Client.
type Config struct {
	PrivateKey     string // hex, optional 0x prefix
	ChainID        int64  // 0 queries the node
	GasLimit       uint64 // 0 estimates per transaction
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithClock sets the clock driving receipt polling and timeouts.
func WithClock(c clockwork.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.log = l.Named("evm") }
}

// WithHeads wakes confirmation waits on every new block number received.
func WithHeads(heads <-chan uint64) Option {
	return func(cl *Client) { cl.heads = heads }
}

// Client is a ledger.Ledger backed by a JSON-RPC node.
type Client struct {
	rpc  *RPCClient
	key  *ecdsa.PrivateKey
	from common.Address

	chainID *big.Int
	signer  types.Signer

	gasLimit       uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration

	nonces *nonceManager
	clock  clockwork.Clock
	heads  <-chan uint64
	log    *zap.Logger
}

// Compile-time interface check.
var _ ledger.Ledger = (*Client)(nil)

// ParsePrivateKey parses a hex secp256k1 key.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// NewClient creates a Client. When cfg.ChainID is zero the chain id is read
// from the node.
func NewClient(ctx context.Context, rpc *RPCClient, cfg Config, opts ...Option) (*Client, error) {
	key, err := ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		rpc:            rpc,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		gasLimit:       cfg.GasLimit,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
		clock:          clockwork.NewRealClock(),
		log:            zap.NewNop(),
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = DefaultConfirmTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.ChainID > 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	} else {
		id, err := rpc.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("query chain id: %w", err)
		}
		c.chainID = id
	}
	c.signer = types.NewEIP155Signer(c.chainID)
	c.nonces = &nonceManager{fetch: func(ctx context.Context) (uint64, error) {
		n, err := rpc.PendingNonceAt(ctx, c.from)
		if err != nil {
			return 0, fmt.Errorf("fetch nonce: %w", err)
		}
		return n, nil
	}}

	return c, nil
}

// Account implements ledger.Ledger.
func (c *Client) Account() common.Address {
	return c.from
}

// ChainID implements ledger.Ledger.
func (c *Client) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.chainID), nil
}

// NativeBalance implements ledger.Reader.
func (c *Client) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, addr)
}

// Call implements ledger.Reader.
func (c *Client) Call(ctx context.Context, ct ledger.Contract, method string, args ...any) ([]any, error) {
	if ct.ABI == nil {
		return nil, fmt.Errorf("contract %s has no abi", ct.Address.Hex())
	}
	input, err := ct.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := ct.Address
	data, err := c.rpc.CallContract(ctx, callMsg{From: c.from, To: &to, Data: input})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, asRevert(err))
	}
	out, err := ct.ABI.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// Deploy implements ledger.Submitter.
func (c *Client) Deploy(ctx context.Context, artifact *domain.ContractArtifact, args ...any) (*ledger.PendingTx, error) {
	if len(artifact.Bytecode) == 0 {
		return nil, fmt.Errorf("%s artifact has no bytecode", artifact.Kind)
	}
	parsed, err := ledger.ParseABI(artifact)
	if err != nil {
		return nil, err
	}
	input, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s constructor: %w", artifact.Kind, err)
	}
	data := make([]byte, 0, len(artifact.Bytecode)+len(input))
	data = append(append(data, artifact.Bytecode...), input...)
	return c.submit(ctx, nil, data, ledger.MethodConstructor)
}

// Transact implements ledger.Submitter.
func (c *Client) Transact(ctx context.Context, ct ledger.Contract, method string, args ...any) (*ledger.PendingTx, error) {
	if ct.ABI == nil {
		return nil, fmt.Errorf("contract %s has no abi", ct.Address.Hex())
	}
	input, err := ct.ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := ct.Address
	return c.submit(ctx, &to, input, method)
}

// submit signs and sends one transaction. The raw send is never retried.
func (c *Client) submit(ctx context.Context, to *common.Address, data []byte, method string) (*ledger.PendingTx, error) {
	nonce, release, err := c.nonces.acquire(ctx)
	if err != nil {
		return nil, err
	}
	accepted := false
	defer func() { release(accepted) }()

	gasPrice, err := c.rpc.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	gas := c.gasLimit
	if gas == 0 {
		est, err := c.rpc.EstimateGas(ctx, callMsg{From: c.from, To: to, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas for %s: %w", method, asRevert(err))
		}
		gas = est + est*gasMarginPercent/100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       to,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode tx: %w", err)
	}

	hash, err := c.rpc.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, asRevert(err))
	}
	accepted = true
	if hash != signed.Hash() {
		c.log.Warn("node returned unexpected tx hash", zap.String("want", signed.Hash().Hex()), zap.String("got", hash.Hex()))
	}

	pending := &ledger.PendingTx{Hash: signed.Hash(), Nonce: nonce, Method: method}
	if to == nil {
		pending.ContractAddress = crypto.CreateAddress(c.from, nonce)
	}
	c.log.Debug("transaction sent",
		zap.String("tx", pending.Hash.Hex()),
		zap.String("method", method),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return pending, nil
}

// asRevert converts an "execution reverted" RPC error into *ledger.RevertError.
func asRevert(err error) error {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	if rpcErr.Code != 3 && !strings.Contains(strings.ToLower(rpcErr.Message), "revert") {
		return err
	}
	reason := rpcErr.Message
	var hexData string
	if len(rpcErr.Data) > 0 && json.Unmarshal(rpcErr.Data, &hexData) == nil {
		if data, decErr := hexutil.Decode(hexData); decErr == nil {
			if r, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
				reason = r
			}
		}
	}
	return &ledger.RevertError{Reason: reason}
}
