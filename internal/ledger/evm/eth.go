package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// callMsg is the transaction object of eth_call and eth_estimateGas.
type callMsg struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to,omitempty"`
	Data hexutil.Bytes   `json:"data,omitempty"`
}

// rpcReceipt is the subset of eth_getTransactionReceipt we read.
type rpcReceipt struct {
	TransactionHash common.Hash     `json:"transactionHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	GasUsed         hexutil.Uint64  `json:"gasUsed"`
	Status          hexutil.Uint64  `json:"status"`
	ContractAddress *common.Address `json:"contractAddress"`
}

// ChainID returns eth_chainId.
func (c *RPCClient) ChainID(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.Call(ctx, "eth_chainId", nil, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// BlockNumber returns eth_blockNumber.
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// PendingNonceAt returns the account nonce including pending transactions.
func (c *RPCClient) PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, "eth_getTransactionCount", []any{addr, "pending"}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// BalanceAt returns the latest native balance of addr.
func (c *RPCClient) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	var result hexutil.Big
	if err := c.Call(ctx, "eth_getBalance", []any{addr, "latest"}, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// GasPrice returns eth_gasPrice.
func (c *RPCClient) GasPrice(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	if err := c.Call(ctx, "eth_gasPrice", nil, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// EstimateGas returns eth_estimateGas for msg.
func (c *RPCClient) EstimateGas(ctx context.Context, msg callMsg) (uint64, error) {
	var result hexutil.Uint64
	if err := c.Call(ctx, "eth_estimateGas", []any{msg}, &result); err != nil {
		return 0, err
	}
	return uint64(result), nil
}

// CallContract executes eth_call against the latest block.
func (c *RPCClient) CallContract(ctx context.Context, msg callMsg) ([]byte, error) {
	var result hexutil.Bytes
	if err := c.Call(ctx, "eth_call", []any{msg, "latest"}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendRawTransaction submits a signed transaction. Never retried.
func (c *RPCClient) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var result common.Hash
	if err := c.Send(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(raw)}, &result); err != nil {
		return common.Hash{}, err
	}
	return result, nil
}

// TransactionReceipt returns the receipt of hash, or nil while it is pending.
func (c *RPCClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*rpcReceipt, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, "eth_getTransactionReceipt", []any{hash}, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}
