package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/amm"
)

// Token and pool contract methods used by the pipeline.
const (
	MethodApprove      = "approve"
	MethodBalanceOf    = "balanceOf"
	MethodAllowance    = "allowance"
	MethodAddLiquidity = "addLiquidity"
	MethodSwap         = "swap"
	MethodGetReserves  = "getReserves"
	MethodGetAmountOut = "getAmountOut"
)

// TokenBalance reads an ERC20 balance.
func TokenBalance(ctx context.Context, r Reader, token Contract, owner common.Address) (*big.Int, error) {
	out, err := r.Call(ctx, token, MethodBalanceOf, owner)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", owner.Hex(), err)
	}
	return firstBig(out, MethodBalanceOf)
}

// TokenAllowance reads an ERC20 allowance.
func TokenAllowance(ctx context.Context, r Reader, token Contract, owner, spender common.Address) (*big.Int, error) {
	out, err := r.Call(ctx, token, MethodAllowance, owner, spender)
	if err != nil {
		return nil, fmt.Errorf("allowance %s->%s: %w", owner.Hex(), spender.Hex(), err)
	}
	return firstBig(out, MethodAllowance)
}

// PoolReserves reads the current (reserveA, reserveB) of a pool.
func PoolReserves(ctx context.Context, r Reader, pool Contract) (amm.Reserves, error) {
	out, err := r.Call(ctx, pool, MethodGetReserves)
	if err != nil {
		return amm.Reserves{}, fmt.Errorf("getReserves: %w", err)
	}
	if len(out) != 2 {
		return amm.Reserves{}, fmt.Errorf("getReserves: expected 2 outputs, got %d", len(out))
	}
	a, okA := out[0].(*big.Int)
	b, okB := out[1].(*big.Int)
	if !okA || !okB {
		return amm.Reserves{}, fmt.Errorf("getReserves: unexpected output types %T, %T", out[0], out[1])
	}
	return amm.Reserves{A: a, B: b}, nil
}

// AmountOut asks the pool for the output of a swap without executing it.
func AmountOut(ctx context.Context, r Reader, pool Contract, tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	out, err := r.Call(ctx, pool, MethodGetAmountOut, tokenIn, amountIn)
	if err != nil {
		return nil, fmt.Errorf("getAmountOut: %w", err)
	}
	return firstBig(out, MethodGetAmountOut)
}

func firstBig(out []any, method string) (*big.Int, error) {
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty output", method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}

// PoolTokens reads the (tokenA, tokenB) pair of a pool.
func PoolTokens(ctx context.Context, r Reader, pool Contract) (common.Address, common.Address, error) {
	var pair [2]common.Address
	for i, method := range []string{"tokenA", "tokenB"} {
		out, err := r.Call(ctx, pool, method)
		if err != nil {
			return common.Address{}, common.Address{}, fmt.Errorf("%s: %w", method, err)
		}
		if len(out) == 0 {
			return common.Address{}, common.Address{}, fmt.Errorf("%s: empty output", method)
		}
		addr, ok := out[0].(common.Address)
		if !ok {
			return common.Address{}, common.Address{}, fmt.Errorf("%s: unexpected output type %T", method, out[0])
		}
		pair[i] = addr
	}
	return pair[0], pair[1], nil
}
