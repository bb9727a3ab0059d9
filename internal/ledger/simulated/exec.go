package simulated

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"amm-lab/internal/amm"
	"amm-lab/internal/ledger"
)

const (
	reasonBadArguments   = "BadArguments"
	reasonUnknownMethod  = "UnknownMethod"
	reasonNoContract     = "NoContract"
	reasonInvalidAmount  = "InvalidAmount"
	reasonInsufficientLq = "InsufficientLiquidity"
	reasonInvalidToken   = "InvalidToken"
	reasonTransferFailed = "TransferFailed"
)

// revertReason maps pricing errors to the pool contract's revert strings.
func revertReason(err error) string {
	switch {
	case errors.Is(err, amm.ErrInvalidAmount):
		return reasonInvalidAmount
	case errors.Is(err, amm.ErrInsufficientLiquidity):
		return reasonInsufficientLq
	case errors.Is(err, amm.ErrInvalidToken):
		return reasonInvalidToken
	default:
		return err.Error()
	}
}

// execute applies a state-changing call from the ledger account.
// On a non-empty revert reason no state was changed.
func (l *Ledger) execute(addr common.Address, method string, args []any) string {
	if t, ok := l.tokens[addr]; ok {
		return l.executeToken(t, method, args)
	}
	if p, ok := l.pools[addr]; ok {
		return l.executePool(addr, p, method, args)
	}
	return reasonNoContract
}

func (l *Ledger) executeToken(t *token, method string, args []any) string {
	switch method {
	case ledger.MethodApprove:
		spender, amount, ok := addressAmount(args)
		if !ok {
			return reasonBadArguments
		}
		t.approve(l.account, spender, amount)
		return ""
	case "transfer":
		to, amount, ok := addressAmount(args)
		if !ok {
			return reasonBadArguments
		}
		return t.transfer(l.account, to, amount)
	case "transferFrom":
		if len(args) != 3 {
			return reasonBadArguments
		}
		from, ok1 := args[0].(common.Address)
		to, amount, ok2 := addressAmount(args[1:])
		if !ok1 || !ok2 {
			return reasonBadArguments
		}
		return t.transferFrom(l.account, from, to, amount)
	default:
		return reasonUnknownMethod
	}
}

func (l *Ledger) executePool(addr common.Address, p *amm.Pool, method string, args []any) string {
	switch method {
	case ledger.MethodAddLiquidity:
		if len(args) != 2 {
			return reasonBadArguments
		}
		amountA, okA := args[0].(*big.Int)
		amountB, okB := args[1].(*big.Int)
		if !okA || !okB {
			return reasonBadArguments
		}
		ta, tb := l.tokens[p.TokenA], l.tokens[p.TokenB]
		if ta == nil || tb == nil {
			return reasonTransferFailed
		}
		if r := ta.canTransferFrom(addr, l.account, amountA); r != "" {
			return r
		}
		if r := tb.canTransferFrom(addr, l.account, amountB); r != "" {
			return r
		}
		if err := p.AddLiquidity(amountA, amountB); err != nil {
			return revertReason(err)
		}
		ta.transferFrom(addr, l.account, addr, amountA)
		tb.transferFrom(addr, l.account, addr, amountB)
		return ""

	case ledger.MethodSwap:
		tokenIn, amountIn, ok := addressAmount(args)
		if !ok {
			return reasonBadArguments
		}
		tokenOut, err := p.Other(tokenIn)
		if err != nil {
			return revertReason(err)
		}
		tin, tout := l.tokens[tokenIn], l.tokens[tokenOut]
		if tin == nil || tout == nil {
			return reasonTransferFailed
		}
		out, err := p.AmountOut(tokenIn, amountIn)
		if err != nil {
			return revertReason(err)
		}
		if out.Sign() == 0 {
			return reasonInsufficientLq
		}
		if r := tin.canTransferFrom(addr, l.account, amountIn); r != "" {
			return r
		}
		if r := tout.canTransfer(addr, out); r != "" {
			return r
		}
		if _, err := p.Swap(tokenIn, amountIn); err != nil {
			return revertReason(err)
		}
		tin.transferFrom(addr, l.account, addr, amountIn)
		tout.transfer(addr, l.account, out)
		return ""

	default:
		return reasonUnknownMethod
	}
}

// view answers a read-only call.
func (l *Ledger) view(addr common.Address, method string, args []any) ([]any, string) {
	if t, ok := l.tokens[addr]; ok {
		return viewToken(t, method, args)
	}
	if p, ok := l.pools[addr]; ok {
		return viewPool(p, method, args)
	}
	return nil, reasonNoContract
}

func viewToken(t *token, method string, args []any) ([]any, string) {
	switch method {
	case ledger.MethodBalanceOf:
		if len(args) != 1 {
			return nil, reasonBadArguments
		}
		owner, ok := args[0].(common.Address)
		if !ok {
			return nil, reasonBadArguments
		}
		return []any{t.balanceOf(owner)}, ""
	case ledger.MethodAllowance:
		if len(args) != 2 {
			return nil, reasonBadArguments
		}
		owner, ok1 := args[0].(common.Address)
		spender, ok2 := args[1].(common.Address)
		if !ok1 || !ok2 {
			return nil, reasonBadArguments
		}
		return []any{t.allowance(owner, spender)}, ""
	case "name":
		return []any{t.name}, ""
	case "symbol":
		return []any{t.symbol}, ""
	case "decimals":
		return []any{uint8(18)}, ""
	case "totalSupply":
		return []any{new(big.Int).Set(t.totalSupply)}, ""
	default:
		return nil, reasonUnknownMethod
	}
}

func viewPool(p *amm.Pool, method string, args []any) ([]any, string) {
	r := p.Reserves.Clone()
	switch method {
	case ledger.MethodGetReserves:
		return []any{r.A, r.B}, ""
	case ledger.MethodGetAmountOut:
		tokenIn, amountIn, ok := addressAmount(args)
		if !ok {
			return nil, reasonBadArguments
		}
		out, err := p.AmountOut(tokenIn, amountIn)
		if err != nil {
			return nil, revertReason(err)
		}
		return []any{out}, ""
	case "reserveA":
		return []any{r.A}, ""
	case "reserveB":
		return []any{r.B}, ""
	case "tokenA":
		return []any{p.TokenA}, ""
	case "tokenB":
		return []any{p.TokenB}, ""
	case "FEE_NUMERATOR":
		return []any{new(big.Int).SetUint64(p.Fee.Numerator)}, ""
	case "FEE_DENOMINATOR":
		return []any{new(big.Int).SetUint64(p.Fee.Denominator)}, ""
	default:
		return nil, reasonUnknownMethod
	}
}

func addressAmount(args []any) (common.Address, *big.Int, bool) {
	if len(args) != 2 {
		return common.Address{}, nil, false
	}
	addr, ok1 := args[0].(common.Address)
	amount, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 || amount == nil || amount.Sign() < 0 {
		return common.Address{}, nil, false
	}
	return addr, amount, true
}
