package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool is the state of a two-token constant-product pool.
// It mirrors what the pool contract stores and is used by the in-memory ledger.
type Pool struct {
	TokenA   common.Address
	TokenB   common.Address
	Reserves Reserves
	Fee      Fee
}

// NewPool creates an empty pool for the pair.
func NewPool(tokenA, tokenB common.Address) (*Pool, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("%w: identical tokens %s", ErrInvalidToken, tokenA.Hex())
	}
	return &Pool{
		TokenA:   tokenA,
		TokenB:   tokenB,
		Reserves: NewReserves(),
		Fee:      DefaultFee,
	}, nil
}

// AddLiquidity increases reserves by the deposited amounts.
func (p *Pool) AddLiquidity(amountA, amountB *big.Int) error {
	next, err := p.Reserves.AddLiquidity(amountA, amountB)
	if err != nil {
		return err
	}
	p.Reserves = next
	return nil
}

// AmountOut quotes a swap of amountIn of tokenIn without changing state.
func (p *Pool) AmountOut(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	reserveIn, reserveOut, err := p.orient(tokenIn)
	if err != nil {
		return nil, err
	}
	return QuoteWithFee(amountIn, reserveIn, reserveOut, p.Fee)
}

// Swap applies a swap of amountIn of tokenIn and returns the amount of the
// other token paid out.
func (p *Pool) Swap(tokenIn common.Address, amountIn *big.Int) (*big.Int, error) {
	out, err := p.AmountOut(tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	before := p.Reserves.Clone()
	next := p.Reserves.Clone()
	if tokenIn == p.TokenA {
		next.A.Add(next.A, amountIn)
		next.B.Sub(next.B, out)
	} else {
		next.B.Add(next.B, amountIn)
		next.A.Sub(next.A, out)
	}
	if !InvariantHolds(before, next) {
		return nil, fmt.Errorf("constant product decreased: %s -> %s", before, next)
	}
	p.Reserves = next
	return out, nil
}

// Other returns the counter-asset of token.
func (p *Pool) Other(token common.Address) (common.Address, error) {
	switch token {
	case p.TokenA:
		return p.TokenB, nil
	case p.TokenB:
		return p.TokenA, nil
	default:
		return common.Address{}, ErrInvalidToken
	}
}

func (p *Pool) orient(tokenIn common.Address) (*big.Int, *big.Int, error) {
	switch tokenIn {
	case p.TokenA:
		return p.Reserves.A, p.Reserves.B, nil
	case p.TokenB:
		return p.Reserves.B, p.Reserves.A, nil
	default:
		return nil, nil, ErrInvalidToken
	}
}
