// Package amm implements the constant-product pricing model enforced by the pool contract.
//
// All arithmetic is exact and uses floor division on 256-bit unsigned integers,
// matching EVM semantics. Floating point is never used.
package amm

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Fee is a proportional swap fee expressed as Numerator/Denominator of the
// input amount that is kept for pricing. 997/1000 means a 0.3% fee.
type Fee struct {
	Numerator   uint64
	Denominator uint64
}

// DefaultFee is the 0.3% fee used by the pool contract.
var DefaultFee = Fee{Numerator: 997, Denominator: 1000}

// Validate checks that the fee is a proper fraction.
func (f Fee) Validate() error {
	if f.Denominator == 0 || f.Numerator > f.Denominator {
		return ErrInvalidFee
	}
	return nil
}

// Quote returns the output amount for amountIn against the given reserves
// using DefaultFee.
func Quote(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	return QuoteWithFee(amountIn, reserveIn, reserveOut, DefaultFee)
}

// QuoteWithFee returns the output amount for amountIn against the given reserves:
//
//	amountInWithFee = floor(amountIn * fee.Numerator / fee.Denominator)
//	amountOut       = floor(amountInWithFee * reserveOut / (reserveIn + amountInWithFee))
func QuoteWithFee(amountIn, reserveIn, reserveOut *big.Int, fee Fee) (*big.Int, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	in, err := toU256(amountIn)
	if err != nil {
		return nil, err
	}
	rIn, err := toU256(reserveIn)
	if err != nil {
		return nil, err
	}
	rOut, err := toU256(reserveOut)
	if err != nil {
		return nil, err
	}

	out, err := quote(in, rIn, rOut, fee)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}

func quote(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	num := uint256.NewInt(fee.Numerator)
	den := uint256.NewInt(fee.Denominator)

	withFee, overflow := new(uint256.Int).MulDivOverflow(amountIn, num, den)
	if overflow {
		return nil, ErrOverflow
	}

	denominator, overflow := new(uint256.Int).AddOverflow(reserveIn, withFee)
	if overflow {
		return nil, ErrOverflow
	}

	out, overflow := new(uint256.Int).MulDivOverflow(withFee, reserveOut, denominator)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

func toU256(v *big.Int) (*uint256.Int, error) {
	if v.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrOverflow
	}
	return u, nil
}
