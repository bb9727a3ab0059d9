package amm

import "errors"

// Pricing errors. On-chain these surface as revert reasons of the pool contract.
var (
	// ErrInvalidAmount is returned when the input amount is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount: must be greater than zero")

	// ErrInsufficientLiquidity is returned when either reserve is empty
	// or the pool cannot pay out the requested amount.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrInvalidToken is returned when a swap names a token the pool does not hold.
	ErrInvalidToken = errors.New("invalid token")

	// ErrInvalidFee is returned for a zero denominator or a numerator above it.
	ErrInvalidFee = errors.New("invalid fee")

	// ErrOverflow is returned when a value does not fit into 256 bits.
	ErrOverflow = errors.New("uint256 overflow")
)
