package amm

import (
	"fmt"
	"math/big"
)

// Reserves holds the two token balances of a pool.
type Reserves struct {
	A *big.Int
	B *big.Int
}

// NewReserves creates zero reserves.
func NewReserves() Reserves {
	return Reserves{A: new(big.Int), B: new(big.Int)}
}

// Clone returns a deep copy.
func (r Reserves) Clone() Reserves {
	return Reserves{A: cloneOrZero(r.A), B: cloneOrZero(r.B)}
}

// AddLiquidity returns reserves increased by exactly (amountA, amountB). No fee is charged.
func (r Reserves) AddLiquidity(amountA, amountB *big.Int) (Reserves, error) {
	if amountA == nil || amountB == nil || amountA.Sign() < 0 || amountB.Sign() < 0 {
		return Reserves{}, ErrInvalidAmount
	}
	next := Reserves{
		A: new(big.Int).Add(cloneOrZero(r.A), amountA),
		B: new(big.Int).Add(cloneOrZero(r.B), amountB),
	}
	if next.A.BitLen() > 256 || next.B.BitLen() > 256 {
		return Reserves{}, ErrOverflow
	}
	return next, nil
}

// Product returns ReserveA * ReserveB.
func (r Reserves) Product() *big.Int {
	return new(big.Int).Mul(cloneOrZero(r.A), cloneOrZero(r.B))
}

// InvariantHolds reports whether the constant product did not decrease.
func InvariantHolds(before, after Reserves) bool {
	return after.Product().Cmp(before.Product()) >= 0
}

func (r Reserves) String() string {
	return fmt.Sprintf("(%s, %s)", cloneOrZero(r.A), cloneOrZero(r.B))
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
