package simulated

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Revert reasons raised by the native token.
const (
	reasonInsufficientAllowance = "InsufficientAllowance"
	reasonInsufficientBalance   = "InsufficientBalance"
)

// token is an ERC20 with 18 decimals and a fixed supply minted to the deployer.
type token struct {
	name        string
	symbol      string
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
}

func newToken(name, symbol string, owner common.Address, supply *big.Int) *token {
	return &token{
		name:        name,
		symbol:      symbol,
		totalSupply: new(big.Int).Set(supply),
		balances:    map[common.Address]*big.Int{owner: new(big.Int).Set(supply)},
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *token) balanceOf(addr common.Address) *big.Int {
	return balanceOf(t.balances, addr)
}

func (t *token) allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (t *token) approve(owner, spender common.Address, amount *big.Int) {
	m, ok := t.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		t.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

// canTransfer checks a transfer without applying it.
func (t *token) canTransfer(from common.Address, amount *big.Int) string {
	if t.balanceOf(from).Cmp(amount) < 0 {
		return reasonInsufficientBalance
	}
	return ""
}

// canTransferFrom checks the allowance guard and balance for spender moving from's tokens.
func (t *token) canTransferFrom(spender, from common.Address, amount *big.Int) string {
	if t.allowance(from, spender).Cmp(amount) < 0 {
		return reasonInsufficientAllowance
	}
	return t.canTransfer(from, amount)
}

func (t *token) transfer(from, to common.Address, amount *big.Int) string {
	if reason := t.canTransfer(from, amount); reason != "" {
		return reason
	}
	t.balances[from] = new(big.Int).Sub(t.balanceOf(from), amount)
	t.balances[to] = new(big.Int).Add(t.balanceOf(to), amount)
	return ""
}

func (t *token) transferFrom(spender, from, to common.Address, amount *big.Int) string {
	if reason := t.canTransferFrom(spender, from, amount); reason != "" {
		return reason
	}
	t.approve(from, spender, new(big.Int).Sub(t.allowance(from, spender), amount))
	return t.transfer(from, to, amount)
}

func balanceOf(m map[common.Address]*big.Int, addr common.Address) *big.Int {
	if v, ok := m[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
