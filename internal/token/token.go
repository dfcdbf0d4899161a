// Package token abstracts the balance ledger of one fungible asset. The
// pool never trusts a settlement callback: it re-reads its own balance
// through this interface after every inbound transfer.
package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrInsufficientBalance = errors.New("token: insufficient balance")

// Adapter exposes the two primitives the pool needs from a token.
type Adapter interface {
	BalanceOf(owner common.Address) (*uint256.Int, error)
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// Vault is an in-memory Adapter used by the replay pipeline and tests.
type Vault struct {
	symbol   string
	balances map[common.Address]*uint256.Int
}

func NewVault(symbol string) *Vault {
	return &Vault{
		symbol:   symbol,
		balances: make(map[common.Address]*uint256.Int),
	}
}

func (v *Vault) Symbol() string { return v.symbol }

// BalanceOf returns the current balance of owner.
func (v *Vault) BalanceOf(owner common.Address) (*uint256.Int, error) {
	bal, ok := v.balances[owner]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(bal), nil
}

// Transfer moves amount from one account to another.
func (v *Vault) Transfer(from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	fromBal, ok := v.balances[from]
	if !ok {
		fromBal = new(uint256.Int)
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s of %s",
			ErrInsufficientBalance, from.Hex(), fromBal.Dec(), amount.Dec(), v.symbol)
	}
	fromBal.Sub(fromBal, amount)

	toBal, ok := v.balances[to]
	if !ok {
		toBal = new(uint256.Int)
		v.balances[to] = toBal
	}
	toBal.Add(toBal, amount)
	return nil
}

// MintTo credits freshly issued tokens to an account.
func (v *Vault) MintTo(owner common.Address, amount *uint256.Int) {
	bal, ok := v.balances[owner]
	if !ok {
		bal = new(uint256.Int)
		v.balances[owner] = bal
	}
	bal.Add(bal, amount)
}
