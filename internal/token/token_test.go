package token

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestVaultTransfer(t *testing.T) {
	v := NewVault("tkn")
	v.MintTo(alice, uint256.NewInt(100))

	if err := v.Transfer(alice, bob, uint256.NewInt(40)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	aliceBal, _ := v.BalanceOf(alice)
	bobBal, _ := v.BalanceOf(bob)
	if aliceBal.Uint64() != 60 || bobBal.Uint64() != 40 {
		t.Fatalf("balances = (%s, %s), want (60, 40)", aliceBal.Dec(), bobBal.Dec())
	}
}

func TestVaultTransferInsufficient(t *testing.T) {
	v := NewVault("tkn")
	v.MintTo(alice, uint256.NewInt(10))

	if err := v.Transfer(alice, bob, uint256.NewInt(11)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("want ErrInsufficientBalance, got %v", err)
	}
	if err := v.Transfer(bob, alice, uint256.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("transfer from empty account: want ErrInsufficientBalance, got %v", err)
	}

	// Zero transfers always succeed.
	if err := v.Transfer(bob, alice, new(uint256.Int)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
}

func TestVaultBalanceCopy(t *testing.T) {
	v := NewVault("tkn")
	v.MintTo(alice, uint256.NewInt(100))

	bal, _ := v.BalanceOf(alice)
	bal.SetUint64(0)

	fresh, _ := v.BalanceOf(alice)
	if fresh.Uint64() != 100 {
		t.Fatalf("vault balance aliased by BalanceOf")
	}
}
