package bank

import (
	"errors"
	"testing"

	"cashflow/core/state"
	"cashflow/crypto"
	"cashflow/native/common"
	"cashflow/storage"
)

func TestLedgerMintTransferBurn(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	mint := crypto.DeriveAddress([]byte("usdc"))
	alice := crypto.DeriveAddress([]byte("alice"))
	bob := crypto.DeriveAddress([]byte("bob"))

	if err := ledger.Mint(mint, alice, 1_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(mint, alice, bob, 400); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.Transfer(mint, alice, bob, 601); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := ledger.Burn(mint, bob, 100); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := ledger.Burn(mint, bob, 301); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds on burn, got %v", err)
	}

	checks := []struct {
		owner crypto.Address
		want  uint64
	}{
		{alice, 600},
		{bob, 300},
	}
	for _, c := range checks {
		got, err := ledger.BalanceOf(mint, c.owner)
		if err != nil || got != c.want {
			t.Fatalf("balance of %s: want %d got %d (%v)", c.owner, c.want, got, err)
		}
	}
	if supply, _ := ledger.Supply(mint); supply != 900 {
		t.Fatalf("expected supply 900, got %d", supply)
	}
}

func TestLedgerOverflowAndNoops(t *testing.T) {
	ledger := NewLedger(state.NewManager(storage.NewMemDB()))
	mint := crypto.DeriveAddress([]byte("token"))
	holder := crypto.DeriveAddress([]byte("holder"))
	if err := ledger.Mint(mint, holder, ^uint64(0)); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := ledger.Mint(mint, holder, 1); !errors.Is(err, common.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if err := ledger.Transfer(mint, holder, holder, 10); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if err := ledger.Transfer(mint, crypto.ZeroAddress, holder, 0); err != nil {
		t.Fatalf("zero transfer must be a no-op: %v", err)
	}
}
