package bank

import (
	"fmt"

	"cashflow/crypto"
	"cashflow/native/common"
)

// ErrInsufficientFunds is returned when a debit exceeds the account balance.
var ErrInsufficientFunds = common.ErrInsufficientFunds

type ledgerState interface {
	BalanceGet(mint, owner crypto.Address) (uint64, error)
	BalancePut(mint, owner crypto.Address, amount uint64) error
	SupplyGet(mint crypto.Address) (uint64, error)
	SupplyPut(mint crypto.Address, amount uint64) error
}

// Ledger holds per-mint balances for every account. It is the token ledger
// the receivable and liquidity engines move value through.
type Ledger struct {
	state ledgerState
}

// NewLedger wraps the supplied balance store.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return fmt.Errorf("bank: state manager required")
	}
	return nil
}

// BalanceOf returns the owner's balance of mint.
func (l *Ledger) BalanceOf(mint, owner crypto.Address) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.BalanceGet(mint, owner)
}

// Supply returns the outstanding supply of mint.
func (l *Ledger) Supply(mint crypto.Address) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.SupplyGet(mint)
}

// Mint credits amount to the recipient and grows the mint supply.
func (l *Ledger) Mint(mint, to crypto.Address, amount uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	supply, err := l.state.SupplyGet(mint)
	if err != nil {
		return err
	}
	newSupply, err := common.CheckedAdd(supply, amount)
	if err != nil {
		return fmt.Errorf("bank: mint supply: %w", err)
	}
	if err := l.credit(mint, to, amount); err != nil {
		return err
	}
	return l.state.SupplyPut(mint, newSupply)
}

// Burn removes amount from the holder and shrinks the mint supply.
func (l *Ledger) Burn(mint, from crypto.Address, amount uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	supply, err := l.state.SupplyGet(mint)
	if err != nil {
		return err
	}
	newSupply, err := common.CheckedSub(supply, amount)
	if err != nil {
		return fmt.Errorf("bank: burn supply: %w", err)
	}
	if err := l.debit(mint, from, amount); err != nil {
		return err
	}
	return l.state.SupplyPut(mint, newSupply)
}

// Transfer moves amount of mint between two accounts.
func (l *Ledger) Transfer(mint, from, to crypto.Address, amount uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amount == 0 || from == to {
		if from == to && amount > 0 {
			balance, err := l.state.BalanceGet(mint, from)
			if err != nil {
				return err
			}
			if balance < amount {
				return ErrInsufficientFunds
			}
		}
		return nil
	}
	if err := l.debit(mint, from, amount); err != nil {
		return err
	}
	return l.credit(mint, to, amount)
}

func (l *Ledger) debit(mint, owner crypto.Address, amount uint64) error {
	balance, err := l.state.BalanceGet(mint, owner)
	if err != nil {
		return err
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	return l.state.BalancePut(mint, owner, balance-amount)
}

func (l *Ledger) credit(mint, owner crypto.Address, amount uint64) error {
	balance, err := l.state.BalanceGet(mint, owner)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(balance, amount)
	if err != nil {
		return fmt.Errorf("bank: credit: %w", err)
	}
	return l.state.BalancePut(mint, owner, next)
}
