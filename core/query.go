package core

import (
	"cashflow/core/state"
	"cashflow/crypto"
	"cashflow/native/amm"
	"cashflow/native/common"
	"cashflow/native/receivable"
)

func (l *Ledger) view() *state.Manager {
	return state.NewManager(l.db)
}

// Vault returns the committed vault record.
func (l *Ledger) Vault(id crypto.Address) (*receivable.Vault, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	vault, ok, err := l.view().VaultGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrVaultNotFound
	}
	return vault, nil
}

// Vaults lists every committed vault in creation order.
func (l *Ledger) Vaults() ([]*receivable.Vault, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	view := l.view()
	ids, err := view.VaultIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*receivable.Vault, 0, len(ids))
	for _, id := range ids {
		vault, ok, err := view.VaultGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, vault)
		}
	}
	return out, nil
}

// PaymentCycle returns the committed cycle for the vault's month.
func (l *Ledger) PaymentCycle(vault crypto.Address, month uint32) (*receivable.PaymentCycle, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cycle, ok, err := l.view().PaymentCycleGet(vault, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPaymentCycleNotFound
	}
	return cycle, nil
}

// Redemptions returns the vault's redemption log.
func (l *Ledger) Redemptions(vault crypto.Address) ([]*receivable.RedemptionRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view().Redemptions(vault)
}

// Sales returns the vault's primary sale log.
func (l *Ledger) Sales(vault crypto.Address) ([]*receivable.PrimarySale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view().PrimarySales(vault)
}

// Pool returns the committed pool record.
func (l *Ledger) Pool(id crypto.Address) (*amm.Pool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pool, ok, err := l.view().PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPoolNotFound
	}
	return pool, nil
}

// Pools lists every committed pool in creation order.
func (l *Ledger) Pools() ([]*amm.Pool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	view := l.view()
	ids, err := view.PoolIDs()
	if err != nil {
		return nil, err
	}
	out := make([]*amm.Pool, 0, len(ids))
	for _, id := range ids {
		pool, ok, err := view.PoolGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, pool)
		}
	}
	return out, nil
}

// Position returns a committed LP position.
func (l *Ledger) Position(id [32]byte) (*amm.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	position, ok, err := l.view().PositionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPositionNotFound
	}
	return position, nil
}

// Positions lists the positions opened in the pool.
func (l *Ledger) Positions(pool crypto.Address) ([]*amm.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	view := l.view()
	ids, err := view.PositionIDs(pool)
	if err != nil {
		return nil, err
	}
	out := make([]*amm.Position, 0, len(ids))
	for _, id := range ids {
		position, ok, err := view.PositionGet(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, position)
		}
	}
	return out, nil
}

// Balance returns the owner's committed balance of mint.
func (l *Ledger) Balance(mint, owner crypto.Address) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view().BalanceGet(mint, owner)
}

// QuoteShares previews the LP shares for a deposit at committed reserves.
func (l *Ledger) QuoteShares(pool crypto.Address, amountA, amountB uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	engine := amm.NewEngine()
	engine.SetState(l.view())
	return engine.QuoteShares(pool, amountA, amountB)
}
