package state

import (
	"math/big"

	"cashflow/crypto"
)

func balanceKey(mint, owner crypto.Address) []byte {
	return prefixedKey(balancePrefix, mint[:], []byte{':'}, owner[:])
}

// BalanceGet returns the owner's balance of mint. Missing balances are zero.
func (m *Manager) BalanceGet(mint, owner crypto.Address) (uint64, error) {
	return m.loadUint(balanceKey(mint, owner))
}

// BalancePut overwrites the owner's balance of mint.
func (m *Manager) BalancePut(mint, owner crypto.Address, amount uint64) error {
	return m.put(balanceKey(mint, owner), new(big.Int).SetUint64(amount))
}

// SupplyGet returns the outstanding supply of mint.
func (m *Manager) SupplyGet(mint crypto.Address) (uint64, error) {
	return m.loadUint(prefixedKey(supplyPrefix, mint[:]))
}

// SupplyPut overwrites the outstanding supply of mint.
func (m *Manager) SupplyPut(mint crypto.Address, amount uint64) error {
	return m.put(prefixedKey(supplyPrefix, mint[:]), new(big.Int).SetUint64(amount))
}

func (m *Manager) loadUint(key []byte) (uint64, error) {
	value := new(big.Int)
	ok, err := m.get(key, value)
	if err != nil || !ok {
		return 0, err
	}
	if !value.IsUint64() {
		return 0, errCorruptAmount
	}
	return value.Uint64(), nil
}
