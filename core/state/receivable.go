package state

import (
	"fmt"
	"math/big"

	"cashflow/crypto"
	"cashflow/native/receivable"
)

type storedVault struct {
	ID                    [20]byte
	Authority             [20]byte
	TokenMint             [20]byte
	Treasury              [20]byte
	PaymentMint           [20]byte
	Name                  string
	Principal             uint64
	TotalExpectedInterest uint64
	TotalTokensMinted     uint64
	MonthlyPayment        uint64
	TotalMonths           uint32
	CurrentMonth          uint32
	TotalRedeemed         uint64
	CreatedAt             *big.Int
	IsActive              bool
}

func newStoredVault(v *receivable.Vault) *storedVault {
	return &storedVault{
		ID:                    v.ID,
		Authority:             v.Authority,
		TokenMint:             v.TokenMint,
		Treasury:              v.Treasury,
		PaymentMint:           v.PaymentMint,
		Name:                  v.Name,
		Principal:             v.Principal,
		TotalExpectedInterest: v.TotalExpectedInterest,
		TotalTokensMinted:     v.TotalTokensMinted,
		MonthlyPayment:        v.MonthlyPayment,
		TotalMonths:           v.TotalMonths,
		CurrentMonth:          v.CurrentMonth,
		TotalRedeemed:         v.TotalRedeemed,
		CreatedAt:             bigFromInt64(v.CreatedAt),
		IsActive:              v.IsActive,
	}
}

func (s *storedVault) toVault() *receivable.Vault {
	return &receivable.Vault{
		ID:                    s.ID,
		Authority:             s.Authority,
		TokenMint:             s.TokenMint,
		Treasury:              s.Treasury,
		PaymentMint:           s.PaymentMint,
		Name:                  s.Name,
		Principal:             s.Principal,
		TotalExpectedInterest: s.TotalExpectedInterest,
		TotalTokensMinted:     s.TotalTokensMinted,
		MonthlyPayment:        s.MonthlyPayment,
		TotalMonths:           s.TotalMonths,
		CurrentMonth:          s.CurrentMonth,
		TotalRedeemed:         s.TotalRedeemed,
		CreatedAt:             int64FromBig(s.CreatedAt),
		IsActive:              s.IsActive,
	}
}

type storedPaymentCycle struct {
	Vault                  [20]byte
	Month                  uint32
	Amount                 uint64
	AvailableForRedemption uint64
	ReceivedAt             *big.Int
}

type storedPrimarySale struct {
	ID                 [32]byte
	Vault              [20]byte
	Buyer              [20]byte
	TokenAmount        uint64
	PurchasePrice      uint64
	DiscountPercentage uint8
	PurchasedAt        *big.Int
	Nonce              uint64
}

type storedRedemption struct {
	ID              [32]byte
	Vault           [20]byte
	Redeemer        [20]byte
	TokenAmount     uint64
	RedemptionValue uint64
	Month           uint32
	RedeemedAt      *big.Int
	Nonce           uint64
}

// VaultPut stores the vault and records it in the vault index.
func (m *Manager) VaultPut(v *receivable.Vault) error {
	if v == nil {
		return fmt.Errorf("vault: nil value")
	}
	if err := m.put(prefixedKey(vaultPrefix, v.ID[:]), newStoredVault(v)); err != nil {
		return err
	}
	return m.appendIndex(vaultListKey, v.ID[:])
}

// VaultGet loads the vault with the given identity.
func (m *Manager) VaultGet(id crypto.Address) (*receivable.Vault, bool, error) {
	stored := new(storedVault)
	ok, err := m.get(prefixedKey(vaultPrefix, id[:]), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toVault(), true, nil
}

// VaultExists reports whether a vault with the given identity is stored.
func (m *Manager) VaultExists(id crypto.Address) (bool, error) {
	return m.get(prefixedKey(vaultPrefix, id[:]), nil)
}

// VaultIDs lists every vault in creation order.
func (m *Manager) VaultIDs() ([]crypto.Address, error) {
	return m.addressList(vaultListKey)
}

// PaymentCyclePut stores the cycle keyed by vault and month.
func (m *Manager) PaymentCyclePut(c *receivable.PaymentCycle) error {
	if c == nil {
		return fmt.Errorf("payment cycle: nil value")
	}
	id := receivable.PaymentCycleID(c.Vault, c.Month)
	return m.put(prefixedKey(cyclePrefix, id[:]), &storedPaymentCycle{
		Vault:                  c.Vault,
		Month:                  c.Month,
		Amount:                 c.Amount,
		AvailableForRedemption: c.AvailableForRedemption,
		ReceivedAt:             bigFromInt64(c.ReceivedAt),
	})
}

// PaymentCycleGet loads the cycle recorded for the vault's month.
func (m *Manager) PaymentCycleGet(vault crypto.Address, month uint32) (*receivable.PaymentCycle, bool, error) {
	id := receivable.PaymentCycleID(vault, month)
	stored := new(storedPaymentCycle)
	ok, err := m.get(prefixedKey(cyclePrefix, id[:]), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &receivable.PaymentCycle{
		Vault:                  stored.Vault,
		Month:                  stored.Month,
		Amount:                 stored.Amount,
		AvailableForRedemption: stored.AvailableForRedemption,
		ReceivedAt:             int64FromBig(stored.ReceivedAt),
	}, true, nil
}

// PrimarySalePut appends a primary sale to the vault's sale log.
func (m *Manager) PrimarySalePut(s *receivable.PrimarySale) error {
	if s == nil {
		return fmt.Errorf("primary sale: nil value")
	}
	if err := m.put(prefixedKey(salePrefix, s.ID[:]), &storedPrimarySale{
		ID:                 s.ID,
		Vault:              s.Vault,
		Buyer:              s.Buyer,
		TokenAmount:        s.TokenAmount,
		PurchasePrice:      s.PurchasePrice,
		DiscountPercentage: s.DiscountPercentage,
		PurchasedAt:        bigFromInt64(s.PurchasedAt),
		Nonce:              s.Nonce,
	}); err != nil {
		return err
	}
	return m.appendIndex(prefixedKey(saleListPrefix, s.Vault[:]), s.ID[:])
}

// PrimarySales returns the vault's sales in purchase order.
func (m *Manager) PrimarySales(vault crypto.Address) ([]*receivable.PrimarySale, error) {
	ids, err := m.index(prefixedKey(saleListPrefix, vault[:]))
	if err != nil {
		return nil, err
	}
	out := make([]*receivable.PrimarySale, 0, len(ids))
	for _, id := range ids {
		stored := new(storedPrimarySale)
		ok, err := m.get(prefixedKey(salePrefix, id), stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, &receivable.PrimarySale{
			ID:                 stored.ID,
			Vault:              stored.Vault,
			Buyer:              stored.Buyer,
			TokenAmount:        stored.TokenAmount,
			PurchasePrice:      stored.PurchasePrice,
			DiscountPercentage: stored.DiscountPercentage,
			PurchasedAt:        int64FromBig(stored.PurchasedAt),
			Nonce:              stored.Nonce,
		})
	}
	return out, nil
}

// RedemptionPut appends a redemption to the vault's redemption log.
func (m *Manager) RedemptionPut(r *receivable.RedemptionRecord) error {
	if r == nil {
		return fmt.Errorf("redemption: nil value")
	}
	if err := m.put(prefixedKey(redemptionPrefix, r.ID[:]), &storedRedemption{
		ID:              r.ID,
		Vault:           r.Vault,
		Redeemer:        r.Redeemer,
		TokenAmount:     r.TokenAmount,
		RedemptionValue: r.RedemptionValue,
		Month:           r.Month,
		RedeemedAt:      bigFromInt64(r.RedeemedAt),
		Nonce:           r.Nonce,
	}); err != nil {
		return err
	}
	return m.appendIndex(prefixedKey(redemptionListKey, r.Vault[:]), r.ID[:])
}

// Redemptions returns the vault's redemptions in execution order.
func (m *Manager) Redemptions(vault crypto.Address) ([]*receivable.RedemptionRecord, error) {
	ids, err := m.index(prefixedKey(redemptionListKey, vault[:]))
	if err != nil {
		return nil, err
	}
	out := make([]*receivable.RedemptionRecord, 0, len(ids))
	for _, id := range ids {
		stored := new(storedRedemption)
		ok, err := m.get(prefixedKey(redemptionPrefix, id), stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, &receivable.RedemptionRecord{
			ID:              stored.ID,
			Vault:           stored.Vault,
			Redeemer:        stored.Redeemer,
			TokenAmount:     stored.TokenAmount,
			RedemptionValue: stored.RedemptionValue,
			Month:           stored.Month,
			RedeemedAt:      int64FromBig(stored.RedeemedAt),
			Nonce:           stored.Nonce,
		})
	}
	return out, nil
}

func (m *Manager) addressList(key []byte) ([]crypto.Address, error) {
	raw, err := m.index(key)
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, entry := range raw {
		var addr crypto.Address
		if len(entry) != len(addr) {
			return nil, fmt.Errorf("state: malformed address index entry")
		}
		copy(addr[:], entry)
		out = append(out, addr)
	}
	return out, nil
}
