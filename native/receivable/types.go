package receivable

import (
	"cashflow/crypto"
)

const moduleName = "receivable"

// Vault is the root record of one financed receivable. TotalTokensMinted is
// fixed at creation to principal plus expected interest and never changes.
type Vault struct {
	ID                    crypto.Address
	Authority             crypto.Address
	TokenMint             crypto.Address
	Treasury              crypto.Address
	PaymentMint           crypto.Address
	Name                  string
	Principal             uint64
	TotalExpectedInterest uint64
	TotalTokensMinted     uint64
	MonthlyPayment        uint64
	TotalMonths           uint32
	CurrentMonth          uint32
	TotalRedeemed         uint64
	CreatedAt             int64
	IsActive              bool
}

// Clone returns a copy safe for mutation.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// Matured reports whether every scheduled payment has been received.
func (v *Vault) Matured() bool {
	return v != nil && v.CurrentMonth >= v.TotalMonths
}

// VaultParams carries the inputs supplied when a vault is created.
type VaultParams struct {
	Name                  string
	Principal             uint64
	TotalExpectedInterest uint64
	MonthlyPayment        uint64
	TotalMonths           uint32
	PaymentMint           crypto.Address
}

// PaymentCycle records one received monthly payment and the redemption
// capacity it still offers.
type PaymentCycle struct {
	Vault                  crypto.Address
	Month                  uint32
	Amount                 uint64
	AvailableForRedemption uint64
	ReceivedAt             int64
}

func (c *PaymentCycle) Clone() *PaymentCycle {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// RedemptionRecord is the append-only audit entry of a completed redemption.
type RedemptionRecord struct {
	ID              [32]byte
	Vault           crypto.Address
	Redeemer        crypto.Address
	TokenAmount     uint64
	RedemptionValue uint64
	Month           uint32
	RedeemedAt      int64
	Nonce           uint64
}

func (r *RedemptionRecord) Clone() *RedemptionRecord {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// PrimarySale is the append-only audit entry of a discounted token purchase.
type PrimarySale struct {
	ID                 [32]byte
	Vault              crypto.Address
	Buyer              crypto.Address
	TokenAmount        uint64
	PurchasePrice      uint64
	DiscountPercentage uint8
	PurchasedAt        int64
	Nonce              uint64
}

func (s *PrimarySale) Clone() *PrimarySale {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// VaultAddress derives the vault identity from its name.
func VaultAddress(name string) crypto.Address {
	return crypto.DeriveAddress([]byte("vault"), []byte(name))
}

// MintAddress derives the claim-token mint owned by the vault.
func MintAddress(vault crypto.Address) crypto.Address {
	return crypto.DeriveAddress([]byte("mint"), vault[:])
}

// TreasuryAddress derives the account that collects purchase proceeds and
// monthly payments for the vault.
func TreasuryAddress(vault crypto.Address) crypto.Address {
	return crypto.DeriveAddress([]byte("treasury"), vault[:])
}

// PaymentCycleID derives the record identifier of a month's payment cycle.
func PaymentCycleID(vault crypto.Address, month uint32) [32]byte {
	return crypto.DeriveRecordID([]byte("payment"), vault[:], crypto.Uint32Seed(month))
}

// SaleID derives the identifier of a primary sale.
func SaleID(vault, buyer crypto.Address, nonce uint64) [32]byte {
	return crypto.DeriveRecordID([]byte("sale"), vault[:], buyer[:], crypto.Uint64Seed(nonce))
}

// RedemptionID derives the identifier of a redemption record.
func RedemptionID(vault, redeemer crypto.Address, nonce uint64) [32]byte {
	return crypto.DeriveRecordID([]byte("redemption"), vault[:], redeemer[:], crypto.Uint64Seed(nonce))
}
