package events

import (
	"cashflow/crypto"
)

const (
	TypeVaultCreated           = "receivable.vault_created"
	TypeTokensMinted           = "receivable.tokens_minted"
	TypeTokensPurchased        = "receivable.tokens_purchased"
	TypeMonthlyPaymentReceived = "receivable.payment_received"
	TypeTokensRedeemed         = "receivable.tokens_redeemed"
)

type VaultCreated struct {
	Vault                 crypto.Address
	Authority             crypto.Address
	Name                  string
	Principal             uint64
	TotalExpectedInterest uint64
	TotalTokensMinted     uint64
	MonthlyPayment        uint64
	TotalMonths           uint32
	CreatedAt             int64
}

func (VaultCreated) EventType() string { return TypeVaultCreated }

func (e VaultCreated) Event() *Record {
	return &Record{
		Type: TypeVaultCreated,
		Attributes: map[string]string{
			"vault":                 addressString(e.Vault),
			"authority":             addressString(e.Authority),
			"name":                  e.Name,
			"principal":             formatUint(e.Principal),
			"totalExpectedInterest": formatUint(e.TotalExpectedInterest),
			"totalTokensMinted":     formatUint(e.TotalTokensMinted),
			"monthlyPayment":        formatUint(e.MonthlyPayment),
			"totalMonths":           formatUint(uint64(e.TotalMonths)),
			"createdAt":             intToString(e.CreatedAt),
		},
	}
}

type TokensMinted struct {
	Vault     crypto.Address
	Recipient crypto.Address
	Amount    uint64
}

func (TokensMinted) EventType() string { return TypeTokensMinted }

func (e TokensMinted) Event() *Record {
	return &Record{
		Type: TypeTokensMinted,
		Attributes: map[string]string{
			"vault":     addressString(e.Vault),
			"recipient": addressString(e.Recipient),
			"amount":    formatUint(e.Amount),
		},
	}
}

type TokensPurchased struct {
	Vault              crypto.Address
	Buyer              crypto.Address
	TokenAmount        uint64
	PurchasePrice      uint64
	DiscountPercentage uint8
	PurchasedAt        int64
}

func (TokensPurchased) EventType() string { return TypeTokensPurchased }

func (e TokensPurchased) Event() *Record {
	return &Record{
		Type: TypeTokensPurchased,
		Attributes: map[string]string{
			"vault":              addressString(e.Vault),
			"buyer":              addressString(e.Buyer),
			"tokenAmount":        formatUint(e.TokenAmount),
			"purchasePrice":      formatUint(e.PurchasePrice),
			"discountPercentage": formatUint(uint64(e.DiscountPercentage)),
			"purchasedAt":        intToString(e.PurchasedAt),
		},
	}
}

type MonthlyPaymentReceived struct {
	Vault      crypto.Address
	Payer      crypto.Address
	Month      uint32
	Amount     uint64
	ReceivedAt int64
}

func (MonthlyPaymentReceived) EventType() string { return TypeMonthlyPaymentReceived }

func (e MonthlyPaymentReceived) Event() *Record {
	return &Record{
		Type: TypeMonthlyPaymentReceived,
		Attributes: map[string]string{
			"vault":      addressString(e.Vault),
			"payer":      addressString(e.Payer),
			"month":      formatUint(uint64(e.Month)),
			"amount":     formatUint(e.Amount),
			"receivedAt": intToString(e.ReceivedAt),
		},
	}
}

type TokensRedeemed struct {
	Vault           crypto.Address
	Redeemer        crypto.Address
	TokenAmount     uint64
	RedemptionValue uint64
	Month           uint32
	RedeemedAt      int64
}

func (TokensRedeemed) EventType() string { return TypeTokensRedeemed }

func (e TokensRedeemed) Event() *Record {
	return &Record{
		Type: TypeTokensRedeemed,
		Attributes: map[string]string{
			"vault":           addressString(e.Vault),
			"redeemer":        addressString(e.Redeemer),
			"tokenAmount":     formatUint(e.TokenAmount),
			"redemptionValue": formatUint(e.RedemptionValue),
			"month":           formatUint(uint64(e.Month)),
			"redeemedAt":      intToString(e.RedeemedAt),
		},
	}
}
