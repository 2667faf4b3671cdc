package receivable

import (
	"fmt"

	"cashflow/core/events"
	"cashflow/crypto"
	"cashflow/native/common"
)

// PurchasePrice quotes the payment owed for tokenAmount claim tokens at the
// given discount: amount - floor(amount*pct/100).
func PurchasePrice(tokenAmount uint64, discountPct uint8) (uint64, error) {
	discount, err := common.Percent(tokenAmount, discountPct)
	if err != nil {
		return 0, err
	}
	return common.CheckedSub(tokenAmount, discount)
}

// PurchaseTokens sells newly minted claim tokens to buyer at a discount. The
// buyer pays the discounted price into the vault treasury before the tokens
// are minted.
func (e *Engine) PurchaseTokens(buyer, vaultID crypto.Address, tokenAmount uint64, discountPct uint8) (*PrimarySale, error) {
	if discountPct > 100 {
		return nil, common.ErrInvalidDiscount
	}
	if err := e.ready(true); err != nil {
		return nil, err
	}
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return nil, err
	}
	if !vault.IsActive {
		return nil, common.ErrVaultInactive
	}
	price, err := PurchasePrice(tokenAmount, discountPct)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(vault.PaymentMint, buyer, vault.Treasury, price); err != nil {
		return nil, fmt.Errorf("receivable engine: collect payment: %w", err)
	}
	if err := e.ledger.Mint(vault.TokenMint, buyer, tokenAmount); err != nil {
		return nil, fmt.Errorf("receivable engine: mint: %w", err)
	}
	nonce, err := e.state.NextSequence(saleScope(vault.ID))
	if err != nil {
		return nil, err
	}
	now := e.now()
	sale := &PrimarySale{
		ID:                 SaleID(vault.ID, buyer, nonce),
		Vault:              vault.ID,
		Buyer:              buyer,
		TokenAmount:        tokenAmount,
		PurchasePrice:      price,
		DiscountPercentage: discountPct,
		PurchasedAt:        now,
		Nonce:              nonce,
	}
	if err := e.state.PrimarySalePut(sale); err != nil {
		return nil, err
	}
	e.emit(events.TokensPurchased{
		Vault:              vault.ID,
		Buyer:              buyer,
		TokenAmount:        tokenAmount,
		PurchasePrice:      price,
		DiscountPercentage: discountPct,
		PurchasedAt:        now,
	})
	return sale.Clone(), nil
}

func saleScope(vault crypto.Address) []byte {
	return append([]byte("sale:"), vault[:]...)
}

func redemptionScope(vault crypto.Address) []byte {
	return append([]byte("redemption:"), vault[:]...)
}
