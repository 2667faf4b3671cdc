package receivable

import (
	"fmt"

	"cashflow/core/events"
	"cashflow/crypto"
	"cashflow/native/common"
)

// ReceivePayment collects the scheduled monthly payment into the treasury
// and opens a payment cycle whose full amount becomes redeemable. This is the
// only transition that advances CurrentMonth.
func (e *Engine) ReceivePayment(payer, vaultID crypto.Address, amount uint64) (*PaymentCycle, error) {
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
	if vault.Matured() {
		return nil, common.ErrVaultMatured
	}
	if amount != vault.MonthlyPayment {
		return nil, common.ErrInvalidPaymentAmount
	}
	month := vault.CurrentMonth
	if _, exists, err := e.state.PaymentCycleGet(vault.ID, month); err != nil {
		return nil, err
	} else if exists {
		return nil, common.ErrPaymentCycleExists
	}
	if err := e.ledger.Transfer(vault.PaymentMint, payer, vault.Treasury, amount); err != nil {
		return nil, fmt.Errorf("receivable engine: collect payment: %w", err)
	}
	next, err := common.CheckedAdd(uint64(month), 1)
	if err != nil || next > uint64(^uint32(0)) {
		return nil, common.ErrArithmeticOverflow
	}
	now := e.now()
	cycle := &PaymentCycle{
		Vault:                  vault.ID,
		Month:                  month,
		Amount:                 amount,
		AvailableForRedemption: amount,
		ReceivedAt:             now,
	}
	if err := e.state.PaymentCyclePut(cycle); err != nil {
		return nil, err
	}
	vault.CurrentMonth = uint32(next)
	if err := e.state.VaultPut(vault); err != nil {
		return nil, err
	}
	e.emit(events.MonthlyPaymentReceived{
		Vault:      vault.ID,
		Payer:      payer,
		Month:      month,
		Amount:     amount,
		ReceivedAt: now,
	})
	return cycle.Clone(), nil
}

// Redeem burns tokenAmount claim tokens and pays the redeemer 1:1 out of the
// treasury, drawing down the capacity of the named month's cycle. Requests
// larger than the remaining capacity fail outright.
func (e *Engine) Redeem(redeemer, vaultID crypto.Address, month uint32, tokenAmount uint64) (*RedemptionRecord, error) {
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
	cycle, ok, err := e.state.PaymentCycleGet(vault.ID, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPaymentCycleNotFound
	}
	if tokenAmount > cycle.AvailableForRedemption {
		return nil, common.ErrInsufficientRedemptionCapacity
	}
	balance, err := e.ledger.BalanceOf(vault.TokenMint, redeemer)
	if err != nil {
		return nil, err
	}
	if balance < tokenAmount {
		return nil, common.ErrInsufficientTokenBalance
	}
	redemptionValue := tokenAmount

	if err := e.ledger.Burn(vault.TokenMint, redeemer, tokenAmount); err != nil {
		return nil, fmt.Errorf("receivable engine: burn: %w", err)
	}
	if err := e.ledger.Transfer(vault.PaymentMint, vault.Treasury, redeemer, redemptionValue); err != nil {
		return nil, fmt.Errorf("receivable engine: pay out: %w", err)
	}
	remaining, err := common.CheckedSub(cycle.AvailableForRedemption, tokenAmount)
	if err != nil {
		return nil, err
	}
	totalRedeemed, err := common.CheckedAdd(vault.TotalRedeemed, tokenAmount)
	if err != nil {
		return nil, err
	}
	cycle.AvailableForRedemption = remaining
	if err := e.state.PaymentCyclePut(cycle); err != nil {
		return nil, err
	}
	vault.TotalRedeemed = totalRedeemed
	if err := e.state.VaultPut(vault); err != nil {
		return nil, err
	}
	nonce, err := e.state.NextSequence(redemptionScope(vault.ID))
	if err != nil {
		return nil, err
	}
	now := e.now()
	record := &RedemptionRecord{
		ID:              RedemptionID(vault.ID, redeemer, nonce),
		Vault:           vault.ID,
		Redeemer:        redeemer,
		TokenAmount:     tokenAmount,
		RedemptionValue: redemptionValue,
		Month:           month,
		RedeemedAt:      now,
		Nonce:           nonce,
	}
	if err := e.state.RedemptionPut(record); err != nil {
		return nil, err
	}
	e.emit(events.TokensRedeemed{
		Vault:           vault.ID,
		Redeemer:        redeemer,
		TokenAmount:     tokenAmount,
		RedemptionValue: redemptionValue,
		Month:           month,
		RedeemedAt:      now,
	})
	return record.Clone(), nil
}
