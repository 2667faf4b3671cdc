package common

import "errors"

// Business rule violations surfaced by the receivable and liquidity engines.
// Every rejected transition returns exactly one of these (possibly wrapped) and
// leaves no partial effect behind.
var (
	ErrVaultInactive                  = errors.New("vault is not active")
	ErrVaultMatured                   = errors.New("vault has matured")
	ErrExceedsTokenSupply             = errors.New("exceeds total token supply")
	ErrInvalidDiscount                = errors.New("invalid discount percentage")
	ErrInvalidPaymentAmount           = errors.New("invalid payment amount")
	ErrInsufficientRedemptionCapacity = errors.New("insufficient redemption capacity")
	ErrInsufficientTokenBalance       = errors.New("insufficient token balance")
	ErrPoolInactive                   = errors.New("pool is not active")
	ErrInsufficientLPShares           = errors.New("insufficient lp shares")
	ErrZeroLiquidityPool              = errors.New("zero liquidity pool")
	ErrArithmeticOverflow             = errors.New("arithmetic overflow")
)

// Host boundary failures: identity, record addressing and operator controls.
var (
	ErrUnauthorized                 = errors.New("caller not authorized")
	ErrVaultNotFound                = errors.New("vault not found")
	ErrVaultExists                  = errors.New("vault already exists")
	ErrPaymentCycleNotFound         = errors.New("payment cycle not found")
	ErrPaymentCycleExists           = errors.New("payment cycle already recorded")
	ErrPoolNotFound                 = errors.New("pool not found")
	ErrPoolExists                   = errors.New("pool already exists")
	ErrPositionNotFound             = errors.New("lp position not found")
	ErrInvalidName                  = errors.New("invalid name")
	ErrInvalidMint                  = errors.New("invalid mint address")
	ErrInsufficientInitialLiquidity = errors.New("initial liquidity mints zero shares")
	ErrModulePaused                 = errors.New("module paused")
	ErrInvalidTransaction           = errors.New("invalid transaction")
	ErrInsufficientFunds            = errors.New("insufficient funds")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrVaultInactive, "VaultInactive"},
	{ErrVaultMatured, "VaultMatured"},
	{ErrExceedsTokenSupply, "ExceedsTokenSupply"},
	{ErrInvalidDiscount, "InvalidDiscount"},
	{ErrInvalidPaymentAmount, "InvalidPaymentAmount"},
	{ErrInsufficientRedemptionCapacity, "InsufficientRedemptionCapacity"},
	{ErrInsufficientTokenBalance, "InsufficientTokenBalance"},
	{ErrPoolInactive, "PoolInactive"},
	{ErrInsufficientLPShares, "InsufficientLPShares"},
	{ErrZeroLiquidityPool, "ZeroLiquidityPool"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrVaultNotFound, "VaultNotFound"},
	{ErrVaultExists, "VaultExists"},
	{ErrPaymentCycleNotFound, "PaymentCycleNotFound"},
	{ErrPaymentCycleExists, "PaymentCycleExists"},
	{ErrPoolNotFound, "PoolNotFound"},
	{ErrPoolExists, "PoolExists"},
	{ErrPositionNotFound, "PositionNotFound"},
	{ErrInvalidName, "InvalidName"},
	{ErrInvalidMint, "InvalidMint"},
	{ErrInsufficientInitialLiquidity, "InsufficientInitialLiquidity"},
	{ErrModulePaused, "ModulePaused"},
	{ErrInvalidTransaction, "InvalidTransaction"},
	{ErrInsufficientFunds, "InsufficientFunds"},
}

// Code returns the stable identifier for a known error kind, or "Internal" when
// err does not wrap any of them. A nil error maps to the empty string.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "Internal"
}
