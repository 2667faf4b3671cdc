package receivable

import (
	"errors"
	"fmt"
	"time"

	"cashflow/core/events"
	"cashflow/crypto"
	"cashflow/native/common"
)

var (
	errNilState  = errors.New("receivable engine: state not configured")
	errNilLedger = errors.New("receivable engine: token ledger not configured")
)

type engineState interface {
	VaultGet(id crypto.Address) (*Vault, bool, error)
	VaultPut(*Vault) error
	PaymentCycleGet(vault crypto.Address, month uint32) (*PaymentCycle, bool, error)
	PaymentCyclePut(*PaymentCycle) error
	PrimarySalePut(*PrimarySale) error
	RedemptionPut(*RedemptionRecord) error
	NextSequence(scope []byte) (uint64, error)
}

// TokenLedger moves balances between accounts. Engines never cache balances;
// every check reads through this interface.
type TokenLedger interface {
	Mint(mint, to crypto.Address, amount uint64) error
	Burn(mint, from crypto.Address, amount uint64) error
	Transfer(mint, from, to crypto.Address, amount uint64) error
	BalanceOf(mint, owner crypto.Address) (uint64, error)
}

// Engine applies vault lifecycle, primary market, payment and redemption
// transitions against the configured state and token ledger.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
}

// NewEngine creates a receivable engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger that holds balances.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetPauses wires the operator pause switches.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready(mutating bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if !mutating {
		return nil
	}
	if e.ledger == nil {
		return errNilLedger
	}
	return common.Guard(e.pauses, moduleName)
}

func (e *Engine) loadVault(id crypto.Address) (*Vault, error) {
	vault, ok, err := e.state.VaultGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrVaultNotFound
	}
	return vault, nil
}

// CreateVault registers a new receivable vault owned by authority. The claim
// token supply ceiling is fixed to principal plus expected interest.
func (e *Engine) CreateVault(authority crypto.Address, params VaultParams) (*Vault, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if authority.IsZero() {
		return nil, common.ErrUnauthorized
	}
	name, err := common.ValidateName(params.Name)
	if err != nil {
		return nil, err
	}
	if params.PaymentMint.IsZero() {
		return nil, common.ErrInvalidMint
	}
	total, err := common.CheckedAdd(params.Principal, params.TotalExpectedInterest)
	if err != nil {
		return nil, fmt.Errorf("receivable engine: total supply: %w", err)
	}
	id := VaultAddress(name)
	if _, exists, err := e.state.VaultGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, common.ErrVaultExists
	}
	now := e.now()
	vault := &Vault{
		ID:                    id,
		Authority:             authority,
		TokenMint:             MintAddress(id),
		Treasury:              TreasuryAddress(id),
		PaymentMint:           params.PaymentMint,
		Name:                  name,
		Principal:             params.Principal,
		TotalExpectedInterest: params.TotalExpectedInterest,
		TotalTokensMinted:     total,
		MonthlyPayment:        params.MonthlyPayment,
		TotalMonths:           params.TotalMonths,
		CurrentMonth:          0,
		TotalRedeemed:         0,
		CreatedAt:             now,
		IsActive:              true,
	}
	if vault.TokenMint == vault.PaymentMint {
		return nil, common.ErrInvalidMint
	}
	if err := e.state.VaultPut(vault); err != nil {
		return nil, err
	}
	e.emit(events.VaultCreated{
		Vault:                 vault.ID,
		Authority:             vault.Authority,
		Name:                  vault.Name,
		Principal:             vault.Principal,
		TotalExpectedInterest: vault.TotalExpectedInterest,
		TotalTokensMinted:     vault.TotalTokensMinted,
		MonthlyPayment:        vault.MonthlyPayment,
		TotalMonths:           vault.TotalMonths,
		CreatedAt:             vault.CreatedAt,
	})
	return vault.Clone(), nil
}

// MintTokens issues claim tokens to destination. Only the vault authority may
// mint. The ceiling is checked per call against the fixed total; cumulative
// issuance is not tracked.
func (e *Engine) MintTokens(caller, vaultID, destination crypto.Address, amount uint64) error {
	if err := e.ready(true); err != nil {
		return err
	}
	vault, err := e.loadVault(vaultID)
	if err != nil {
		return err
	}
	if caller != vault.Authority {
		return common.ErrUnauthorized
	}
	if !vault.IsActive {
		return common.ErrVaultInactive
	}
	if amount > vault.TotalTokensMinted {
		return common.ErrExceedsTokenSupply
	}
	if err := e.ledger.Mint(vault.TokenMint, destination, amount); err != nil {
		return fmt.Errorf("receivable engine: mint: %w", err)
	}
	e.emit(events.TokensMinted{Vault: vault.ID, Recipient: destination, Amount: amount})
	return nil
}

// Vault returns a copy of the stored vault.
func (e *Engine) Vault(id crypto.Address) (*Vault, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	return e.loadVault(id)
}

// PaymentCycle returns the recorded cycle for the given month.
func (e *Engine) PaymentCycle(vaultID crypto.Address, month uint32) (*PaymentCycle, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	cycle, ok, err := e.state.PaymentCycleGet(vaultID, month)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPaymentCycleNotFound
	}
	return cycle, nil
}
