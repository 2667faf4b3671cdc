package amm

import (
	"errors"
	"fmt"
	"time"

	"cashflow/core/events"
	"cashflow/crypto"
	"cashflow/native/common"
)

var (
	errNilState  = errors.New("amm engine: state not configured")
	errNilLedger = errors.New("amm engine: token ledger not configured")
)

type engineState interface {
	VaultExists(id crypto.Address) (bool, error)
	PoolGet(id crypto.Address) (*Pool, bool, error)
	PoolPut(*Pool) error
	PositionGet(id [32]byte) (*Position, bool, error)
	PositionPut(*Position) error
	NextSequence(scope []byte) (uint64, error)
}

// TokenLedger moves reserve balances between providers and pool accounts.
type TokenLedger interface {
	Transfer(mint, from, to crypto.Address, amount uint64) error
}

// Engine applies pool creation, deposit and withdrawal transitions.
type Engine struct {
	state   engineState
	ledger  TokenLedger
	emitter events.Emitter
	nowFn   func() int64
	pauses  common.PauseView
}

// NewEngine creates a liquidity engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedger configures the token ledger that holds reserves.
func (e *Engine) SetLedger(ledger TokenLedger) { e.ledger = ledger }

// SetPauses wires the operator pause switches.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine.
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

func (e *Engine) loadPool(id crypto.Address) (*Pool, error) {
	pool, ok, err := e.state.PoolGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPoolNotFound
	}
	return pool, nil
}

// CreatePool opens an empty pool for the vault. The first liquidity window
// starts at creation time.
func (e *Engine) CreatePool(authority, vault, mintA, mintB crypto.Address, name string) (*Pool, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	if authority.IsZero() {
		return nil, common.ErrUnauthorized
	}
	normalized, err := common.ValidateName(name)
	if err != nil {
		return nil, err
	}
	if mintA.IsZero() || mintB.IsZero() || mintA == mintB {
		return nil, common.ErrInvalidMint
	}
	exists, err := e.state.VaultExists(vault)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.ErrVaultNotFound
	}
	id := PoolAddress(vault, normalized)
	if _, found, err := e.state.PoolGet(id); err != nil {
		return nil, err
	} else if found {
		return nil, common.ErrPoolExists
	}
	reserveA, reserveB := ReserveAddresses(id)
	now := e.now()
	pool := &Pool{
		ID:           id,
		Vault:        vault,
		MintA:        mintA,
		MintB:        mintB,
		ReserveA:     reserveA,
		ReserveB:     reserveB,
		Authority:    authority,
		Name:         normalized,
		WindowStart:  now,
		WindowNumber: 0,
		CreatedAt:    now,
		IsActive:     true,
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	e.emit(events.PoolCreated{
		Pool:      pool.ID,
		Vault:     pool.Vault,
		TokenA:    pool.MintA,
		TokenB:    pool.MintB,
		Authority: pool.Authority,
		Name:      pool.Name,
		CreatedAt: pool.CreatedAt,
	})
	return pool.Clone(), nil
}

// ProvideLiquidity deposits both legs into the pool and records a new
// position. The liquidity window rolls over lazily on the first deposit after
// it expires.
func (e *Engine) ProvideLiquidity(provider, poolID crypto.Address, amountA, amountB uint64, discountPct uint8) (*Position, error) {
	if discountPct > 100 {
		return nil, common.ErrInvalidDiscount
	}
	if err := e.ready(true); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive {
		return nil, common.ErrPoolInactive
	}
	now := e.now()
	if _, err := rollWindow(pool, now); err != nil {
		return nil, err
	}
	shares, err := CalculateShares(pool.TokenAReserve, pool.TokenBReserve, pool.TotalLPShares, amountA, amountB)
	if err != nil {
		return nil, err
	}
	if pool.TotalLPShares == 0 && shares == 0 {
		return nil, common.ErrInsufficientInitialLiquidity
	}
	reserveA, err := common.CheckedAdd(pool.TokenAReserve, amountA)
	if err != nil {
		return nil, err
	}
	reserveB, err := common.CheckedAdd(pool.TokenBReserve, amountB)
	if err != nil {
		return nil, err
	}
	total, err := common.CheckedAdd(pool.TotalLPShares, shares)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(pool.MintA, provider, pool.ReserveA, amountA); err != nil {
		return nil, fmt.Errorf("amm engine: deposit token a: %w", err)
	}
	if err := e.ledger.Transfer(pool.MintB, provider, pool.ReserveB, amountB); err != nil {
		return nil, fmt.Errorf("amm engine: deposit token b: %w", err)
	}
	pool.TokenAReserve = reserveA
	pool.TokenBReserve = reserveB
	pool.TotalLPShares = total
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	nonce, err := e.state.NextSequence(positionScope(pool.ID))
	if err != nil {
		return nil, err
	}
	position := &Position{
		ID:                        PositionID(pool.ID, provider, nonce),
		Pool:                      pool.ID,
		Provider:                  provider,
		TokenAAmount:              amountA,
		TokenBAmount:              amountB,
		LPShares:                  shares,
		ForwardDiscountPercentage: discountPct,
		WindowNumber:              pool.WindowNumber,
		ProvidedAt:                now,
		Nonce:                     nonce,
	}
	if err := e.state.PositionPut(position); err != nil {
		return nil, err
	}
	e.emit(events.LiquidityProvided{
		Pool:                      pool.ID,
		Provider:                  provider,
		Position:                  position.ID,
		TokenAAmount:              amountA,
		TokenBAmount:              amountB,
		LPShares:                  shares,
		ForwardDiscountPercentage: discountPct,
		WindowNumber:              pool.WindowNumber,
	})
	return position.Clone(), nil
}

// Withdrawal summarises the reserves released by WithdrawLiquidity.
type Withdrawal struct {
	Position     *Position
	LPShares     uint64
	TokenAAmount uint64
	TokenBAmount uint64
}

// WithdrawLiquidity burns shares from the caller's position and returns the
// proportional slice of both reserves.
func (e *Engine) WithdrawLiquidity(provider crypto.Address, positionID [32]byte, shares uint64) (*Withdrawal, error) {
	if err := e.ready(true); err != nil {
		return nil, err
	}
	position, ok, err := e.state.PositionGet(positionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPositionNotFound
	}
	if position.Provider != provider {
		return nil, common.ErrUnauthorized
	}
	pool, err := e.loadPool(position.Pool)
	if err != nil {
		return nil, err
	}
	if !pool.IsActive {
		return nil, common.ErrPoolInactive
	}
	if pool.TotalLPShares == 0 {
		return nil, common.ErrZeroLiquidityPool
	}
	if position.LPShares < shares {
		return nil, common.ErrInsufficientLPShares
	}
	outA, outB, err := CalculateWithdrawal(pool.TokenAReserve, pool.TokenBReserve, pool.TotalLPShares, shares)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(pool.MintA, pool.ReserveA, provider, outA); err != nil {
		return nil, fmt.Errorf("amm engine: release token a: %w", err)
	}
	if err := e.ledger.Transfer(pool.MintB, pool.ReserveB, provider, outB); err != nil {
		return nil, fmt.Errorf("amm engine: release token b: %w", err)
	}
	if pool.TokenAReserve, err = common.CheckedSub(pool.TokenAReserve, outA); err != nil {
		return nil, err
	}
	if pool.TokenBReserve, err = common.CheckedSub(pool.TokenBReserve, outB); err != nil {
		return nil, err
	}
	if pool.TotalLPShares, err = common.CheckedSub(pool.TotalLPShares, shares); err != nil {
		return nil, err
	}
	if position.LPShares, err = common.CheckedSub(position.LPShares, shares); err != nil {
		return nil, err
	}
	if err := e.state.PoolPut(pool); err != nil {
		return nil, err
	}
	if err := e.state.PositionPut(position); err != nil {
		return nil, err
	}
	e.emit(events.LiquidityWithdrawn{
		Pool:         pool.ID,
		Provider:     provider,
		Position:     position.ID,
		LPShares:     shares,
		TokenAAmount: outA,
		TokenBAmount: outB,
	})
	return &Withdrawal{
		Position:     position.Clone(),
		LPShares:     shares,
		TokenAAmount: outA,
		TokenBAmount: outB,
	}, nil
}

// QuoteShares previews the shares a deposit would mint at current reserves,
// ignoring window rollover.
func (e *Engine) QuoteShares(poolID crypto.Address, amountA, amountB uint64) (uint64, error) {
	if err := e.ready(false); err != nil {
		return 0, err
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return 0, err
	}
	return CalculateShares(pool.TokenAReserve, pool.TokenBReserve, pool.TotalLPShares, amountA, amountB)
}

// Pool returns a copy of the stored pool.
func (e *Engine) Pool(id crypto.Address) (*Pool, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	return e.loadPool(id)
}

// Position returns a copy of the stored position.
func (e *Engine) Position(id [32]byte) (*Position, error) {
	if err := e.ready(false); err != nil {
		return nil, err
	}
	position, ok, err := e.state.PositionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrPositionNotFound
	}
	return position, nil
}

func positionScope(pool crypto.Address) []byte {
	return append([]byte("lp_position:"), pool[:]...)
}
