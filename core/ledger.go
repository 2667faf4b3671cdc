package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"cashflow/core/events"
	"cashflow/core/state"
	"cashflow/core/types"
	"cashflow/crypto"
	"cashflow/native/amm"
	"cashflow/native/bank"
	"cashflow/native/common"
	"cashflow/native/receivable"
	"cashflow/storage"
)

// Observer receives the outcome of every applied transaction. code is empty
// on success and the stable error code otherwise.
type Observer interface {
	ObserveTransition(txType string, code string, elapsed time.Duration)
}

// Receipt describes a committed transition.
type Receipt struct {
	TxHash    string           `json:"txHash"`
	Type      string           `json:"type"`
	AppliedAt int64            `json:"appliedAt"`
	Events    []*events.Record `json:"events"`
	Result    interface{}      `json:"result,omitempty"`
}

// Ledger executes transitions one at a time against persistent state. Every
// transition runs inside a storage overlay: it commits completely or leaves
// no trace, and its events are only published after the commit.
type Ledger struct {
	mu        sync.RWMutex
	db        storage.Database
	emitter   events.Emitter
	pauses    common.PauseView
	observer  Observer
	operators map[crypto.Address]struct{}
	nowFn     func() int64

	// Committed transitions publish in ticket order without holding mu.
	flushMu   sync.Mutex
	flushCond *sync.Cond
	ticket    uint64
	serving   uint64
}

// NewLedger wraps db. Events are discarded until SetEmitter is called.
func NewLedger(db storage.Database) *Ledger {
	l := &Ledger{
		db:        db,
		emitter:   events.NoopEmitter{},
		operators: make(map[crypto.Address]struct{}),
		nowFn:     func() int64 { return time.Now().Unix() },
	}
	l.flushCond = sync.NewCond(&l.flushMu)
	return l
}

// SetEmitter configures the sink for committed events.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetPauses wires the operator pause switches into every engine.
func (l *Ledger) SetPauses(p common.PauseView) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pauses = p
}

// SetObserver registers a metrics hook.
func (l *Ledger) SetObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observer = o
}

// SetOperators replaces the identities allowed to fund accounts.
func (l *Ledger) SetOperators(addrs []crypto.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operators = make(map[crypto.Address]struct{}, len(addrs))
	for _, addr := range addrs {
		l.operators[addr] = struct{}{}
	}
}

// SetNowFunc overrides the clock. The clock is read once per transition.
func (l *Ledger) SetNowFunc(now func() int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

type execution struct {
	manager    *state.Manager
	bank       *bank.Ledger
	receivable *receivable.Engine
	amm        *amm.Engine
	buffer     *events.Buffer
	now        int64
}

func (l *Ledger) newExecution(db storage.Database, now int64) *execution {
	manager := state.NewManager(db)
	ledger := bank.NewLedger(manager)
	buffer := &events.Buffer{}
	clock := func() int64 { return now }

	rec := receivable.NewEngine()
	rec.SetState(manager)
	rec.SetLedger(ledger)
	rec.SetEmitter(buffer)
	rec.SetNowFunc(clock)
	rec.SetPauses(l.pauses)

	pools := amm.NewEngine()
	pools.SetState(manager)
	pools.SetLedger(ledger)
	pools.SetEmitter(buffer)
	pools.SetNowFunc(clock)
	pools.SetPauses(l.pauses)

	return &execution{manager: manager, bank: ledger, receivable: rec, amm: pools, buffer: buffer, now: now}
}

// Apply executes tx. On failure nothing is persisted and no event is emitted.
func (l *Ledger) Apply(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", common.ErrInvalidTransaction)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	l.mu.Lock()
	receipt, pending, err := l.applyLocked(tx)
	observer := l.observer
	emitter := l.emitter
	var ticket uint64
	if err == nil {
		ticket = l.ticket
		l.ticket++
	}
	l.mu.Unlock()
	if err == nil {
		l.publish(ticket, pending, emitter)
	}
	if observer != nil {
		observer.ObserveTransition(tx.Type.String(), common.Code(err), time.Since(start))
	}
	return receipt, err
}

// publish flushes a committed transition's events once every earlier commit
// has flushed.
func (l *Ledger) publish(ticket uint64, pending *events.Buffer, emitter events.Emitter) {
	l.flushMu.Lock()
	for l.serving != ticket {
		l.flushCond.Wait()
	}
	l.flushMu.Unlock()

	pending.Flush(emitter)

	l.flushMu.Lock()
	l.serving++
	l.flushCond.Broadcast()
	l.flushMu.Unlock()
}

func (l *Ledger) applyLocked(tx *types.Transaction) (*Receipt, *events.Buffer, error) {
	if !tx.Type.Valid() {
		return nil, nil, fmt.Errorf("%w: unsupported type %s", common.ErrInvalidTransaction, tx.Type)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrInvalidTransaction, err)
	}
	now := l.nowFn()
	overlay := storage.NewOverlay(l.db)
	exec := l.newExecution(overlay, now)

	result, err := l.dispatch(exec, tx)
	if err != nil {
		overlay.Discard()
		return nil, nil, err
	}
	if err := overlay.Commit(); err != nil {
		return nil, nil, fmt.Errorf("ledger: commit: %w", err)
	}
	emitted := exec.buffer.Events()

	receipt := &Receipt{
		TxHash:    hex.EncodeToString(hash),
		Type:      tx.Type.String(),
		AppliedAt: now,
		Events:    make([]*events.Record, 0, len(emitted)),
		Result:    result,
	}
	for _, evt := range emitted {
		receipt.Events = append(receipt.Events, evt.Event())
	}
	return receipt, exec.buffer, nil
}

func decode(tx *types.Transaction, out interface{}) error {
	if err := tx.DecodePayload(out); err != nil {
		return fmt.Errorf("%w: %s payload: %v", common.ErrInvalidTransaction, tx.Type, err)
	}
	return nil
}

func (l *Ledger) dispatch(exec *execution, tx *types.Transaction) (interface{}, error) {
	caller := tx.Caller
	if caller.IsZero() {
		return nil, common.ErrUnauthorized
	}
	switch tx.Type {
	case types.TxTypeCreateVault:
		var p types.CreateVaultPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		return exec.receivable.CreateVault(caller, receivable.VaultParams{
			Name:                  p.Name,
			Principal:             p.Principal,
			TotalExpectedInterest: p.TotalExpectedInterest,
			MonthlyPayment:        p.MonthlyPayment,
			TotalMonths:           p.TotalMonths,
			PaymentMint:           p.PaymentMint,
		})
	case types.TxTypeMintTokens:
		var p types.MintTokensPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		if err := exec.receivable.MintTokens(caller, p.Vault, p.Destination, p.Amount); err != nil {
			return nil, err
		}
		return exec.receivable.Vault(p.Vault)
	case types.TxTypePurchaseTokens:
		var p types.PurchaseTokensPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		return exec.receivable.PurchaseTokens(caller, p.Vault, p.TokenAmount, p.DiscountPercentage)
	case types.TxTypeReceivePayment:
		var p types.ReceivePaymentPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		return exec.receivable.ReceivePayment(caller, p.Vault, p.Amount)
	case types.TxTypeRedeem:
		var p types.RedeemPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		return exec.receivable.Redeem(caller, p.Vault, p.Month, p.TokenAmount)
	case types.TxTypeCreatePool:
		var p types.CreatePoolPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		return exec.amm.CreatePool(caller, p.Vault, p.MintA, p.MintB, p.Name)
	case types.TxTypeProvideLiquidity:
		var p types.ProvideLiquidityPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		return exec.amm.ProvideLiquidity(caller, p.Pool, p.TokenAAmount, p.TokenBAmount, p.ForwardDiscountPercentage)
	case types.TxTypeWithdrawLiquidity:
		var p types.WithdrawLiquidityPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		id, err := types.ParseID(p.Position)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidTransaction, err)
		}
		return exec.amm.WithdrawLiquidity(caller, id, p.LPShares)
	case types.TxTypeFund:
		var p types.FundPayload
		if err := decode(tx, &p); err != nil {
			return nil, err
		}
		if _, ok := l.operators[caller]; !ok {
			return nil, common.ErrUnauthorized
		}
		if p.Mint.IsZero() || p.Recipient.IsZero() {
			return nil, common.ErrInvalidMint
		}
		if claim, err := isClaimMint(exec.manager, p.Mint); err != nil {
			return nil, err
		} else if claim {
			return nil, common.ErrInvalidMint
		}
		if err := exec.bank.Mint(p.Mint, p.Recipient, p.Amount); err != nil {
			return nil, err
		}
		return exec.bank.BalanceOf(p.Mint, p.Recipient)
	default:
		return nil, fmt.Errorf("%w: unsupported type %s", common.ErrInvalidTransaction, tx.Type)
	}
}

// isClaimMint reports whether mint is a vault claim token. Those are only
// issued through the vault's own transitions.
func isClaimMint(manager *state.Manager, mint crypto.Address) (bool, error) {
	ids, err := manager.VaultIDs()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if receivable.MintAddress(id) == mint {
			return true, nil
		}
	}
	return false, nil
}
