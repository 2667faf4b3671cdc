package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cashflow/core/events"
	"cashflow/core/types"
	"cashflow/crypto"
	"cashflow/native/amm"
	"cashflow/native/bank"
	"cashflow/native/common"
	"cashflow/native/receivable"
	"cashflow/storage"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recordingObserver struct {
	mu    sync.Mutex
	codes []string
}

func (o *recordingObserver) ObserveTransition(_ string, code string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes = append(o.codes, code)
}

var (
	operator  = crypto.DeriveAddress([]byte("operator"))
	issuer    = crypto.DeriveAddress([]byte("issuer"))
	investor  = crypto.DeriveAddress([]byte("investor"))
	obligor   = crypto.DeriveAddress([]byte("obligor"))
	usdc      = crypto.DeriveAddress([]byte("usdc"))
	vaultName = "Equipment Lease 7"
)

type harness struct {
	t        *testing.T
	ledger   *Ledger
	emitter  *recordingEmitter
	observer *recordingObserver
	now      int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		ledger:   NewLedger(storage.NewMemDB()),
		emitter:  &recordingEmitter{},
		observer: &recordingObserver{},
		now:      1_700_000_000,
	}
	h.ledger.SetEmitter(h.emitter)
	h.ledger.SetObserver(h.observer)
	h.ledger.SetOperators([]crypto.Address{operator})
	h.ledger.SetNowFunc(func() int64 { return h.now })
	return h
}

func (h *harness) apply(txType types.TxType, caller crypto.Address, payload interface{}) (*Receipt, error) {
	h.t.Helper()
	tx, err := types.NewTransaction(txType, caller, payload)
	if err != nil {
		h.t.Fatalf("encode %s: %v", txType, err)
	}
	return h.ledger.Apply(context.Background(), tx)
}

func (h *harness) mustApply(txType types.TxType, caller crypto.Address, payload interface{}) *Receipt {
	h.t.Helper()
	receipt, err := h.apply(txType, caller, payload)
	if err != nil {
		h.t.Fatalf("apply %s: %v", txType, err)
	}
	return receipt
}

func (h *harness) balance(mint, owner crypto.Address) uint64 {
	h.t.Helper()
	bal, err := h.ledger.Balance(mint, owner)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal
}

func (h *harness) createVault() *receivable.Vault {
	h.t.Helper()
	receipt := h.mustApply(types.TxTypeCreateVault, issuer, types.CreateVaultPayload{
		Name:                  vaultName,
		Principal:             1_000_000,
		TotalExpectedInterest: 100_000,
		MonthlyPayment:        50_000,
		TotalMonths:           24,
		PaymentMint:           usdc,
	})
	vault, ok := receipt.Result.(*receivable.Vault)
	if !ok {
		h.t.Fatalf("unexpected result type %T", receipt.Result)
	}
	return vault
}

func TestLedgerEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	vault := h.createVault()
	if vault.TotalTokensMinted != 1_100_000 {
		t.Fatalf("unexpected total %d", vault.TotalTokensMinted)
	}

	h.mustApply(types.TxTypeFund, operator, types.FundPayload{Mint: usdc, Recipient: investor, Amount: 90_000})
	h.mustApply(types.TxTypeFund, operator, types.FundPayload{Mint: usdc, Recipient: obligor, Amount: 100_000})

	receipt := h.mustApply(types.TxTypePurchaseTokens, investor, types.PurchaseTokensPayload{
		Vault:              vault.ID,
		TokenAmount:        100_000,
		DiscountPercentage: 10,
	})
	if len(receipt.Events) != 1 || receipt.Events[0].Type != events.TypeTokensPurchased {
		t.Fatalf("unexpected receipt events %+v", receipt.Events)
	}
	if got := h.balance(usdc, vault.Treasury); got != 90_000 {
		t.Fatalf("treasury expected 90,000, got %d", got)
	}

	h.mustApply(types.TxTypeReceivePayment, obligor, types.ReceivePaymentPayload{Vault: vault.ID, Amount: 50_000})

	_, err := h.apply(types.TxTypeRedeem, investor, types.RedeemPayload{Vault: vault.ID, Month: 0, TokenAmount: 60_000})
	if !errors.Is(err, common.ErrInsufficientRedemptionCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	h.mustApply(types.TxTypeRedeem, investor, types.RedeemPayload{Vault: vault.ID, Month: 0, TokenAmount: 50_000})

	cycle, err := h.ledger.PaymentCycle(vault.ID, 0)
	if err != nil || cycle.AvailableForRedemption != 0 {
		t.Fatalf("unexpected cycle %+v (%v)", cycle, err)
	}
	stored, _ := h.ledger.Vault(vault.ID)
	if stored.TotalRedeemed != 50_000 || stored.CurrentMonth != 1 {
		t.Fatalf("unexpected vault %+v", stored)
	}
	if got := h.balance(vault.TokenMint, investor); got != 50_000 {
		t.Fatalf("investor tokens expected 50,000, got %d", got)
	}
	if got := h.balance(usdc, investor); got != 50_000 {
		t.Fatalf("investor cash expected 50,000, got %d", got)
	}
	redemptions, err := h.ledger.Redemptions(vault.ID)
	if err != nil || len(redemptions) != 1 {
		t.Fatalf("expected one redemption, got %d (%v)", len(redemptions), err)
	}
	sales, err := h.ledger.Sales(vault.ID)
	if err != nil || len(sales) != 1 {
		t.Fatalf("expected one sale, got %d (%v)", len(sales), err)
	}

	// vault created, purchase, payment, redemption; funding emits nothing
	if got := h.emitter.count(); got != 4 {
		t.Fatalf("expected 4 committed events, got %d", got)
	}
	if last := h.observer.codes[len(h.observer.codes)-2]; last != "InsufficientRedemptionCapacity" {
		t.Fatalf("observer expected failure code, got %q", last)
	}
}

func TestLedgerRollsBackPartialTransition(t *testing.T) {
	h := newHarness(t)
	vault := h.createVault()
	tokenA := vault.TokenMint
	receipt := h.mustApply(types.TxTypeCreatePool, issuer, types.CreatePoolPayload{
		Vault: vault.ID,
		MintA: tokenA,
		MintB: usdc,
		Name:  "senior",
	})
	pool := receipt.Result.(*amm.Pool)
	h.mustApply(types.TxTypeMintTokens, issuer, types.MintTokensPayload{Vault: vault.ID, Destination: investor, Amount: 400})
	h.mustApply(types.TxTypeFund, operator, types.FundPayload{Mint: usdc, Recipient: investor, Amount: 100})
	before := h.emitter.count()

	_, err := h.apply(types.TxTypeProvideLiquidity, investor, types.ProvideLiquidityPayload{
		Pool:         pool.ID,
		TokenAAmount: 400,
		TokenBAmount: 900,
	})
	if !errors.Is(err, bank.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := h.balance(tokenA, investor); got != 400 {
		t.Fatalf("token A debit must be rolled back, balance %d", got)
	}
	if got := h.balance(tokenA, pool.ReserveA); got != 0 {
		t.Fatalf("reserve must stay empty, got %d", got)
	}
	stored, _ := h.ledger.Pool(pool.ID)
	if stored.TotalLPShares != 0 || stored.TokenAReserve != 0 {
		t.Fatalf("pool must be unchanged, got %+v", stored)
	}
	if h.emitter.count() != before {
		t.Fatalf("failed transition must not emit events")
	}

	h.mustApply(types.TxTypeFund, operator, types.FundPayload{Mint: usdc, Recipient: investor, Amount: 800})
	receipt = h.mustApply(types.TxTypeProvideLiquidity, investor, types.ProvideLiquidityPayload{
		Pool:         pool.ID,
		TokenAAmount: 400,
		TokenBAmount: 900,
	})
	position := receipt.Result.(*amm.Position)
	if position.LPShares != 600 {
		t.Fatalf("expected 600 shares, got %d", position.LPShares)
	}
	positions, err := h.ledger.Positions(pool.ID)
	if err != nil || len(positions) != 1 {
		t.Fatalf("expected one position, got %d (%v)", len(positions), err)
	}

	_, err = h.apply(types.TxTypeWithdrawLiquidity, issuer, types.WithdrawLiquidityPayload{
		Position: types.FormatID(position.ID),
		LPShares: 1,
	})
	if !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized withdraw, got %v", err)
	}
	h.mustApply(types.TxTypeWithdrawLiquidity, investor, types.WithdrawLiquidityPayload{
		Position: types.FormatID(position.ID),
		LPShares: 300,
	})
	if got := h.balance(usdc, investor); got != 450 {
		t.Fatalf("expected 450 usdc back, got %d", got)
	}
}

func TestLedgerAuthorization(t *testing.T) {
	h := newHarness(t)
	vault := h.createVault()
	if _, err := h.apply(types.TxTypeFund, investor, types.FundPayload{Mint: usdc, Recipient: investor, Amount: 1}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized fund, got %v", err)
	}
	if _, err := h.apply(types.TxTypeFund, operator, types.FundPayload{Mint: vault.TokenMint, Recipient: investor, Amount: 1}); !errors.Is(err, common.ErrInvalidMint) {
		t.Fatalf("claim tokens must not be fundable, got %v", err)
	}
	if _, err := h.apply(types.TxTypeMintTokens, investor, types.MintTokensPayload{Vault: vault.ID, Destination: investor, Amount: 1}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if _, err := h.apply(types.TxTypeCreateVault, crypto.ZeroAddress, types.CreateVaultPayload{Name: "x", PaymentMint: usdc}); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected anonymous caller rejection, got %v", err)
	}
	tx := &types.Transaction{Type: types.TxType(0x7f), Caller: issuer}
	if _, err := h.ledger.Apply(context.Background(), tx); !errors.Is(err, common.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction, got %v", err)
	}
}

func TestLedgerPausedModule(t *testing.T) {
	h := newHarness(t)
	vault := h.createVault()
	h.ledger.SetPauses(common.NewStaticPauses([]string{"receivable"}))
	if _, err := h.apply(types.TxTypeMintTokens, issuer, types.MintTokensPayload{Vault: vault.ID, Destination: investor, Amount: 1}); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
}

func TestLedgerCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tx, _ := types.NewTransaction(types.TxTypeCreateVault, issuer, types.CreateVaultPayload{Name: "x", PaymentMint: usdc})
	if _, err := h.ledger.Apply(ctx, tx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	vaults, _ := h.ledger.Vaults()
	if len(vaults) != 0 {
		t.Fatalf("cancelled transition must not persist")
	}
}

type gatedEmitter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	mu      sync.Mutex
	created []string
}

func (g *gatedEmitter) Emit(evt events.Event) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	g.mu.Lock()
	defer g.mu.Unlock()
	if created, ok := evt.(events.VaultCreated); ok {
		g.created = append(g.created, created.Name)
	}
}

func TestLedgerPublishesOutsideLock(t *testing.T) {
	h := newHarness(t)
	gate := &gatedEmitter{entered: make(chan struct{}), release: make(chan struct{})}
	h.ledger.SetEmitter(gate)

	submit := func(name string) <-chan error {
		done := make(chan error, 1)
		tx, err := types.NewTransaction(types.TxTypeCreateVault, issuer, types.CreateVaultPayload{
			Name:                  name,
			Principal:             1_000,
			TotalExpectedInterest: 100,
			MonthlyPayment:        100,
			TotalMonths:           11,
			PaymentMint:           usdc,
		})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		go func() {
			_, err := h.ledger.Apply(context.Background(), tx)
			done <- err
		}()
		return done
	}

	first := submit("first")
	select {
	case <-gate.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("first transition never published")
	}

	second := submit("second")
	deadline := time.Now().Add(5 * time.Second)
	for {
		vaults, err := h.ledger.Vaults()
		if err != nil {
			t.Fatalf("vaults: %v", err)
		}
		if len(vaults) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second transition blocked behind a pending publish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case err := <-second:
		t.Fatalf("second transition returned before the first published: %v", err)
	default:
	}

	close(gate.release)
	for _, done := range []<-chan error{first, second} {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("transition did not finish")
		}
	}
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if len(gate.created) != 2 || gate.created[0] != "first" || gate.created[1] != "second" {
		t.Fatalf("events out of commit order: %v", gate.created)
	}
}
