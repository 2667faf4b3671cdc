package receivable

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"cashflow/core/events"
	"cashflow/crypto"
	"cashflow/native/common"
)

type mockState struct {
	vaults      map[crypto.Address]*Vault
	cycles      map[[32]byte]*PaymentCycle
	sales       []*PrimarySale
	redemptions []*RedemptionRecord
	sequences   map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		vaults:    make(map[crypto.Address]*Vault),
		cycles:    make(map[[32]byte]*PaymentCycle),
		sequences: make(map[string]uint64),
	}
}

func (m *mockState) VaultGet(id crypto.Address) (*Vault, bool, error) {
	v, ok := m.vaults[id]
	if !ok {
		return nil, false, nil
	}
	return v.Clone(), true, nil
}

func (m *mockState) VaultPut(v *Vault) error {
	m.vaults[v.ID] = v.Clone()
	return nil
}

func (m *mockState) PaymentCycleGet(vault crypto.Address, month uint32) (*PaymentCycle, bool, error) {
	c, ok := m.cycles[PaymentCycleID(vault, month)]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (m *mockState) PaymentCyclePut(c *PaymentCycle) error {
	m.cycles[PaymentCycleID(c.Vault, c.Month)] = c.Clone()
	return nil
}

func (m *mockState) PrimarySalePut(s *PrimarySale) error {
	m.sales = append(m.sales, s.Clone())
	return nil
}

func (m *mockState) RedemptionPut(r *RedemptionRecord) error {
	m.redemptions = append(m.redemptions, r.Clone())
	return nil
}

func (m *mockState) NextSequence(scope []byte) (uint64, error) {
	n := m.sequences[string(scope)]
	m.sequences[string(scope)] = n + 1
	return n, nil
}

var errMockFunds = errors.New("mock ledger: insufficient funds")

type mockLedger struct {
	balances map[crypto.Address]map[crypto.Address]uint64
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[crypto.Address]map[crypto.Address]uint64)}
}

func (l *mockLedger) account(mint crypto.Address) map[crypto.Address]uint64 {
	if l.balances[mint] == nil {
		l.balances[mint] = make(map[crypto.Address]uint64)
	}
	return l.balances[mint]
}

func (l *mockLedger) Mint(mint, to crypto.Address, amount uint64) error {
	l.account(mint)[to] += amount
	return nil
}

func (l *mockLedger) Burn(mint, from crypto.Address, amount uint64) error {
	acct := l.account(mint)
	if acct[from] < amount {
		return errMockFunds
	}
	acct[from] -= amount
	return nil
}

func (l *mockLedger) Transfer(mint, from, to crypto.Address, amount uint64) error {
	acct := l.account(mint)
	if acct[from] < amount {
		return errMockFunds
	}
	acct[from] -= amount
	acct[to] += amount
	return nil
}

func (l *mockLedger) BalanceOf(mint, owner crypto.Address) (uint64, error) {
	return l.account(mint)[owner], nil
}

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func testAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, len(addr)))
	return addr
}

var (
	authority   = testAddress(0x01)
	investor    = testAddress(0x02)
	payer       = testAddress(0x03)
	paymentMint = testAddress(0x10)
)

type fixture struct {
	engine  *Engine
	state   *mockState
	ledger  *mockLedger
	emitter *captureEmitter
	vault   *Vault
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine:  NewEngine(),
		state:   newMockState(),
		ledger:  newMockLedger(),
		emitter: &captureEmitter{},
	}
	f.engine.SetState(f.state)
	f.engine.SetLedger(f.ledger)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	vault, err := f.engine.CreateVault(authority, VaultParams{
		Name:                  "Solar Receivables",
		Principal:             1_000_000,
		TotalExpectedInterest: 100_000,
		MonthlyPayment:        50_000,
		TotalMonths:           24,
		PaymentMint:           paymentMint,
	})
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}
	f.vault = vault
	return f
}

func TestCreateVaultInitialisesRecord(t *testing.T) {
	f := newFixture(t)
	v := f.vault
	if v.TotalTokensMinted != 1_100_000 {
		t.Fatalf("expected total 1,100,000, got %d", v.TotalTokensMinted)
	}
	if v.CurrentMonth != 0 || v.TotalRedeemed != 0 || !v.IsActive {
		t.Fatalf("unexpected initial state: %+v", v)
	}
	if v.CreatedAt != 1_700_000_000 {
		t.Fatalf("unexpected created at %d", v.CreatedAt)
	}
	if v.ID != VaultAddress("Solar Receivables") || v.TokenMint != MintAddress(v.ID) || v.Treasury != TreasuryAddress(v.ID) {
		t.Fatalf("derived addresses mismatch")
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType() != events.TypeVaultCreated {
		t.Fatalf("expected vault created event, got %v", f.emitter.events)
	}

	_, err := f.engine.CreateVault(authority, VaultParams{Name: "Solar Receivables", PaymentMint: paymentMint})
	if !errors.Is(err, common.ErrVaultExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}

func TestCreateVaultOverflow(t *testing.T) {
	engine := NewEngine()
	engine.SetState(newMockState())
	engine.SetLedger(newMockLedger())
	_, err := engine.CreateVault(authority, VaultParams{
		Name:                  "overflow",
		Principal:             ^uint64(0),
		TotalExpectedInterest: 1,
		PaymentMint:           paymentMint,
	})
	if !errors.Is(err, common.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMintTokensCeiling(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.MintTokens(authority, f.vault.ID, investor, 1_100_000); err != nil {
		t.Fatalf("mint at ceiling: %v", err)
	}
	if err := f.engine.MintTokens(authority, f.vault.ID, investor, 1_100_001); !errors.Is(err, common.ErrExceedsTokenSupply) {
		t.Fatalf("expected ceiling error, got %v", err)
	}
	if err := f.engine.MintTokens(investor, f.vault.ID, investor, 1); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	balance, _ := f.ledger.BalanceOf(f.vault.TokenMint, investor)
	if balance != 1_100_000 {
		t.Fatalf("unexpected balance %d", balance)
	}
}

func TestPurchasePrice(t *testing.T) {
	cases := []struct {
		amount uint64
		pct    uint8
		want   uint64
		err    error
	}{
		{amount: 100_000, pct: 10, want: 90_000},
		{amount: 100_000, pct: 0, want: 100_000},
		{amount: 100_000, pct: 100, want: 0},
		{amount: 999, pct: 15, want: 850},
		{amount: ^uint64(0), pct: 50, want: ^uint64(0) - (^uint64(0))/2},
		{amount: 100, pct: 101, err: common.ErrInvalidDiscount},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d@%d", tc.amount, tc.pct), func(t *testing.T) {
			got, err := PurchasePrice(tc.amount, tc.pct)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestPurchaseTokens(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(paymentMint, investor, 95_000)

	sale, err := f.engine.PurchaseTokens(investor, f.vault.ID, 100_000, 10)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if sale.PurchasePrice != 90_000 || sale.Nonce != 0 {
		t.Fatalf("unexpected sale %+v", sale)
	}
	if bal, _ := f.ledger.BalanceOf(paymentMint, f.vault.Treasury); bal != 90_000 {
		t.Fatalf("treasury expected 90,000, got %d", bal)
	}
	if bal, _ := f.ledger.BalanceOf(f.vault.TokenMint, investor); bal != 100_000 {
		t.Fatalf("investor expected 100,000 tokens, got %d", bal)
	}
	if _, err := f.engine.PurchaseTokens(investor, f.vault.ID, 100_000, 101); !errors.Is(err, common.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	if _, err := f.engine.PurchaseTokens(investor, f.vault.ID, 100_000, 10); !errors.Is(err, errMockFunds) {
		t.Fatalf("expected funding failure, got %v", err)
	}
	if len(f.state.sales) != 1 {
		t.Fatalf("expected one recorded sale, got %d", len(f.state.sales))
	}
}

func TestReceivePaymentAndRedeem(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(paymentMint, payer, 50_000*30)
	if err := f.engine.MintTokens(authority, f.vault.ID, investor, 1_100_000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := f.engine.ReceivePayment(payer, f.vault.ID, 49_999); !errors.Is(err, common.ErrInvalidPaymentAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	cycle, err := f.engine.ReceivePayment(payer, f.vault.ID, 50_000)
	if err != nil {
		t.Fatalf("receive payment: %v", err)
	}
	if cycle.Month != 0 || cycle.AvailableForRedemption != 50_000 {
		t.Fatalf("unexpected cycle %+v", cycle)
	}
	vault, _ := f.engine.Vault(f.vault.ID)
	if vault.CurrentMonth != 1 {
		t.Fatalf("expected month 1, got %d", vault.CurrentMonth)
	}

	if _, err := f.engine.Redeem(investor, f.vault.ID, 0, 60_000); !errors.Is(err, common.ErrInsufficientRedemptionCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if _, err := f.engine.Redeem(investor, f.vault.ID, 1, 1); !errors.Is(err, common.ErrPaymentCycleNotFound) {
		t.Fatalf("expected missing cycle, got %v", err)
	}
	record, err := f.engine.Redeem(investor, f.vault.ID, 0, 50_000)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if record.RedemptionValue != 50_000 || record.Month != 0 {
		t.Fatalf("unexpected record %+v", record)
	}
	cycle, _ = f.engine.PaymentCycle(f.vault.ID, 0)
	if cycle.AvailableForRedemption != 0 {
		t.Fatalf("expected exhausted cycle, got %d", cycle.AvailableForRedemption)
	}
	if _, err := f.engine.Redeem(investor, f.vault.ID, 0, 1); !errors.Is(err, common.ErrInsufficientRedemptionCapacity) {
		t.Fatalf("expected capacity error after exhaustion, got %v", err)
	}
	vault, _ = f.engine.Vault(f.vault.ID)
	if vault.TotalRedeemed != 50_000 {
		t.Fatalf("unexpected total redeemed %d", vault.TotalRedeemed)
	}
	if bal, _ := f.ledger.BalanceOf(paymentMint, investor); bal != 50_000 {
		t.Fatalf("investor expected 50,000 paid out, got %d", bal)
	}
	if bal, _ := f.ledger.BalanceOf(f.vault.TokenMint, investor); bal != 1_050_000 {
		t.Fatalf("investor expected 1,050,000 tokens, got %d", bal)
	}
}

func TestRedeemRequiresTokenBalance(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(paymentMint, payer, 50_000)
	if _, err := f.engine.ReceivePayment(payer, f.vault.ID, 50_000); err != nil {
		t.Fatalf("receive payment: %v", err)
	}
	if err := f.engine.MintTokens(authority, f.vault.ID, investor, 10_000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.engine.Redeem(investor, f.vault.ID, 0, 20_000); !errors.Is(err, common.ErrInsufficientTokenBalance) {
		t.Fatalf("expected balance error, got %v", err)
	}
}

func TestVaultMaturesAfterFinalPayment(t *testing.T) {
	f := newFixture(t)
	f.ledger.Mint(paymentMint, payer, 50_000*25)
	for i := 0; i < 24; i++ {
		if _, err := f.engine.ReceivePayment(payer, f.vault.ID, 50_000); err != nil {
			t.Fatalf("payment %d: %v", i, err)
		}
	}
	if _, err := f.engine.ReceivePayment(payer, f.vault.ID, 50_000); !errors.Is(err, common.ErrVaultMatured) {
		t.Fatalf("expected matured vault, got %v", err)
	}
	vault, _ := f.engine.Vault(f.vault.ID)
	if vault.CurrentMonth != 24 {
		t.Fatalf("expected 24 months, got %d", vault.CurrentMonth)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(common.NewStaticPauses([]string{moduleName}))
	if err := f.engine.MintTokens(authority, f.vault.ID, investor, 1); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected paused module, got %v", err)
	}
	if _, err := f.engine.Vault(f.vault.ID); err != nil {
		t.Fatalf("reads must stay available: %v", err)
	}
}
