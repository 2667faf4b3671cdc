package amm

import (
	"bytes"
	"errors"
	"testing"

	"cashflow/core/events"
	"cashflow/crypto"
	"cashflow/native/common"
)

type mockState struct {
	vaults    map[crypto.Address]bool
	pools     map[crypto.Address]*Pool
	positions map[[32]byte]*Position
	sequences map[string]uint64
}

func newMockState() *mockState {
	return &mockState{
		vaults:    make(map[crypto.Address]bool),
		pools:     make(map[crypto.Address]*Pool),
		positions: make(map[[32]byte]*Position),
		sequences: make(map[string]uint64),
	}
}

func (m *mockState) VaultExists(id crypto.Address) (bool, error) { return m.vaults[id], nil }

func (m *mockState) PoolGet(id crypto.Address) (*Pool, bool, error) {
	p, ok := m.pools[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PoolPut(p *Pool) error {
	m.pools[p.ID] = p.Clone()
	return nil
}

func (m *mockState) PositionGet(id [32]byte) (*Position, bool, error) {
	p, ok := m.positions[id]
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

func (m *mockState) PositionPut(p *Position) error {
	m.positions[p.ID] = p.Clone()
	return nil
}

func (m *mockState) NextSequence(scope []byte) (uint64, error) {
	n := m.sequences[string(scope)]
	m.sequences[string(scope)] = n + 1
	return n, nil
}

var errMockFunds = errors.New("mock ledger: insufficient funds")

type mockLedger struct {
	balances map[[2]crypto.Address]uint64
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[[2]crypto.Address]uint64)}
}

func (l *mockLedger) fund(mint, owner crypto.Address, amount uint64) {
	l.balances[[2]crypto.Address{mint, owner}] += amount
}

func (l *mockLedger) balance(mint, owner crypto.Address) uint64 {
	return l.balances[[2]crypto.Address{mint, owner}]
}

func (l *mockLedger) Transfer(mint, from, to crypto.Address, amount uint64) error {
	fromKey := [2]crypto.Address{mint, from}
	if l.balances[fromKey] < amount {
		return errMockFunds
	}
	l.balances[fromKey] -= amount
	l.balances[[2]crypto.Address{mint, to}] += amount
	return nil
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
	authority = testAddress(0x01)
	alice     = testAddress(0x02)
	bob       = testAddress(0x03)
	vaultID   = testAddress(0x20)
	mintA     = testAddress(0x30)
	mintB     = testAddress(0x31)
)

const t0 int64 = 1_700_000_000

type fixture struct {
	engine  *Engine
	state   *mockState
	ledger  *mockLedger
	emitter *captureEmitter
	now     int64
	pool    *Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		engine:  NewEngine(),
		state:   newMockState(),
		ledger:  newMockLedger(),
		emitter: &captureEmitter{},
		now:     t0,
	}
	f.state.vaults[vaultID] = true
	f.engine.SetState(f.state)
	f.engine.SetLedger(f.ledger)
	f.engine.SetEmitter(f.emitter)
	f.engine.SetNowFunc(func() int64 { return f.now })
	pool, err := f.engine.CreatePool(authority, vaultID, mintA, mintB, "senior")
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	f.pool = pool
	for _, who := range []crypto.Address{alice, bob} {
		f.ledger.fund(mintA, who, 1_000_000)
		f.ledger.fund(mintB, who, 1_000_000)
	}
	return f
}

func TestCreatePool(t *testing.T) {
	f := newFixture(t)
	if f.pool.WindowStart != t0 || f.pool.WindowNumber != 0 || !f.pool.IsActive {
		t.Fatalf("unexpected pool %+v", f.pool)
	}
	if f.pool.TotalLPShares != 0 || f.pool.TokenAReserve != 0 || f.pool.TokenBReserve != 0 {
		t.Fatalf("expected empty pool")
	}
	if _, err := f.engine.CreatePool(authority, vaultID, mintA, mintB, "senior"); !errors.Is(err, common.ErrPoolExists) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if _, err := f.engine.CreatePool(authority, testAddress(0x99), mintA, mintB, "other"); !errors.Is(err, common.ErrVaultNotFound) {
		t.Fatalf("expected missing vault, got %v", err)
	}
	if _, err := f.engine.CreatePool(authority, vaultID, mintA, mintA, "same"); !errors.Is(err, common.ErrInvalidMint) {
		t.Fatalf("expected invalid mint, got %v", err)
	}
}

func TestProvideLiquidityShareMath(t *testing.T) {
	f := newFixture(t)
	first, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 400, 900, 5)
	if err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if first.LPShares != 600 {
		t.Fatalf("expected 600 shares, got %d", first.LPShares)
	}
	second, err := f.engine.ProvideLiquidity(bob, f.pool.ID, 200, 100, 0)
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if second.LPShares != 66 {
		t.Fatalf("expected 66 shares, got %d", second.LPShares)
	}
	pool, _ := f.engine.Pool(f.pool.ID)
	if pool.TokenAReserve != 600 || pool.TokenBReserve != 1000 || pool.TotalLPShares != 666 {
		t.Fatalf("unexpected pool totals %+v", pool)
	}
	if first.ID == second.ID {
		t.Fatalf("positions must not be merged")
	}
	if got := f.ledger.balance(mintA, pool.ReserveA); got != 600 {
		t.Fatalf("reserve account A expected 600, got %d", got)
	}
	quote, err := f.engine.QuoteShares(f.pool.ID, 300, 500)
	if err != nil || quote != 333 {
		t.Fatalf("unexpected quote %d (%v)", quote, err)
	}
}

func TestProvideLiquidityRejections(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 1, 1, 101); !errors.Is(err, common.ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
	if _, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 0, 900, 0); !errors.Is(err, common.ErrInsufficientInitialLiquidity) {
		t.Fatalf("expected zero-share rejection, got %v", err)
	}
	if _, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 2_000_000, 1, 0); !errors.Is(err, errMockFunds) {
		t.Fatalf("expected ledger failure, got %v", err)
	}
	if _, err := f.engine.ProvideLiquidity(alice, testAddress(0x77), 1, 1, 0); !errors.Is(err, common.ErrPoolNotFound) {
		t.Fatalf("expected missing pool, got %v", err)
	}
}

func TestWindowRollover(t *testing.T) {
	f := newFixture(t)
	f.now = t0 + int64(WindowDuration)
	pos, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 100, 100, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pos.WindowNumber != 0 {
		t.Fatalf("window must not roll at exactly the boundary, got %d", pos.WindowNumber)
	}
	f.now = t0 + int64(WindowDuration) + 1
	pos, err = f.engine.ProvideLiquidity(alice, f.pool.ID, 100, 100, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pos.WindowNumber != 1 {
		t.Fatalf("expected window 1, got %d", pos.WindowNumber)
	}
	pool, _ := f.engine.Pool(f.pool.ID)
	if pool.WindowStart != f.now {
		t.Fatalf("expected window start %d, got %d", f.now, pool.WindowStart)
	}

	f.now = pool.WindowStart - 1
	if _, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 100, 100, 0); !errors.Is(err, common.ErrArithmeticOverflow) {
		t.Fatalf("expected clock regression to fail, got %v", err)
	}
}

func TestWithdrawLiquidity(t *testing.T) {
	f := newFixture(t)
	pos, err := f.engine.ProvideLiquidity(alice, f.pool.ID, 400, 900, 0)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.engine.WithdrawLiquidity(bob, pos.ID, 1); !errors.Is(err, common.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.engine.WithdrawLiquidity(alice, pos.ID, 601); !errors.Is(err, common.ErrInsufficientLPShares) {
		t.Fatalf("expected insufficient shares, got %v", err)
	}
	out, err := f.engine.WithdrawLiquidity(alice, pos.ID, 300)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if out.TokenAAmount != 200 || out.TokenBAmount != 450 || out.Position.LPShares != 300 {
		t.Fatalf("unexpected withdrawal %+v", out)
	}
	if _, err := f.engine.WithdrawLiquidity(alice, pos.ID, 300); err != nil {
		t.Fatalf("final withdraw: %v", err)
	}
	pool, _ := f.engine.Pool(f.pool.ID)
	if pool.TotalLPShares != 0 || pool.TokenAReserve != 0 || pool.TokenBReserve != 0 {
		t.Fatalf("expected drained pool, got %+v", pool)
	}
	if got := f.ledger.balance(mintB, alice); got != 1_000_000 {
		t.Fatalf("alice expected full refund of B, got %d", got)
	}
	if _, err := f.engine.WithdrawLiquidity(alice, pos.ID, 0); !errors.Is(err, common.ErrZeroLiquidityPool) {
		t.Fatalf("expected zero liquidity, got %v", err)
	}
	last := f.emitter.events[len(f.emitter.events)-1]
	if last.EventType() != events.TypeLiquidityWithdrawn {
		t.Fatalf("unexpected last event %s", last.EventType())
	}
}

func TestCalculateSharesOverflowSafe(t *testing.T) {
	max := ^uint64(0)
	shares, err := CalculateShares(0, 0, 0, max, max)
	if err != nil || shares != max {
		t.Fatalf("expected sqrt(max*max) = max, got %d (%v)", shares, err)
	}
	if _, err := CalculateShares(1, 1, max, max, max); !errors.Is(err, common.ErrArithmeticOverflow) {
		t.Fatalf("expected overflow on narrowing, got %v", err)
	}
}
