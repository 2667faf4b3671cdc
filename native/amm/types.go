package amm

import (
	"cashflow/crypto"
)

const moduleName = "amm"

// WindowDuration is the length of a liquidity window in seconds (90 days).
const WindowDuration uint64 = 90 * 24 * 60 * 60

// Pool is a two-asset liquidity pool attached to a receivable vault.
// TotalLPShares is zero exactly when both reserves are zero.
type Pool struct {
	ID            crypto.Address
	Vault         crypto.Address
	MintA         crypto.Address
	MintB         crypto.Address
	ReserveA      crypto.Address
	ReserveB      crypto.Address
	Authority     crypto.Address
	Name          string
	TokenAReserve uint64
	TokenBReserve uint64
	TotalLPShares uint64
	WindowStart   int64
	WindowNumber  uint64
	CreatedAt     int64
	IsActive      bool
}

func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// Position records one deposit. Positions are never merged; each call to
// ProvideLiquidity creates a new one tagged with the window it landed in.
type Position struct {
	ID                        [32]byte
	Pool                      crypto.Address
	Provider                  crypto.Address
	TokenAAmount              uint64
	TokenBAmount              uint64
	LPShares                  uint64
	ForwardDiscountPercentage uint8
	WindowNumber              uint64
	ProvidedAt                int64
	Nonce                     uint64
}

func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// PoolAddress derives the pool identity from its vault and name.
func PoolAddress(vault crypto.Address, name string) crypto.Address {
	return crypto.DeriveAddress([]byte("pool"), vault[:], []byte(name))
}

// ReserveAddresses derives the accounts holding the pool's two reserves.
func ReserveAddresses(pool crypto.Address) (crypto.Address, crypto.Address) {
	return crypto.DeriveAddress([]byte("pool_reserve_a"), pool[:]),
		crypto.DeriveAddress([]byte("pool_reserve_b"), pool[:])
}

// PositionID derives the identifier of an LP position.
func PositionID(pool, provider crypto.Address, nonce uint64) [32]byte {
	return crypto.DeriveRecordID([]byte("lp_position"), pool[:], provider[:], crypto.Uint64Seed(nonce))
}
