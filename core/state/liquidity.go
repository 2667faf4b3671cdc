package state

import (
	"fmt"
	"math/big"

	"cashflow/crypto"
	"cashflow/native/amm"
)

type storedPool struct {
	ID            [20]byte
	Vault         [20]byte
	MintA         [20]byte
	MintB         [20]byte
	ReserveA      [20]byte
	ReserveB      [20]byte
	Authority     [20]byte
	Name          string
	TokenAReserve uint64
	TokenBReserve uint64
	TotalLPShares uint64
	WindowStart   *big.Int
	WindowNumber  uint64
	CreatedAt     *big.Int
	IsActive      bool
}

type storedPosition struct {
	ID                        [32]byte
	Pool                      [20]byte
	Provider                  [20]byte
	TokenAAmount              uint64
	TokenBAmount              uint64
	LPShares                  uint64
	ForwardDiscountPercentage uint8
	WindowNumber              uint64
	ProvidedAt                *big.Int
	Nonce                     uint64
}

// PoolPut stores the pool and records it in the pool index.
func (m *Manager) PoolPut(p *amm.Pool) error {
	if p == nil {
		return fmt.Errorf("pool: nil value")
	}
	if err := m.put(prefixedKey(poolPrefix, p.ID[:]), &storedPool{
		ID:            p.ID,
		Vault:         p.Vault,
		MintA:         p.MintA,
		MintB:         p.MintB,
		ReserveA:      p.ReserveA,
		ReserveB:      p.ReserveB,
		Authority:     p.Authority,
		Name:          p.Name,
		TokenAReserve: p.TokenAReserve,
		TokenBReserve: p.TokenBReserve,
		TotalLPShares: p.TotalLPShares,
		WindowStart:   bigFromInt64(p.WindowStart),
		WindowNumber:  p.WindowNumber,
		CreatedAt:     bigFromInt64(p.CreatedAt),
		IsActive:      p.IsActive,
	}); err != nil {
		return err
	}
	return m.appendIndex(poolListKey, p.ID[:])
}

// PoolGet loads the pool with the given identity.
func (m *Manager) PoolGet(id crypto.Address) (*amm.Pool, bool, error) {
	stored := new(storedPool)
	ok, err := m.get(prefixedKey(poolPrefix, id[:]), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &amm.Pool{
		ID:            stored.ID,
		Vault:         stored.Vault,
		MintA:         stored.MintA,
		MintB:         stored.MintB,
		ReserveA:      stored.ReserveA,
		ReserveB:      stored.ReserveB,
		Authority:     stored.Authority,
		Name:          stored.Name,
		TokenAReserve: stored.TokenAReserve,
		TokenBReserve: stored.TokenBReserve,
		TotalLPShares: stored.TotalLPShares,
		WindowStart:   int64FromBig(stored.WindowStart),
		WindowNumber:  stored.WindowNumber,
		CreatedAt:     int64FromBig(stored.CreatedAt),
		IsActive:      stored.IsActive,
	}, true, nil
}

// PoolIDs lists every pool in creation order.
func (m *Manager) PoolIDs() ([]crypto.Address, error) {
	return m.addressList(poolListKey)
}

// PositionPut stores the position and indexes it under its pool.
func (m *Manager) PositionPut(p *amm.Position) error {
	if p == nil {
		return fmt.Errorf("position: nil value")
	}
	if err := m.put(prefixedKey(positionPrefix, p.ID[:]), &storedPosition{
		ID:                        p.ID,
		Pool:                      p.Pool,
		Provider:                  p.Provider,
		TokenAAmount:              p.TokenAAmount,
		TokenBAmount:              p.TokenBAmount,
		LPShares:                  p.LPShares,
		ForwardDiscountPercentage: p.ForwardDiscountPercentage,
		WindowNumber:              p.WindowNumber,
		ProvidedAt:                bigFromInt64(p.ProvidedAt),
		Nonce:                     p.Nonce,
	}); err != nil {
		return err
	}
	return m.appendIndex(prefixedKey(positionListKey, p.Pool[:]), p.ID[:])
}

// PositionGet loads a position by identifier.
func (m *Manager) PositionGet(id [32]byte) (*amm.Position, bool, error) {
	stored := new(storedPosition)
	ok, err := m.get(prefixedKey(positionPrefix, id[:]), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &amm.Position{
		ID:                        stored.ID,
		Pool:                      stored.Pool,
		Provider:                  stored.Provider,
		TokenAAmount:              stored.TokenAAmount,
		TokenBAmount:              stored.TokenBAmount,
		LPShares:                  stored.LPShares,
		ForwardDiscountPercentage: stored.ForwardDiscountPercentage,
		WindowNumber:              stored.WindowNumber,
		ProvidedAt:                int64FromBig(stored.ProvidedAt),
		Nonce:                     stored.Nonce,
	}, true, nil
}

// PositionIDs lists the positions opened in the pool, oldest first.
func (m *Manager) PositionIDs(pool crypto.Address) ([][32]byte, error) {
	raw, err := m.index(prefixedKey(positionListKey, pool[:]))
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(raw))
	for _, entry := range raw {
		var id [32]byte
		if len(entry) != len(id) {
			return nil, fmt.Errorf("state: malformed position index entry")
		}
		copy(id[:], entry)
		out = append(out, id)
	}
	return out, nil
}
