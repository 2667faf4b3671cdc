package events

import (
	"cashflow/crypto"
)

const (
	TypePoolCreated        = "amm.pool_created"
	TypeLiquidityProvided  = "amm.liquidity_provided"
	TypeLiquidityWithdrawn = "amm.liquidity_withdrawn"
)

type PoolCreated struct {
	Pool      crypto.Address
	Vault     crypto.Address
	TokenA    crypto.Address
	TokenB    crypto.Address
	Authority crypto.Address
	Name      string
	CreatedAt int64
}

func (PoolCreated) EventType() string { return TypePoolCreated }

func (e PoolCreated) Event() *Record {
	return &Record{
		Type: TypePoolCreated,
		Attributes: map[string]string{
			"pool":      addressString(e.Pool),
			"vault":     addressString(e.Vault),
			"tokenA":    addressString(e.TokenA),
			"tokenB":    addressString(e.TokenB),
			"authority": addressString(e.Authority),
			"name":      e.Name,
			"createdAt": intToString(e.CreatedAt),
		},
	}
}

type LiquidityProvided struct {
	Pool                      crypto.Address
	Provider                  crypto.Address
	Position                  [32]byte
	TokenAAmount              uint64
	TokenBAmount              uint64
	LPShares                  uint64
	ForwardDiscountPercentage uint8
	WindowNumber              uint64
}

func (LiquidityProvided) EventType() string { return TypeLiquidityProvided }

func (e LiquidityProvided) Event() *Record {
	return &Record{
		Type: TypeLiquidityProvided,
		Attributes: map[string]string{
			"pool":                      addressString(e.Pool),
			"provider":                  addressString(e.Provider),
			"position":                  hexID(e.Position),
			"tokenAAmount":              formatUint(e.TokenAAmount),
			"tokenBAmount":              formatUint(e.TokenBAmount),
			"lpShares":                  formatUint(e.LPShares),
			"forwardDiscountPercentage": formatUint(uint64(e.ForwardDiscountPercentage)),
			"windowNumber":              formatUint(e.WindowNumber),
		},
	}
}

type LiquidityWithdrawn struct {
	Pool         crypto.Address
	Provider     crypto.Address
	Position     [32]byte
	LPShares     uint64
	TokenAAmount uint64
	TokenBAmount uint64
}

func (LiquidityWithdrawn) EventType() string { return TypeLiquidityWithdrawn }

func (e LiquidityWithdrawn) Event() *Record {
	return &Record{
		Type: TypeLiquidityWithdrawn,
		Attributes: map[string]string{
			"pool":         addressString(e.Pool),
			"provider":     addressString(e.Provider),
			"position":     hexID(e.Position),
			"lpShares":     formatUint(e.LPShares),
			"tokenAAmount": formatUint(e.TokenAAmount),
			"tokenBAmount": formatUint(e.TokenBAmount),
		},
	}
}
