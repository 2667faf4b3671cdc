package server

import (
	"cashflow/core"
	"cashflow/core/events"
	"cashflow/core/types"
	"cashflow/crypto"
	"cashflow/native/amm"
	"cashflow/native/receivable"
)

type vaultView struct {
	ID                    crypto.Address `json:"id"`
	Authority             crypto.Address `json:"authority"`
	TokenMint             crypto.Address `json:"tokenMint"`
	Treasury              crypto.Address `json:"treasury"`
	PaymentMint           crypto.Address `json:"paymentMint"`
	Name                  string         `json:"name"`
	Principal             uint64         `json:"principal"`
	TotalExpectedInterest uint64         `json:"totalExpectedInterest"`
	TotalTokensMinted     uint64         `json:"totalTokensMinted"`
	MonthlyPayment        uint64         `json:"monthlyPayment"`
	TotalMonths           uint32         `json:"totalMonths"`
	CurrentMonth          uint32         `json:"currentMonth"`
	TotalRedeemed         uint64         `json:"totalRedeemed"`
	CreatedAt             int64          `json:"createdAt"`
	IsActive              bool           `json:"isActive"`
	Matured               bool           `json:"matured"`
	Display               displayAmounts `json:"display"`
}

type displayAmounts map[string]string

type cycleView struct {
	Vault                  crypto.Address `json:"vault"`
	Month                  uint32         `json:"month"`
	Amount                 uint64         `json:"amount"`
	AvailableForRedemption uint64         `json:"availableForRedemption"`
	ReceivedAt             int64          `json:"receivedAt"`
}

type saleView struct {
	ID                 string         `json:"id"`
	Vault              crypto.Address `json:"vault"`
	Buyer              crypto.Address `json:"buyer"`
	TokenAmount        uint64         `json:"tokenAmount"`
	PurchasePrice      uint64         `json:"purchasePrice"`
	DiscountPercentage uint8          `json:"discountPercentage"`
	PurchasedAt        int64          `json:"purchasedAt"`
}

type redemptionView struct {
	ID              string         `json:"id"`
	Vault           crypto.Address `json:"vault"`
	Redeemer        crypto.Address `json:"redeemer"`
	TokenAmount     uint64         `json:"tokenAmount"`
	RedemptionValue uint64         `json:"redemptionValue"`
	Month           uint32         `json:"month"`
	RedeemedAt      int64          `json:"redeemedAt"`
}

type poolView struct {
	ID            crypto.Address `json:"id"`
	Vault         crypto.Address `json:"vault"`
	MintA         crypto.Address `json:"mintA"`
	MintB         crypto.Address `json:"mintB"`
	ReserveA      crypto.Address `json:"reserveA"`
	ReserveB      crypto.Address `json:"reserveB"`
	Authority     crypto.Address `json:"authority"`
	Name          string         `json:"name"`
	TokenAReserve uint64         `json:"tokenAReserve"`
	TokenBReserve uint64         `json:"tokenBReserve"`
	TotalLPShares uint64         `json:"totalLpShares"`
	WindowStart   int64          `json:"windowStart"`
	WindowNumber  uint64         `json:"windowNumber"`
	CreatedAt     int64          `json:"createdAt"`
	IsActive      bool           `json:"isActive"`
}

type positionView struct {
	ID                        string         `json:"id"`
	Pool                      crypto.Address `json:"pool"`
	Provider                  crypto.Address `json:"provider"`
	TokenAAmount              uint64         `json:"tokenAAmount"`
	TokenBAmount              uint64         `json:"tokenBAmount"`
	LPShares                  uint64         `json:"lpShares"`
	ForwardDiscountPercentage uint8          `json:"forwardDiscountPercentage"`
	WindowNumber              uint64         `json:"windowNumber"`
	ProvidedAt                int64          `json:"providedAt"`
}

type withdrawalView struct {
	Position     *positionView `json:"position"`
	LPShares     uint64        `json:"lpShares"`
	TokenAAmount uint64        `json:"tokenAAmount"`
	TokenBAmount uint64        `json:"tokenBAmount"`
}

type balanceView struct {
	Mint    crypto.Address `json:"mint"`
	Owner   crypto.Address `json:"owner"`
	Amount  uint64         `json:"amount"`
	Display string         `json:"display"`
}

type receiptView struct {
	TxHash    string           `json:"txHash"`
	Type      string           `json:"type"`
	AppliedAt int64            `json:"appliedAt"`
	Events    []*events.Record `json:"events"`
	Result    interface{}      `json:"result,omitempty"`
}

func (s *Server) vaultView(v *receivable.Vault) *vaultView {
	return &vaultView{
		ID:                    v.ID,
		Authority:             v.Authority,
		TokenMint:             v.TokenMint,
		Treasury:              v.Treasury,
		PaymentMint:           v.PaymentMint,
		Name:                  v.Name,
		Principal:             v.Principal,
		TotalExpectedInterest: v.TotalExpectedInterest,
		TotalTokensMinted:     v.TotalTokensMinted,
		MonthlyPayment:        v.MonthlyPayment,
		TotalMonths:           v.TotalMonths,
		CurrentMonth:          v.CurrentMonth,
		TotalRedeemed:         v.TotalRedeemed,
		CreatedAt:             v.CreatedAt,
		IsActive:              v.IsActive,
		Matured:               v.Matured(),
		Display: displayAmounts{
			"principal":         FormatAmount(v.Principal, s.cfg.Decimals),
			"totalTokensMinted": FormatAmount(v.TotalTokensMinted, s.cfg.Decimals),
			"monthlyPayment":    FormatAmount(v.MonthlyPayment, s.cfg.Decimals),
			"totalRedeemed":     FormatAmount(v.TotalRedeemed, s.cfg.Decimals),
		},
	}
}

func cycleViewOf(c *receivable.PaymentCycle) *cycleView {
	return &cycleView{
		Vault:                  c.Vault,
		Month:                  c.Month,
		Amount:                 c.Amount,
		AvailableForRedemption: c.AvailableForRedemption,
		ReceivedAt:             c.ReceivedAt,
	}
}

func saleViewOf(sale *receivable.PrimarySale) *saleView {
	return &saleView{
		ID:                 types.FormatID(sale.ID),
		Vault:              sale.Vault,
		Buyer:              sale.Buyer,
		TokenAmount:        sale.TokenAmount,
		PurchasePrice:      sale.PurchasePrice,
		DiscountPercentage: sale.DiscountPercentage,
		PurchasedAt:        sale.PurchasedAt,
	}
}

func redemptionViewOf(rec *receivable.RedemptionRecord) *redemptionView {
	return &redemptionView{
		ID:              types.FormatID(rec.ID),
		Vault:           rec.Vault,
		Redeemer:        rec.Redeemer,
		TokenAmount:     rec.TokenAmount,
		RedemptionValue: rec.RedemptionValue,
		Month:           rec.Month,
		RedeemedAt:      rec.RedeemedAt,
	}
}

func poolViewOf(p *amm.Pool) *poolView {
	return &poolView{
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
		WindowStart:   p.WindowStart,
		WindowNumber:  p.WindowNumber,
		CreatedAt:     p.CreatedAt,
		IsActive:      p.IsActive,
	}
}

func positionViewOf(p *amm.Position) *positionView {
	if p == nil {
		return nil
	}
	return &positionView{
		ID:                        types.FormatID(p.ID),
		Pool:                      p.Pool,
		Provider:                  p.Provider,
		TokenAAmount:              p.TokenAAmount,
		TokenBAmount:              p.TokenBAmount,
		LPShares:                  p.LPShares,
		ForwardDiscountPercentage: p.ForwardDiscountPercentage,
		WindowNumber:              p.WindowNumber,
		ProvidedAt:                p.ProvidedAt,
	}
}

// present converts a transition result into its API form.
func (s *Server) present(result interface{}) interface{} {
	switch v := result.(type) {
	case *receivable.Vault:
		return s.vaultView(v)
	case *receivable.PaymentCycle:
		return cycleViewOf(v)
	case *receivable.PrimarySale:
		return saleViewOf(v)
	case *receivable.RedemptionRecord:
		return redemptionViewOf(v)
	case *amm.Pool:
		return poolViewOf(v)
	case *amm.Position:
		return positionViewOf(v)
	case *amm.Withdrawal:
		return &withdrawalView{
			Position:     positionViewOf(v.Position),
			LPShares:     v.LPShares,
			TokenAAmount: v.TokenAAmount,
			TokenBAmount: v.TokenBAmount,
		}
	case uint64:
		return map[string]interface{}{"amount": v, "display": FormatAmount(v, s.cfg.Decimals)}
	default:
		return v
	}
}

func (s *Server) receiptView(r *core.Receipt) *receiptView {
	return &receiptView{
		TxHash:    r.TxHash,
		Type:      r.Type,
		AppliedAt: r.AppliedAt,
		Events:    r.Events,
		Result:    s.present(r.Result),
	}
}
