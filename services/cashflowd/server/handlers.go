package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cashflow/core/types"
	"cashflow/crypto"
	"cashflow/native/common"
	"cashflow/native/receivable"
	telemetry "cashflow/observability/otel"
	"cashflow/services/cashflowd/index"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathAddress(r *http.Request, name string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return addr, nil
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// apply submits a transition on behalf of the authenticated caller.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, txType types.TxType, payload interface{}) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthenticated", "missing caller")
		return
	}
	tx, err := types.NewTransaction(txType, caller.Address, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	ctx, span := telemetry.Tracer().Start(r.Context(), "ledger.apply")
	span.SetAttributes(
		attribute.String("tx.type", txType.String()),
		attribute.String("tx.caller", caller.Address.String()),
	)
	receipt, err := s.ledger.Apply(ctx, tx)
	if err != nil {
		span.SetStatus(codes.Error, common.Code(err))
		span.End()
		writeLedgerError(w, err)
		return
	}
	span.SetAttributes(attribute.String("tx.hash", receipt.TxHash))
	span.End()
	writeJSON(w, http.StatusOK, s.receiptView(receipt))
}

func (s *Server) handleCreateVault(w http.ResponseWriter, r *http.Request) {
	var req types.CreateVaultPayload
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeCreateVault, req)
}

func (s *Server) handleMintTokens(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req struct {
		Destination crypto.Address `json:"destination"`
		Amount      uint64         `json:"amount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeMintTokens, types.MintTokensPayload{Vault: vault, Destination: req.Destination, Amount: req.Amount})
}

func (s *Server) handlePurchaseTokens(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req struct {
		TokenAmount        uint64 `json:"tokenAmount"`
		DiscountPercentage uint8  `json:"discountPercentage"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypePurchaseTokens, types.PurchaseTokensPayload{
		Vault:              vault,
		TokenAmount:        req.TokenAmount,
		DiscountPercentage: req.DiscountPercentage,
	})
}

func (s *Server) handleReceivePayment(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeReceivePayment, types.ReceivePaymentPayload{Vault: vault, Amount: req.Amount})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	vault, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req struct {
		Month       uint32 `json:"month"`
		TokenAmount uint64 `json:"tokenAmount"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeRedeem, types.RedeemPayload{Vault: vault, Month: req.Month, TokenAmount: req.TokenAmount})
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req types.CreatePoolPayload
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeCreatePool, req)
}

func (s *Server) handleProvideLiquidity(w http.ResponseWriter, r *http.Request) {
	pool, err := pathAddress(r, "pool")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req struct {
		TokenAAmount              uint64 `json:"tokenAAmount"`
		TokenBAmount              uint64 `json:"tokenBAmount"`
		ForwardDiscountPercentage uint8  `json:"forwardDiscountPercentage"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeProvideLiquidity, types.ProvideLiquidityPayload{
		Pool:                      pool,
		TokenAAmount:              req.TokenAAmount,
		TokenBAmount:              req.TokenBAmount,
		ForwardDiscountPercentage: req.ForwardDiscountPercentage,
	})
}

func (s *Server) handleWithdrawLiquidity(w http.ResponseWriter, r *http.Request) {
	position := chi.URLParam(r, "position")
	if _, err := types.ParseID(position); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	var req struct {
		LPShares uint64 `json:"lpShares"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeWithdrawLiquidity, types.WithdrawLiquidityPayload{Position: position, LPShares: req.LPShares})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req types.FundPayload
	if err := decodeBody(w, r, &req); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.apply(w, r, types.TxTypeFund, req)
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	vaults, err := s.ledger.Vaults()
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]*vaultView, 0, len(vaults))
	for _, v := range vaults {
		out = append(out, s.vaultView(v))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vaults": out})
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	vault, err := s.ledger.Vault(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.vaultView(vault))
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	month, err := strconv.ParseUint(chi.URLParam(r, "month"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "month must be an unsigned integer")
		return
	}
	cycle, err := s.ledger.PaymentCycle(id, uint32(month))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cycleViewOf(cycle))
}

func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "index disabled")
		return
	}
	rows, err := s.index.Redemptions(r.Context(), id.String(), queryLimit(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if rows == nil {
		rows = []index.RedemptionRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"redemptions": rows})
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "vault")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "index disabled")
		return
	}
	rows, err := s.index.Sales(r.Context(), id.String(), queryLimit(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if rows == nil {
		rows = []index.SaleRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sales": rows})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "Unavailable", "index disabled")
		return
	}
	q := r.URL.Query()
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	rows, err := s.index.Events(r.Context(), index.EventFilter{
		Type:    strings.TrimSpace(q.Get("type")),
		Vault:   strings.TrimSpace(q.Get("vault")),
		Pool:    strings.TrimSpace(q.Get("pool")),
		AfterID: uint(after),
		Limit:   queryLimit(r),
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	type eventView struct {
		index.EventRow
		Attributes map[string]string `json:"attributes"`
	}
	out := make([]eventView, 0, len(rows))
	for _, row := range rows {
		rec, err := row.Record()
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		out = append(out, eventView{EventRow: row, Attributes: rec.Attributes})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "pool")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	pool, err := s.ledger.Pool(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolViewOf(pool))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	id, err := pathAddress(r, "pool")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	positions, err := s.ledger.Positions(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]*positionView, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionViewOf(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": out})
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "position"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	position, err := s.ledger.Position(id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionViewOf(position))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	mint, err := pathAddress(r, "mint")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	amount, err := s.ledger.Balance(mint, owner)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{Mint: mint, Owner: owner, Amount: amount, Display: FormatAmount(amount, s.cfg.Decimals)})
}

// handleQuotePurchase prices a primary sale. tokenAmount is a display amount.
func (s *Server) handleQuotePurchase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := ParseAmount(q.Get("tokenAmount"), s.cfg.Decimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	discount, err := strconv.ParseUint(q.Get("discount"), 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "discount must be 0-100")
		return
	}
	price, err := receivable.PurchasePrice(amount, uint8(discount))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tokenAmount":   amount,
		"purchasePrice": price,
		"display":       FormatAmount(price, s.cfg.Decimals),
	})
}

// handleQuoteLiquidity previews the shares a deposit would mint. Amounts are
// display amounts.
func (s *Server) handleQuoteLiquidity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pool, err := crypto.ParseAddress(q.Get("pool"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "pool: "+err.Error())
		return
	}
	amountA, err := ParseAmount(q.Get("amountA"), s.cfg.Decimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "amountA: "+err.Error())
		return
	}
	amountB, err := ParseAmount(q.Get("amountB"), s.cfg.Decimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "amountB: "+err.Error())
		return
	}
	shares, err := s.ledger.QuoteShares(pool, amountA, amountB)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pool": pool, "lpShares": shares})
}
