package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"cashflow/native/common"
)

var codeStatus = map[string]int{
	"InvalidTransaction":             http.StatusBadRequest,
	"InvalidName":                    http.StatusBadRequest,
	"InvalidMint":                    http.StatusBadRequest,
	"InvalidDiscount":                http.StatusBadRequest,
	"InvalidPaymentAmount":           http.StatusBadRequest,
	"Unauthorized":                   http.StatusForbidden,
	"VaultNotFound":                  http.StatusNotFound,
	"PaymentCycleNotFound":           http.StatusNotFound,
	"PoolNotFound":                   http.StatusNotFound,
	"PositionNotFound":               http.StatusNotFound,
	"VaultExists":                    http.StatusConflict,
	"PoolExists":                     http.StatusConflict,
	"PaymentCycleExists":             http.StatusConflict,
	"ExceedsTokenSupply":             http.StatusConflict,
	"InsufficientRedemptionCapacity": http.StatusConflict,
	"ModulePaused":                   http.StatusServiceUnavailable,
	"VaultInactive":                  http.StatusUnprocessableEntity,
	"VaultMatured":                   http.StatusUnprocessableEntity,
	"PoolInactive":                   http.StatusUnprocessableEntity,
	"InsufficientTokenBalance":       http.StatusUnprocessableEntity,
	"InsufficientLPShares":           http.StatusUnprocessableEntity,
	"ZeroLiquidityPool":              http.StatusUnprocessableEntity,
	"InsufficientInitialLiquidity":   http.StatusUnprocessableEntity,
	"InsufficientFunds":              http.StatusUnprocessableEntity,
	"ArithmeticOverflow":             http.StatusUnprocessableEntity,
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps a ledger error to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	code := common.Code(err)
	if status, ok := codeStatus[code]; ok {
		return status, code
	}
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest, "BadRequest"
	}
	return http.StatusInternalServerError, "Internal"
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("cashflowd: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func writeLedgerError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("cashflowd: internal error: %v", err)
		message = "internal error"
	}
	writeError(w, status, code, message)
}
