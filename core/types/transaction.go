package types

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"cashflow/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypeCreateVault       TxType = 0x01
	TxTypeMintTokens        TxType = 0x02
	TxTypePurchaseTokens    TxType = 0x03
	TxTypeReceivePayment    TxType = 0x04
	TxTypeRedeem            TxType = 0x05
	TxTypeCreatePool        TxType = 0x06
	TxTypeProvideLiquidity  TxType = 0x07
	TxTypeWithdrawLiquidity TxType = 0x08
	TxTypeFund              TxType = 0x10 // operator credit of a payment mint
)

var txTypeNames = map[TxType]string{
	TxTypeCreateVault:       "create_vault",
	TxTypeMintTokens:        "mint_tokens",
	TxTypePurchaseTokens:    "purchase_tokens",
	TxTypeReceivePayment:    "receive_payment",
	TxTypeRedeem:            "redeem",
	TxTypeCreatePool:        "create_pool",
	TxTypeProvideLiquidity:  "provide_liquidity",
	TxTypeWithdrawLiquidity: "withdraw_liquidity",
	TxTypeFund:              "fund",
}

func (t TxType) String() string {
	if name, ok := txTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// Valid reports whether the type is one the ledger can apply.
func (t TxType) Valid() bool {
	_, ok := txTypeNames[t]
	return ok
}

// Transaction is one requested ledger transition. Caller is the identity the
// transport layer authenticated; Payload holds the type specific JSON body.
type Transaction struct {
	Type    TxType          `json:"type"`
	Caller  crypto.Address  `json:"caller"`
	Payload json.RawMessage `json:"payload"`
}

// NewTransaction encodes payload into a transaction of the given type.
func NewTransaction(txType TxType, caller crypto.Address, payload interface{}) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Transaction{Type: txType, Caller: caller, Payload: raw}, nil
}

// Hash returns the sha256 digest of the JSON encoded transaction.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		Type    TxType
		Caller  crypto.Address
		Payload json.RawMessage
	}{tx.Type, tx.Caller, tx.Payload}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

// DecodePayload unmarshals the payload into out.
func (tx *Transaction) DecodePayload(out interface{}) error {
	if len(tx.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(tx.Payload, out)
}

type CreateVaultPayload struct {
	Name                  string         `json:"name"`
	Principal             uint64         `json:"principal"`
	TotalExpectedInterest uint64         `json:"totalExpectedInterest"`
	MonthlyPayment        uint64         `json:"monthlyPayment"`
	TotalMonths           uint32         `json:"totalMonths"`
	PaymentMint           crypto.Address `json:"paymentMint"`
}

type MintTokensPayload struct {
	Vault       crypto.Address `json:"vault"`
	Destination crypto.Address `json:"destination"`
	Amount      uint64         `json:"amount"`
}

type PurchaseTokensPayload struct {
	Vault              crypto.Address `json:"vault"`
	TokenAmount        uint64         `json:"tokenAmount"`
	DiscountPercentage uint8          `json:"discountPercentage"`
}

type ReceivePaymentPayload struct {
	Vault  crypto.Address `json:"vault"`
	Amount uint64         `json:"amount"`
}

type RedeemPayload struct {
	Vault       crypto.Address `json:"vault"`
	Month       uint32         `json:"month"`
	TokenAmount uint64         `json:"tokenAmount"`
}

type CreatePoolPayload struct {
	Vault crypto.Address `json:"vault"`
	MintA crypto.Address `json:"mintA"`
	MintB crypto.Address `json:"mintB"`
	Name  string         `json:"name"`
}

type ProvideLiquidityPayload struct {
	Pool                      crypto.Address `json:"pool"`
	TokenAAmount              uint64         `json:"tokenAAmount"`
	TokenBAmount              uint64         `json:"tokenBAmount"`
	ForwardDiscountPercentage uint8          `json:"forwardDiscountPercentage"`
}

type WithdrawLiquidityPayload struct {
	Position string `json:"position"`
	LPShares uint64 `json:"lpShares"`
}

type FundPayload struct {
	Mint      crypto.Address `json:"mint"`
	Recipient crypto.Address `json:"recipient"`
	Amount    uint64         `json:"amount"`
}

const idHexLength = 64

// ParseID normalises and validates a record identifier expressed as a hex
// string. The returned array always contains the raw 32-byte value.
func ParseID(ref string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return id, fmt.Errorf("id required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != idHexLength {
		return id, fmt.Errorf("id must be 32 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("decode id: %w", err)
	}
	copy(id[:], decoded)
	return id, nil
}

// FormatID renders a record identifier as lowercase hex.
func FormatID(id [32]byte) string {
	return hex.EncodeToString(id[:])
}
