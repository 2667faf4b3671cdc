package server

import (
	"fmt"
	"strconv"
	"strings"

	"cashflow/native/common"
)

// FormatAmount renders base units as a decimal string with trailing fractional
// zeros removed.
func FormatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return strconv.FormatUint(amount, 10)
	}
	divisor := pow10(decimals)
	integer := amount / divisor
	fraction := amount % divisor
	if fraction == 0 {
		return strconv.FormatUint(integer, 10)
	}
	frac := fmt.Sprintf("%0*d", int(decimals), fraction)
	return strconv.FormatUint(integer, 10) + "." + strings.TrimRight(frac, "0")
}

// ParseAmount converts a decimal string into base units. Digits beyond the
// configured precision are rejected rather than truncated.
func ParseAmount(raw string, decimals uint8) (uint64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("amount required")
	}
	integerStr, fractionStr, hasPoint := strings.Cut(value, ".")
	if integerStr == "" {
		integerStr = "0"
	}
	if hasPoint && fractionStr == "" {
		return 0, fmt.Errorf("amount %q: missing fractional digits", raw)
	}
	if len(fractionStr) > int(decimals) {
		return 0, fmt.Errorf("amount precision exceeds %d decimals", decimals)
	}
	integer, err := parseDigits(integerStr)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", raw, err)
	}
	fraction := uint64(0)
	if fractionStr != "" {
		fraction, err = parseDigits(fractionStr + strings.Repeat("0", int(decimals)-len(fractionStr)))
		if err != nil {
			return 0, fmt.Errorf("amount %q: %w", raw, err)
		}
	}
	scaled, err := common.CheckedMul(integer, pow10(decimals))
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", raw, err)
	}
	return common.CheckedAdd(scaled, fraction)
}

func parseDigits(s string) (uint64, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid digit %q", r)
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, common.ErrArithmeticOverflow
	}
	return v, nil
}

func pow10(decimals uint8) uint64 {
	out := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		out *= 10
	}
	return out
}
