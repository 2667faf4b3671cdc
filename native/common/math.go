package common

import (
	"math/bits"

	"github.com/holiman/uint256"
)

// CheckedAdd returns a+b or ErrArithmeticOverflow when the sum exceeds 64 bits.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticOverflow
	}
	return diff, nil
}

// CheckedMul returns a*b or ErrArithmeticOverflow when the product exceeds 64 bits.
func CheckedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return lo, nil
}

// CheckedDiv returns floor(a/b) or ErrArithmeticOverflow when b is zero.
func CheckedDiv(a, b uint64) (uint64, error) {
	if b == 0 {
		return 0, ErrArithmeticOverflow
	}
	return a / b, nil
}

// CheckedSubInt64 returns a-b for signed timestamps, failing on overflow in
// either direction and when the result is negative.
func CheckedSubInt64(a, b int64) (uint64, error) {
	if a < b {
		return 0, ErrArithmeticOverflow
	}
	diff := a - b
	if diff < 0 {
		return 0, ErrArithmeticOverflow
	}
	return uint64(diff), nil
}

// MulDiv computes floor(a*b/c) with a 256-bit intermediate so the product can
// never overflow before the division. The quotient must fit in 64 bits.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrArithmeticOverflow
	}
	x := uint256.NewInt(a)
	y := uint256.NewInt(b)
	d := uint256.NewInt(c)
	quo, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow || !quo.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return quo.Uint64(), nil
}

// IntegerSqrt returns floor(sqrt(x)).
func IntegerSqrt(x *uint256.Int) *uint256.Int {
	if x == nil || x.IsZero() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sqrt(x)
}

// MulSqrt returns floor(sqrt(a*b)) computed over the widened product. The
// result always fits in 64 bits; the check is kept so narrowing can never
// truncate silently.
func MulSqrt(a, b uint64) (uint64, error) {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	root := IntegerSqrt(product)
	if !root.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return root.Uint64(), nil
}

// Percent returns floor(amount*pct/100). Percentages above 100 are rejected.
func Percent(amount uint64, pct uint8) (uint64, error) {
	if pct > 100 {
		return 0, ErrInvalidDiscount
	}
	return MulDiv(amount, uint64(pct), 100)
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
