package common

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
)

func TestCheckedArithmetic(t *testing.T) {
	cases := []struct {
		name    string
		fn      func(a, b uint64) (uint64, error)
		a, b    uint64
		want    uint64
		wantErr bool
	}{
		{"add", CheckedAdd, 1_000_000, 100_000, 1_100_000, false},
		{"add overflow", CheckedAdd, math.MaxUint64, 1, 0, true},
		{"sub", CheckedSub, 50_000, 50_000, 0, false},
		{"sub underflow", CheckedSub, 1, 2, 0, true},
		{"mul", CheckedMul, 1 << 31, 1 << 31, 1 << 62, false},
		{"mul overflow", CheckedMul, 1 << 32, 1 << 32, 0, true},
		{"div", CheckedDiv, 7, 2, 3, false},
		{"div by zero", CheckedDiv, 7, 0, 0, true},
	}
	for _, tc := range cases {
		got, err := tc.fn(tc.a, tc.b)
		if tc.wantErr {
			if !errors.Is(err, ErrArithmeticOverflow) {
				t.Fatalf("%s: expected overflow, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %d want %d", tc.name, got, tc.want)
		}
	}
}

func TestMulDivWidensIntermediate(t *testing.T) {
	// a*b overflows 64 bits but the quotient fits.
	got, err := MulDiv(math.MaxUint64, 600, 1200)
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if got != math.MaxUint64/2 {
		t.Fatalf("unexpected quotient %d", got)
	}
	if _, err := MulDiv(math.MaxUint64, 2, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected narrowing overflow, got %v", err)
	}
	if _, err := MulDiv(1, 1, 0); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected division by zero to fail, got %v", err)
	}
	got, err = MulDiv(200, 600, 400)
	if err != nil || got != 300 {
		t.Fatalf("expected 300, got %d (%v)", got, err)
	}
	got, err = MulDiv(100, 600, 900)
	if err != nil || got != 66 {
		t.Fatalf("expected 66, got %d (%v)", got, err)
	}
}

func TestMulSqrt(t *testing.T) {
	cases := []struct {
		a, b, want uint64
	}{
		{400, 900, 600},
		{0, 900, 0},
		{1, 1, 1},
		{2, 3, 2},
		{math.MaxUint64, math.MaxUint64, math.MaxUint64},
	}
	for _, tc := range cases {
		got, err := MulSqrt(tc.a, tc.b)
		if err != nil {
			t.Fatalf("sqrt(%d*%d): %v", tc.a, tc.b, err)
		}
		if got != tc.want {
			t.Fatalf("sqrt(%d*%d) = %d want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestIntegerSqrtFloors(t *testing.T) {
	for _, n := range []uint64{0, 1, 2, 3, 4, 15, 16, 17, 360_000, 999_999} {
		root := IntegerSqrt(uint256.NewInt(n)).Uint64()
		if root*root > n || (root+1)*(root+1) <= n {
			t.Fatalf("sqrt(%d) = %d is not the floor root", n, root)
		}
	}
}

func TestPercent(t *testing.T) {
	if got, err := Percent(1_000, 0); err != nil || got != 0 {
		t.Fatalf("0%%: got %d (%v)", got, err)
	}
	if got, err := Percent(1_000, 100); err != nil || got != 1_000 {
		t.Fatalf("100%%: got %d (%v)", got, err)
	}
	if got, err := Percent(999, 10); err != nil || got != 99 {
		t.Fatalf("10%% of 999: got %d (%v)", got, err)
	}
	if _, err := Percent(1, 101); !errors.Is(err, ErrInvalidDiscount) {
		t.Fatalf("expected invalid discount, got %v", err)
	}
}

func TestCheckedSubInt64(t *testing.T) {
	if got, err := CheckedSubInt64(100, 40); err != nil || got != 60 {
		t.Fatalf("got %d (%v)", got, err)
	}
	if _, err := CheckedSubInt64(40, 100); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow for backwards clock, got %v", err)
	}
	if _, err := CheckedSubInt64(math.MaxInt64, math.MinInt64); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
