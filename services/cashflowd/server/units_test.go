package server

import "testing"

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount   uint64
		decimals uint8
		want     string
	}{
		{0, 6, "0"},
		{1_000_000, 6, "1"},
		{1_500_000, 6, "1.5"},
		{1, 6, "0.000001"},
		{123, 0, "123"},
		{18_446_744_073_709_551_615, 6, "18446744073709.551615"},
	}
	for _, tc := range tests {
		if got := FormatAmount(tc.amount, tc.decimals); got != tc.want {
			t.Fatalf("FormatAmount(%d, %d) = %q, want %q", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    uint64
		wantErr bool
	}{
		{raw: "1", want: 1_000_000},
		{raw: "1.5", want: 1_500_000},
		{raw: ".25", want: 250_000},
		{raw: " 0.000001 ", want: 1},
		{raw: "0.0000001", wantErr: true},
		{raw: "1.", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "-1", wantErr: true},
		{raw: "1e6", wantErr: true},
		{raw: "18446744073710", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseAmount(tc.raw, 6)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseAmount(%q) expected error, got %d", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseAmount(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
