package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  any
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1234.5", "1234.5", true},
		{"$1,234.50", "1234.5", true},
		{"NZD -250.00", "-250", true},
		{" 12 ", "12", true},
		{float64(99.95), "99.95", true},
		{int64(-3), "-3", true},
		{decimal.RequireFromString("0.1"), "0.1", true},
		{"abc", "", false},
		{"", "", false},
		{"-", "", false},
		{"1.2.3", "", false},
		{nil, "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%v expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%v expected error", tc.in)
			}
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("%v expected ErrInvalidAmount, got %v", tc.in, err)
			}
		}
	}
}

func TestAmountOrZero(t *testing.T) {
	if !AmountOrZero("n/a").IsZero() {
		t.Fatalf("expected zero for unreadable input")
	}
	if !AmountOrZero(" 10.5 ").Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("expected 10.5")
	}
}

func TestCell(t *testing.T) {
	if got := Cell(decimal.RequireFromString("164.516129")); got != 164.52 {
		t.Fatalf("expected 164.52, got %v", got)
	}
}
