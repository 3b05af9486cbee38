// Package core provides the ledger domain types and the parsing of raw cell values.
//
// This file contains amount parsing. Amounts are decimals at full precision and are
// only rounded when presented.
package core

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// ParseAmount reads an amount cell. Strings have every character other than
// digits, '.' and '-' removed first, so "$1,234.50" reads as 1234.50.
func ParseAmount(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, ErrInvalidAmount
	case decimal.Decimal:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, ErrInvalidAmount
		}
		return decimal.NewFromFloat(x), nil
	case int:
		return decimal.NewFromInt(int64(x)), nil
	case int64:
		return decimal.NewFromInt(x), nil
	case string:
		return parseAmountString(x)
	default:
		return parseAmountString(fmt.Sprint(x))
	}
}

func parseAmountString(s string) (decimal.Decimal, error) {
	cleaned := nonNumeric.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// AmountOrZero parses like ParseAmount but treats anything unreadable as zero.
func AmountOrZero(v any) decimal.Decimal {
	d, err := ParseAmount(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Round2 rounds an amount to cents for presentation.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cell converts an amount into the value written to an output table.
func Cell(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
