package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// AccountID is a chart-of-accounts label such as "Grants (102)".
	AccountID string

	// FundingSourceID names one funding source budget.
	FundingSourceID string

	// LedgerRow is one budget line item spread over an inclusive date range.
	LedgerRow struct {
		Account AccountID
		Start   Date
		End     Date
		Amount  decimal.Decimal
		Line    int // sheet row number, 0 for derived rows
	}
)

// NormalizeAccount trims surrounding whitespace from a raw account cell.
func NormalizeAccount(s string) AccountID {
	return AccountID(strings.TrimSpace(s))
}

func (a AccountID) String() string { return string(a) }

func (f FundingSourceID) String() string { return string(f) }

// Validate checks the row invariants: a non-empty account and start <= end.
func (r LedgerRow) Validate() error {
	if strings.TrimSpace(string(r.Account)) == "" {
		return &MalformedRowError{Line: r.Line, Field: "account", Reason: "empty account"}
	}
	if r.Start.IsZero() {
		return &MalformedRowError{Line: r.Line, Field: "start", Reason: "missing start date"}
	}
	if r.End.IsZero() {
		return &MalformedRowError{Line: r.Line, Field: "end", Reason: "missing end date"}
	}
	if r.End.Before(r.Start.Time) {
		return &MalformedRowError{
			Line:   r.Line,
			Field:  "end",
			Value:  r.End.String(),
			Reason: "end date before start date " + r.Start.String(),
		}
	}
	return nil
}

// Days returns the inclusive number of days covered by the row.
func (r LedgerRow) Days() int {
	return DaysBetween(r.Start, r.End) + 1
}

// Derived builds a synthetic single-day row dated on the given day.
func Derived(account AccountID, on Date, amount decimal.Decimal) LedgerRow {
	return LedgerRow{Account: account, Start: on, End: on, Amount: amount}
}
