package engine

import (
	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/period"
)

// Allocation is the share of a row's amount that falls in one bucket.
type Allocation[B period.Bucket] struct {
	Bucket B
	Amount decimal.Decimal
}

// Allocate spreads row.Amount over buckets by inclusive day overlap. Buckets
// the row does not touch get no allocation.
func Allocate[B period.Bucket](row core.LedgerRow, buckets []B) ([]Allocation[B], error) {
	if err := row.Validate(); err != nil {
		return nil, err
	}
	total := decimal.NewFromInt(int64(row.Days()))
	out := make([]Allocation[B], 0, len(buckets))
	for _, b := range buckets {
		overlap := period.OverlapDays(row.Start, row.End, b.Start(), b.End())
		if overlap <= 0 {
			continue
		}
		out = append(out, Allocation[B]{
			Bucket: b,
			Amount: row.Amount.Mul(decimal.NewFromInt(int64(overlap))).Div(total),
		})
	}
	return out, nil
}

// AllocateToMonths spreads a row over the months it spans.
func AllocateToMonths(row core.LedgerRow) ([]Allocation[period.Month], error) {
	return Allocate(row, period.MonthsBetween(row.Start, row.End))
}

// AllocateToQuarters spreads a row over the quarters it spans.
func AllocateToQuarters(row core.LedgerRow) ([]Allocation[period.Quarter], error) {
	return Allocate(row, period.QuartersBetween(row.Start, row.End))
}

// shareOf returns the part of row that falls inside b, zero when they do not overlap.
func shareOf(row core.LedgerRow, b period.Bucket) decimal.Decimal {
	overlap := period.OverlapDays(row.Start, row.End, b.Start(), b.End())
	if overlap <= 0 {
		return decimal.Zero
	}
	return row.Amount.Mul(decimal.NewFromInt(int64(overlap))).Div(decimal.NewFromInt(int64(row.Days())))
}
