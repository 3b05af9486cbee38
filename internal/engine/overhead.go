package engine

import (
	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/period"
)

// SplitOverhead replaces one overhead row with a row per quarter it spans,
// weighted by each quarter's share of the expense base. The base is every row
// that is neither overhead nor income nor deferred revenue. When the base is
// not positive the overhead is split evenly. Each quarter row is dated on the last
// day of its quarter.
func SplitOverhead(overhead core.LedgerRow, rows []core.LedgerRow, s Settings) ([]core.LedgerRow, error) {
	if err := overhead.Validate(); err != nil {
		return nil, err
	}
	quarters := period.QuartersBetween(overhead.Start, overhead.End)
	base := make([]decimal.Decimal, len(quarters))
	total := decimal.Zero
	for i, q := range quarters {
		for _, r := range rows {
			if r.Account == s.OverheadAccount || !s.IsExpense(r.Account) {
				continue
			}
			base[i] = base[i].Add(shareOf(r, q))
		}
		total = total.Add(base[i])
	}

	out := make([]core.LedgerRow, 0, len(quarters))
	even := decimal.NewFromInt(int64(len(quarters)))
	for i, q := range quarters {
		var amount decimal.Decimal
		if !total.IsPositive() {
			amount = overhead.Amount.Div(even)
		} else {
			amount = overhead.Amount.Mul(base[i]).Div(total)
		}
		row := core.Derived(overhead.Account, q.End(), amount)
		row.Line = overhead.Line
		out = append(out, row)
	}
	return out, nil
}

// SplitOverheads returns rows with every overhead row replaced, in place, by its
// quarterly split. Rows without an overhead entry are returned unchanged.
func SplitOverheads(rows []core.LedgerRow, s Settings) ([]core.LedgerRow, error) {
	out := make([]core.LedgerRow, 0, len(rows))
	for _, r := range rows {
		if r.Account != s.OverheadAccount {
			out = append(out, r)
			continue
		}
		split, err := SplitOverhead(r, rows, s)
		if err != nil {
			return nil, err
		}
		out = append(out, split...)
	}
	return out, nil
}
