package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/period"
)

// IncomeEntry is one income row being drawn down by expenses.
type IncomeEntry struct {
	Account   core.AccountID
	Date      core.Date
	Original  decimal.Decimal
	Remaining decimal.Decimal
	Line      int
}

// QuarterResult is the waterfall outcome for one quarter.
type QuarterResult struct {
	Quarter   period.Quarter
	Expense   decimal.Decimal
	Released  map[core.AccountID]decimal.Decimal
	Deferred  map[core.AccountID]decimal.Decimal
	Uncovered decimal.Decimal
}

// UncoveredExpense is the warning raised when a quarter spends more than the
// income received by its end.
type UncoveredExpense struct {
	Source    core.FundingSourceID
	Quarter   period.Quarter
	Expense   decimal.Decimal
	Uncovered decimal.Decimal
}

func (u *UncoveredExpense) Error() string {
	return fmt.Sprintf("%s %s: %s of %s expenses not covered by income",
		u.Source, u.Quarter, u.Uncovered.StringFixed(2), u.Expense.StringFixed(2))
}

func (u *UncoveredExpense) Unwrap() error { return core.ErrUncoveredExpense }

// Waterfall holds the income entries after consumption and the per-quarter results.
type Waterfall struct {
	Entries  []IncomeEntry
	Quarters []QuarterResult
}

// IncomeEntries collects the income rows with a non-zero amount, ordered by
// date. Entries on the same date keep their ledger order.
func IncomeEntries(rows []core.LedgerRow, s Settings) []IncomeEntry {
	var out []IncomeEntry
	for _, r := range rows {
		if !s.IsRevenue(r.Account) || r.Amount.IsZero() {
			continue
		}
		out = append(out, IncomeEntry{
			Account:   r.Account,
			Date:      r.Start,
			Original:  r.Amount,
			Remaining: r.Amount,
			Line:      r.Line,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// QuarterlyExpense sums the part of every expense row that falls in q.
func QuarterlyExpense(rows []core.LedgerRow, q period.Quarter, s Settings) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		if s.IsExpense(r.Account) {
			total = total.Add(shareOf(r, q))
		}
	}
	return total
}

// RunWaterfall releases income against expenses quarter by quarter. Income is
// consumed first in, first out across all revenue accounts, and only entries
// dated on or before the quarter end are eligible. After each quarter the
// remaining balance of every eligible entry is recorded as deferred revenue.
func RunWaterfall(source core.FundingSourceID, rows []core.LedgerRow, quarters []period.Quarter, s Settings) (Waterfall, []error) {
	w := Waterfall{Entries: IncomeEntries(rows, s)}
	var warnings []error
	for _, q := range quarters {
		res := QuarterResult{
			Quarter:   q,
			Expense:   QuarterlyExpense(rows, q, s),
			Released:  make(map[core.AccountID]decimal.Decimal),
			Deferred:  make(map[core.AccountID]decimal.Decimal),
			Uncovered: decimal.Zero,
		}
		end := q.End()

		if res.Expense.IsPositive() {
			left := res.Expense
			for i := range w.Entries {
				e := &w.Entries[i]
				if e.Date.After(end.Time) {
					continue
				}
				if !left.IsPositive() {
					break
				}
				if !e.Remaining.IsPositive() {
					continue
				}
				used := decimal.Min(left, e.Remaining)
				e.Remaining = e.Remaining.Sub(used)
				left = left.Sub(used)
				res.Released[e.Account] = res.Released[e.Account].Add(used)
			}
			if left.IsPositive() {
				res.Uncovered = left
				warnings = append(warnings, &UncoveredExpense{Source: source, Quarter: q, Expense: res.Expense, Uncovered: left})
			}
		}

		for _, e := range w.Entries {
			if e.Date.After(end.Time) {
				continue
			}
			res.Deferred[e.Account] = res.Deferred[e.Account].Add(e.Remaining)
		}
		w.Quarters = append(w.Quarters, res)
	}
	return w, warnings
}

// Rows builds the synthetic ledger rows for the waterfall: per quarter and per
// revenue account, a released row booked to the income account and a deferred
// row booked to the deferred revenue account, each dated on the quarter end and
// only when positive.
func (w Waterfall) Rows(s Settings) []core.LedgerRow {
	var out []core.LedgerRow
	for _, q := range w.Quarters {
		end := q.Quarter.End()
		for _, acc := range s.RevenueAccounts {
			if r := q.Released[acc]; r.IsPositive() {
				out = append(out, core.Derived(acc, end, r))
			}
			if d := q.Deferred[acc]; d.IsPositive() {
				out = append(out, core.Derived(s.DeferredAccount, end, d))
			}
		}
	}
	return out
}

// TotalReleased sums the releases of acc over every quarter.
func (w Waterfall) TotalReleased(acc core.AccountID) decimal.Decimal {
	total := decimal.Zero
	for _, q := range w.Quarters {
		total = total.Add(q.Released[acc])
	}
	return total
}

// Deferred returns the deferred balance of acc at the end of the last quarter.
func (w Waterfall) Deferred(acc core.AccountID) decimal.Decimal {
	if len(w.Quarters) == 0 {
		return decimal.Zero
	}
	return w.Quarters[len(w.Quarters)-1].Deferred[acc]
}

// QuarterBreakdown is the expense of one quarter split by account.
type QuarterBreakdown struct {
	Quarter   period.Quarter
	ByAccount map[core.AccountID]decimal.Decimal
	Total     decimal.Decimal
}

// ExpenseBreakdown splits every quarter's expense by account.
func ExpenseBreakdown(rows []core.LedgerRow, quarters []period.Quarter, s Settings) []QuarterBreakdown {
	out := make([]QuarterBreakdown, 0, len(quarters))
	for _, q := range quarters {
		b := QuarterBreakdown{Quarter: q, ByAccount: make(map[core.AccountID]decimal.Decimal), Total: decimal.Zero}
		for _, r := range rows {
			if !s.IsExpense(r.Account) {
				continue
			}
			share := shareOf(r, q)
			if share.IsZero() {
				continue
			}
			b.ByAccount[r.Account] = b.ByAccount[r.Account].Add(share)
			b.Total = b.Total.Add(share)
		}
		out = append(out, b)
	}
	return out
}
