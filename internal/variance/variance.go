// Package variance updates a budget's Actual column from reconciliation
// ledgers and points its Forecast column at Amount minus Actual.
package variance

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/table"
)

// BudgetColumns names the budget table headers.
type BudgetColumns struct {
	Category string
	Amount   string
	Actual   string
	Forecast string
}

// ReconciliationColumns names the reconciliation table headers.
type ReconciliationColumns struct {
	Category      string
	FundingSource string
	Debit         string
	Credit        string
}

type Settings struct {
	Budget         BudgetColumns
	Reconciliation ReconciliationColumns
}

func DefaultSettings() Settings {
	return Settings{
		Budget: BudgetColumns{
			Category: "Expense/Income",
			Amount:   "Amount",
			Actual:   "Actual",
			Forecast: "Forecast",
		},
		Reconciliation: ReconciliationColumns{
			Category:      "Reconciled Expense/Income",
			FundingSource: "Funding Source",
			Debit:         "Debit (NZD)",
			Credit:        "Credit (NZD)",
		},
	}
}

// Reconciliation is one reconciliation ledger.
type Reconciliation struct {
	Name  string
	Table table.Table
}

// SourceLine is the contribution of one reconciliation ledger to a category.
type SourceLine struct {
	File   string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// CategoryTotal accumulates the matched reconciliation rows of one category.
type CategoryTotal struct {
	Category string
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	Lines    []SourceLine
}

// Actual is the absolute net of debits and credits.
func (c *CategoryTotal) Actual() decimal.Decimal {
	return c.Debit.Sub(c.Credit).Abs()
}

func (c *CategoryTotal) add(file string, debit, credit decimal.Decimal) {
	c.Debit = c.Debit.Add(debit)
	c.Credit = c.Credit.Add(credit)
	for i := range c.Lines {
		if c.Lines[i].File == file {
			c.Lines[i].Debit = c.Lines[i].Debit.Add(debit)
			c.Lines[i].Credit = c.Lines[i].Credit.Add(credit)
			return
		}
	}
	c.Lines = append(c.Lines, SourceLine{File: file, Debit: debit, Credit: credit})
}

// Result is the new content of the Actual and Forecast columns, one cell per budget row.
type Result struct {
	ActualColumn   int
	ForecastColumn int
	Actuals        []any
	Forecasts      []any
	Totals         map[string]*CategoryTotal
	Skipped        []error
}

// Categories returns the matched categories in name order.
func (r *Result) Categories() []string {
	out := make([]string, 0, len(r.Totals))
	for c := range r.Totals {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Reconcile matches reconciliation rows tagged with identity against the
// budget's categories. Categories with at least one match get a new Actual;
// the others keep the value already in the budget. Reconciliation ledgers
// lacking a required column are skipped and reported in Result.Skipped.
func Reconcile(identity core.FundingSourceID, budget table.Table, recs []Reconciliation, s Settings) (*Result, error) {
	bc := s.Budget
	bix, err := budget.Require(bc.Category, bc.Amount, bc.Actual, bc.Forecast)
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", identity, err)
	}

	categories := make(map[string]struct{})
	for _, r := range budget.Rows {
		if c := bix.String(r, bc.Category); c != "" {
			categories[c] = struct{}{}
		}
	}

	res := &Result{Totals: make(map[string]*CategoryTotal)}
	rc := s.Reconciliation
	for _, rec := range recs {
		rix, err := rec.Table.Require(rc.Category, rc.FundingSource, rc.Debit, rc.Credit)
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Errorf("reconciliation %s: %w", rec.Name, err))
			continue
		}
		for _, r := range rec.Table.Rows {
			if rix.String(r, rc.FundingSource) != string(identity) {
				continue
			}
			cat := rix.String(r, rc.Category)
			if _, ok := categories[cat]; !ok {
				continue
			}
			t, ok := res.Totals[cat]
			if !ok {
				t = &CategoryTotal{Category: cat}
				res.Totals[cat] = t
			}
			t.add(rec.Name, core.AmountOrZero(rix.Get(r, rc.Debit)), core.AmountOrZero(rix.Get(r, rc.Credit)))
		}
	}

	res.ActualColumn, _ = bix.Lookup(bc.Actual)
	res.ForecastColumn, _ = bix.Lookup(bc.Forecast)
	amountCol, _ := bix.Lookup(bc.Amount)
	amountLetter := table.ColumnLetter(amountCol)
	actualLetter := table.ColumnLetter(res.ActualColumn)

	res.Actuals = make([]any, len(budget.Rows))
	res.Forecasts = make([]any, len(budget.Rows))
	for i, r := range budget.Rows {
		if t, ok := res.Totals[bix.String(r, bc.Category)]; ok {
			res.Actuals[i] = core.Cell(t.Actual())
		} else if prev := bix.Get(r, bc.Actual); prev != nil {
			res.Actuals[i] = prev
		} else {
			res.Actuals[i] = ""
		}
		line := i + table.FirstDataRow
		res.Forecasts[i] = fmt.Sprintf("=%s%d-%s%d", amountLetter, line, actualLetter, line)
	}
	return res, nil
}
