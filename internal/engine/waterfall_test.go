package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/core"
	"budgetflow/internal/period"
)

var (
	grants   = core.AccountID("Grants (102)")
	contract = core.AccountID("Project Contract Income (181)")
	q1       = period.Quarter{Year: 2024, Number: 1}
	q2       = period.Quarter{Year: 2024, Number: 2}
)

func TestWaterfallFIFO(t *testing.T) {
	s := DefaultSettings()
	rows := []core.LedgerRow{
		row("Salaries (477)", core.NewDate(2024, 1, 1), core.NewDate(2024, 3, 31), "120"),
		row(string(contract), core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 1), "50"),
		row(string(grants), core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 1), "100"),
	}
	w, warnings := RunWaterfall("Fund A", rows, []period.Quarter{q1}, s)
	assert.Empty(t, warnings)
	require.Len(t, w.Quarters, 1)

	res := w.Quarters[0]
	assertDecimal(t, "120", res.Expense)
	assertDecimal(t, "100", res.Released[grants])
	assertDecimal(t, "20", res.Released[contract])
	assertDecimal(t, "0", res.Deferred[grants])
	assertDecimal(t, "30", res.Deferred[contract])

	// Earliest entry first regardless of ledger order.
	require.Len(t, w.Entries, 2)
	assert.Equal(t, grants, w.Entries[0].Account)
	assertDecimal(t, "30", w.Entries[1].Remaining)

	injected := w.Rows(s)
	require.Len(t, injected, 3)
	assert.Equal(t, grants, injected[0].Account)
	assertDecimal(t, "100", injected[0].Amount)
	assert.Equal(t, contract, injected[1].Account)
	assertDecimal(t, "20", injected[1].Amount)
	assert.Equal(t, s.DeferredAccount, injected[2].Account)
	assertDecimal(t, "30", injected[2].Amount)
	for _, r := range injected {
		assert.True(t, r.Start.Equal(q1.End().Time))
		assert.True(t, r.End.Equal(q1.End().Time))
	}
}

func TestWaterfallFutureIncomeNotEligible(t *testing.T) {
	s := DefaultSettings()
	rows := []core.LedgerRow{
		row("Salaries (477)", core.NewDate(2024, 1, 1), core.NewDate(2024, 3, 31), "50"),
		row(string(grants), core.NewDate(2024, 4, 15), core.NewDate(2024, 4, 15), "100"),
	}
	w, warnings := RunWaterfall("Fund A", rows, []period.Quarter{q1, q2}, s)
	require.Len(t, warnings, 1)
	assert.True(t, errors.Is(warnings[0], core.ErrUncoveredExpense))

	var u *UncoveredExpense
	require.ErrorAs(t, warnings[0], &u)
	assert.Equal(t, q1, u.Quarter)
	assertDecimal(t, "50", u.Uncovered)

	assertDecimal(t, "0", w.Quarters[0].Released[grants])
	assertDecimal(t, "0", w.Quarters[0].Deferred[grants])
	assertDecimal(t, "50", w.Quarters[0].Uncovered)
	assertDecimal(t, "0", w.Quarters[1].Expense)
	assertDecimal(t, "100", w.Quarters[1].Deferred[grants])
	assertDecimal(t, "100", w.Deferred(grants))
}

func TestWaterfallDeferredEqualsOriginalLessReleased(t *testing.T) {
	s := DefaultSettings()
	rows := []core.LedgerRow{
		row("Salaries (477)", core.NewDate(2024, 1, 1), core.NewDate(2024, 6, 30), "182"),
		row(string(grants), core.NewDate(2024, 1, 10), core.NewDate(2024, 1, 10), "150"),
		row(string(contract), core.NewDate(2024, 5, 1), core.NewDate(2024, 5, 1), "80"),
	}
	w, warnings := RunWaterfall("Fund A", rows, []period.Quarter{q1, q2}, s)
	assert.Empty(t, warnings)

	for _, acc := range []core.AccountID{grants, contract} {
		original := dec("0")
		for _, e := range w.Entries {
			if e.Account == acc {
				original = original.Add(e.Original)
			}
		}
		assertDecimal(t, original.Sub(w.TotalReleased(acc)).String(), w.Deferred(acc), acc)
	}
	// Q1 salaries are 91 of 182 days.
	assertDecimal(t, "91", w.Quarters[0].Released[grants])
	assertDecimal(t, "59", w.Quarters[1].Released[grants])
	assertDecimal(t, "32", w.Quarters[1].Released[contract])
	assertDecimal(t, "48", w.Quarters[1].Deferred[contract])
}

func TestWaterfallNegativeExpenseReleasesNothing(t *testing.T) {
	s := DefaultSettings()
	rows := []core.LedgerRow{
		row("Refunds (470)", core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 1), "-40"),
		row(string(grants), core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 1), "100"),
	}
	w, warnings := RunWaterfall("Fund A", rows, []period.Quarter{q1}, s)
	assert.Empty(t, warnings)
	assert.Empty(t, w.Quarters[0].Released)
	assertDecimal(t, "100", w.Quarters[0].Deferred[grants])
}

func TestExpenseBreakdown(t *testing.T) {
	s := DefaultSettings()
	rows := []core.LedgerRow{
		row("Salaries (477)", core.NewDate(2024, 1, 1), core.NewDate(2024, 6, 30), "182"),
		row("Travel (493)", core.NewDate(2024, 2, 1), core.NewDate(2024, 2, 1), "10"),
		row(string(grants), core.NewDate(2024, 1, 1), core.NewDate(2024, 1, 1), "1000"),
	}
	b := ExpenseBreakdown(rows, []period.Quarter{q1, q2}, s)
	require.Len(t, b, 2)
	assertDecimal(t, "101", b[0].Total)
	assertDecimal(t, "91", b[0].ByAccount["Salaries (477)"])
	assert.NotContains(t, b[0].ByAccount, grants)
	assertDecimal(t, "91", b[1].Total)
	assertDecimal(t, QuarterlyExpense(rows, q1, s).String(), b[0].Total)
}
