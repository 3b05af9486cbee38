package overview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/core"
)

func workbook() Workbook {
	return Workbook{
		Source:  "Conservation Fund 2024",
		Secured: true,
		Budget: [][]any{
			{"Conservation Fund 2024", "", "", "", ""},
			{"", "", "", "", ""},
			{"Milestone", "Description", "Cost", "Income", "Xero Inventory Item"},
			{"M1", "Field work", float64(1000), float64(0), "CF-M1"},
			{"M2", "Reporting", "$2,500.00", "", "CF-M2"},
			{"", "", "", "", ""},
			{"M3", "No item", float64(300), float64(0), ""},
			{"", "Grant payment", float64(0), float64(5000), ""},
		},
		Tracking: [][]any{
			{"Item", "Budget", "Q1", "Q2", "Total Actual to date"},
			{"Income", "", "", "", ""},
			{"CF-M1", float64(5000), "", "", float64(9999)},
			{"Expenses", "", "", "", ""},
			{"CF-M1", float64(1000), float64(200), float64(150), float64(350)},
			{"CF-M2", float64(2500), "", "", ""},
			{"Total Expenses", "", "", "", float64(350)},
		},
	}
}

func TestExtract(t *testing.T) {
	lines, err := Extract(workbook())
	require.NoError(t, err)
	require.Len(t, lines, 4)

	assert.Equal(t, Line{Source: "Conservation Fund 2024", Secured: true, Milestone: "M1", Cost: 1000, Actual: 350}, lines[0])
	assert.Equal(t, 2500.0, lines[1].Cost)
	assert.Equal(t, 0.0, lines[1].Actual)
	assert.Equal(t, "M3", lines[2].Milestone)
	assert.Equal(t, 5000.0, lines[3].Income)

	assert.Equal(t, []any{"Conservation Fund 2024", "Yes", "M1", 1000.0, 0.0, 350.0}, lines[0].Row())
}

func TestExtractWithoutTracking(t *testing.T) {
	wb := workbook()
	wb.Tracking = [][]any{{"Nothing useful"}}
	wb.Secured = false
	lines, err := Extract(wb)
	assert.ErrorIs(t, err, ErrNoExpensesBlock)
	require.Len(t, lines, 4)
	assert.Equal(t, 0.0, lines[0].Actual)
	assert.Equal(t, "No", lines[0].Row()[1])

	wb.Tracking = nil
	lines, err = Extract(wb)
	assert.NoError(t, err)
	assert.Len(t, lines, 4)
}

func TestExtractErrors(t *testing.T) {
	_, err := Extract(Workbook{Source: "x"})
	assert.ErrorIs(t, err, core.ErrMissingCollaboratorData)

	_, err = Extract(Workbook{Source: "x", Budget: [][]any{{"Milestone", "Cost"}}})
	assert.ErrorIs(t, err, ErrNoBudgetHeader)
}

func TestBuild(t *testing.T) {
	lines, err := Extract(workbook())
	require.NoError(t, err)
	tbl := Build(lines)
	assert.Equal(t, SheetName, tbl.Name)
	assert.Equal(t, Header, tbl.Header)
	assert.Len(t, tbl.Rows, 4)
}
