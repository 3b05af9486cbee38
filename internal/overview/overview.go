// Package overview builds the cross-source funding overview: one line per
// budget milestone with its cost, income and actual spend to date.
package overview

import (
	"errors"
	"fmt"
	"strings"

	"budgetflow/internal/core"
	"budgetflow/internal/table"
)

const (
	BudgetSheet   = "Budget"
	TrackingSheet = "Budget, Actual, Forecast Tracking"
	SheetName     = "Overview"
)

// Header is the overview table header.
var Header = []string{"Funding Source", "Secured", "Milestone", "Cost", "Income", "Total Actual to Date"}

var (
	ErrNoBudgetHeader  = errors.New("budget header row not found")
	ErrNoExpensesBlock = errors.New("tracking expenses block not found")
)

// Workbook is the raw content of one funding source spreadsheet. A nil grid
// means the sheet does not exist.
type Workbook struct {
	Source   core.FundingSourceID
	Secured  bool
	Budget   [][]any
	Tracking [][]any
}

// Line is one overview row.
type Line struct {
	Source    core.FundingSourceID
	Secured   bool
	Milestone string
	Cost      float64
	Income    float64
	Actual    float64
}

// Row renders the line in Header order.
func (l Line) Row() []any {
	secured := "No"
	if l.Secured {
		secured = "Yes"
	}
	return []any{string(l.Source), secured, l.Milestone, l.Cost, l.Income, l.Actual}
}

// Extract reads the milestone lines of a workbook. Actuals come from the
// tracking sheet, keyed by the milestone's Xero inventory item; milestones
// without an item or without tracking data report zero. A workbook without a
// recognisable tracking sheet still yields its lines, with the problem returned
// as a warning next to them.
func Extract(wb Workbook) ([]Line, error) {
	if wb.Budget == nil {
		return nil, &core.MissingDataError{What: "sheet", Name: BudgetSheet}
	}
	cols, headerRow, ok := findBudgetHeader(wb.Budget)
	if !ok {
		return nil, fmt.Errorf("%s: %w", wb.Source, ErrNoBudgetHeader)
	}

	items := make(map[string]string)
	for _, r := range wb.Budget[headerRow+1:] {
		m, item := cell(r, cols.milestone), cell(r, cols.item)
		if m != "" && item != "" {
			items[m] = item
		}
	}

	var warning error
	actuals := map[string]float64{}
	if wb.Tracking != nil {
		var found bool
		if actuals, found = TrackingActuals(wb.Tracking); !found {
			warning = fmt.Errorf("%s: %w", wb.Source, ErrNoExpensesBlock)
		}
	}

	var out []Line
	for _, r := range wb.Budget[headerRow+1:] {
		milestone := cell(r, cols.milestone)
		cost := amount(r, cols.cost)
		income := amount(r, cols.income)
		if milestone == "" && cost == 0 && income == 0 {
			continue
		}
		line := Line{Source: wb.Source, Secured: wb.Secured, Milestone: milestone, Cost: cost, Income: income}
		if item := items[milestone]; item != "" {
			line.Actual = actuals[item]
		}
		out = append(out, line)
	}
	return out, warning
}

type budgetColumns struct {
	milestone, cost, income, item int
}

// findBudgetHeader scans rows top down until every header label has been seen.
func findBudgetHeader(grid [][]any) (budgetColumns, int, bool) {
	cols := budgetColumns{-1, -1, -1, -1}
	for i, r := range grid {
		for j, v := range r {
			switch table.CellString(v) {
			case "Milestone":
				cols.milestone = j
			case "Cost":
				cols.cost = j
			case "Income":
				cols.income = j
			case "Xero Inventory Item":
				cols.item = j
			}
		}
		if cols.milestone >= 0 && cols.cost >= 0 && cols.income >= 0 && cols.item >= 0 {
			return cols, i, true
		}
	}
	return cols, -1, false
}

// TrackingActuals maps the item names of column A, between the "Expenses" and
// "Total Expenses" rows, to their "Total Actual to date" value.
func TrackingActuals(grid [][]any) (map[string]float64, bool) {
	out := make(map[string]float64)
	expenses, total, actualCol := -1, -1, -1
	for i, r := range grid {
		for j, v := range r {
			if strings.Contains(table.CellString(v), "Total Actual") {
				actualCol = j
			}
		}
		switch cell(r, 0) {
		case "Expenses":
			expenses = i
		case "Total Expenses":
			total = i
		}
	}
	if expenses < 0 || total < 0 || actualCol < 0 {
		return out, false
	}
	for i := expenses + 1; i < total; i++ {
		if item := cell(grid[i], 0); item != "" {
			out[item] = amount(grid[i], actualCol)
		}
	}
	return out, true
}

// Build renders lines as the overview table.
func Build(lines []Line) table.Table {
	t := table.Table{Name: SheetName, Header: append([]string(nil), Header...)}
	for _, l := range lines {
		t.Rows = append(t.Rows, l.Row())
	}
	return t
}

func cell(r []any, i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return table.CellString(r[i])
}

func amount(r []any, i int) float64 {
	if i < 0 || i >= len(r) {
		return 0
	}
	return core.Cell(core.AmountOrZero(r[i]))
}
