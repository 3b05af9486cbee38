package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"budgetflow/internal/core"
	"budgetflow/internal/period"
	"budgetflow/internal/table"
)

// Matrix is a dense account by month grid. Every catalog account has a row and
// every month of the reporting span has a column, zero when nothing was booked.
type Matrix struct {
	catalog core.Catalog
	months  []period.Month
	column  map[period.Month]int
	cells   [][]decimal.Decimal
}

// NewMatrix returns a zero-filled matrix.
func NewMatrix(catalog core.Catalog, months []period.Month) *Matrix {
	m := &Matrix{
		catalog: catalog,
		months:  append([]period.Month(nil), months...),
		column:  make(map[period.Month]int, len(months)),
		cells:   make([][]decimal.Decimal, catalog.Len()),
	}
	for i, mo := range months {
		m.column[mo] = i
	}
	for i := range m.cells {
		row := make([]decimal.Decimal, len(months))
		for j := range row {
			row[j] = decimal.Zero
		}
		m.cells[i] = row
	}
	return m
}

func (m *Matrix) Months() []period.Month { return append([]period.Month(nil), m.months...) }

func (m *Matrix) Accounts() []core.AccountID { return m.catalog.Accounts() }

// Add books amount on (account, month). It reports false when either is outside the matrix.
func (m *Matrix) Add(account core.AccountID, month period.Month, amount decimal.Decimal) bool {
	r := m.catalog.Index(account)
	c, ok := m.column[month]
	if r < 0 || !ok {
		return false
	}
	m.cells[r][c] = m.cells[r][c].Add(amount)
	return true
}

// Get returns the cell value, zero outside the matrix.
func (m *Matrix) Get(account core.AccountID, month period.Month) decimal.Decimal {
	r := m.catalog.Index(account)
	c, ok := m.column[month]
	if r < 0 || !ok {
		return decimal.Zero
	}
	return m.cells[r][c]
}

// Accumulate spreads each row over months and adds it in. Rows with a zero
// amount or an account outside the catalog are skipped; the number skipped for
// the account reason is returned.
func (m *Matrix) Accumulate(rows []core.LedgerRow) (int, error) {
	return m.apply(rows, false)
}

// Subtract removes the monthly allocation of each row.
func (m *Matrix) Subtract(rows []core.LedgerRow) (int, error) {
	return m.apply(rows, true)
}

func (m *Matrix) apply(rows []core.LedgerRow, negate bool) (int, error) {
	dropped := 0
	for _, r := range rows {
		if r.Amount.IsZero() {
			continue
		}
		if !m.catalog.Contains(r.Account) {
			dropped++
			continue
		}
		allocs, err := AllocateToMonths(r)
		if err != nil {
			return dropped, err
		}
		for _, a := range allocs {
			amt := a.Amount
			if negate {
				amt = amt.Neg()
			}
			m.Add(r.Account, a.Bucket, amt)
		}
	}
	return dropped, nil
}

// AddMatrix adds o cell by cell. Both matrices must share catalog and months.
func (m *Matrix) AddMatrix(o *Matrix) error {
	if len(o.cells) != len(m.cells) || len(o.months) != len(m.months) {
		return fmt.Errorf("matrix shape mismatch: %dx%d vs %dx%d", len(m.cells), len(m.months), len(o.cells), len(o.months))
	}
	for i := range m.cells {
		for j := range m.cells[i] {
			m.cells[i][j] = m.cells[i][j].Add(o.cells[i][j])
		}
	}
	return nil
}

// Combine sums matrices into a new one over the same catalog and months.
func Combine(catalog core.Catalog, months []period.Month, ms ...*Matrix) (*Matrix, error) {
	out := NewMatrix(catalog, months)
	for _, m := range ms {
		if err := out.AddMatrix(m); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RowTotal sums an account over every month.
func (m *Matrix) RowTotal(account core.AccountID) decimal.Decimal {
	r := m.catalog.Index(account)
	total := decimal.Zero
	if r < 0 {
		return total
	}
	for _, v := range m.cells[r] {
		total = total.Add(v)
	}
	return total
}

// Total sums every cell.
func (m *Matrix) Total() decimal.Decimal {
	total := decimal.Zero
	for _, row := range m.cells {
		for _, v := range row {
			total = total.Add(v)
		}
	}
	return total
}

// Each calls fn for every non-zero cell, in account then month order.
func (m *Matrix) Each(fn func(account core.AccountID, month period.Month, amount decimal.Decimal)) {
	accounts := m.catalog.Accounts()
	for i, row := range m.cells {
		for j, v := range row {
			if !v.IsZero() {
				fn(accounts[i], m.months[j], v)
			}
		}
	}
}

// Table renders the matrix with amounts rounded to cents. The header is the
// account column followed by one column per month formatted with layout.
func (m *Matrix) Table(name, layout string) table.Table {
	if layout == "" {
		layout = period.DefaultMonthLayout
	}
	header := make([]string, 0, len(m.months)+1)
	header = append(header, string(core.AccountHeader))
	for _, mo := range m.months {
		header = append(header, mo.Format(layout))
	}
	rows := make([][]any, 0, len(m.cells))
	for i, a := range m.catalog.Accounts() {
		row := make([]any, 0, len(m.months)+1)
		row = append(row, string(a))
		for _, v := range m.cells[i] {
			row = append(row, core.Cell(v))
		}
		rows = append(rows, row)
	}
	return table.Table{Name: name, Header: header, Rows: rows}
}
