package engine

import (
	"fmt"

	"budgetflow/internal/core"
	"budgetflow/internal/table"
)

// Ledger is the parsed rows of one funding source.
type Ledger struct {
	Source  core.FundingSourceID
	Rows    []core.LedgerRow
	Skipped []error
}

// ReadLedger parses a source table. A missing required column fails the whole
// table; a row that cannot be read is recorded in Skipped and left out. Blank
// rows are ignored silently.
func ReadLedger(source core.FundingSourceID, t table.Table, s Settings) (Ledger, error) {
	l := Ledger{Source: source}
	ix, err := t.Require(s.Columns.All()...)
	if err != nil {
		return l, fmt.Errorf("read ledger %s: %w", source, err)
	}
	for i, raw := range t.Rows {
		line := i + table.FirstDataRow
		if table.IsBlank(raw) {
			continue
		}
		row, err := readRow(ix, raw, line, s.Columns)
		if err != nil {
			l.Skipped = append(l.Skipped, err)
			continue
		}
		l.Rows = append(l.Rows, row)
	}
	return l, nil
}

func readRow(ix table.Index, raw []any, line int, c Columns) (core.LedgerRow, error) {
	row := core.LedgerRow{Line: line, Account: core.NormalizeAccount(ix.String(raw, c.Account))}
	if row.Account == "" {
		return row, &core.MalformedRowError{Line: line, Field: c.Account, Reason: "empty account"}
	}
	var err error
	if row.Start, err = core.ParseDate(ix.Get(raw, c.Start)); err != nil {
		return row, &core.MalformedRowError{Line: line, Field: c.Start, Value: ix.String(raw, c.Start), Reason: err.Error()}
	}
	if row.End, err = core.ParseDate(ix.Get(raw, c.End)); err != nil {
		return row, &core.MalformedRowError{Line: line, Field: c.End, Value: ix.String(raw, c.End), Reason: err.Error()}
	}
	if row.Amount, err = core.ParseAmount(ix.Get(raw, c.Amount)); err != nil {
		return row, &core.MalformedRowError{Line: line, Field: c.Amount, Value: ix.String(raw, c.Amount), Reason: "not a number"}
	}
	if err := row.Validate(); err != nil {
		return row, err
	}
	return row, nil
}

// Span returns the earliest start and latest end of the ledger rows.
func (l Ledger) Span() (start, end core.Date, ok bool) {
	for i, r := range l.Rows {
		if i == 0 {
			start, end = r.Start, r.End
			continue
		}
		start = core.MinDate(start, r.Start)
		end = core.MaxDate(end, r.End)
	}
	return start, end, len(l.Rows) > 0
}

// GlobalSpan is the union of every ledger span.
func GlobalSpan(ledgers []Ledger) (start, end core.Date, ok bool) {
	for _, l := range ledgers {
		s, e, has := l.Span()
		if !has {
			continue
		}
		if !ok {
			start, end, ok = s, e, true
			continue
		}
		start = core.MinDate(start, s)
		end = core.MaxDate(end, e)
	}
	return start, end, ok
}
