// Package table is the rectangular, header-addressed view of a sheet that every
// collaborator adapter hands to the engine.
package table

import (
	"fmt"
	"strings"

	"budgetflow/internal/core"
)

// Table is a header row plus data rows. Cells hold whatever the collaborator
// produced: strings, float64 numbers, time values or nil.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// FromValues splits a raw grid into header and rows. An empty grid yields an empty table.
func FromValues(name string, values [][]any) Table {
	t := Table{Name: name}
	if len(values) == 0 {
		return t
	}
	t.Header = make([]string, len(values[0]))
	for i, v := range values[0] {
		t.Header[i] = CellString(v)
	}
	t.Rows = values[1:]
	return t
}

// Values returns the header followed by the rows, ready to be written out.
func (t Table) Values() [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	h := make([]any, len(t.Header))
	for i, s := range t.Header {
		h[i] = s
	}
	out = append(out, h)
	out = append(out, t.Rows...)
	return out
}

// Grid returns the raw grid including the header row, for tables whose header
// is not on the first line.
func (t Table) Grid() [][]any { return t.Values() }

// Index maps header labels to column positions.
type Index map[string]int

// Index builds the header index. The first occurrence of a label wins.
func (t Table) Index() Index {
	ix := make(Index, len(t.Header))
	for i, h := range t.Header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := ix[h]; !ok {
			ix[h] = i
		}
	}
	return ix
}

// Require builds the header index and fails with a MissingColumnError naming
// every absent column.
func (t Table) Require(columns ...string) (Index, error) {
	ix := t.Index()
	var missing []string
	for _, c := range columns {
		if _, ok := ix.Lookup(c); !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &core.MissingColumnError{Table: t.Name, Columns: missing}
	}
	return ix, nil
}

// Lookup finds a column, falling back to a case-insensitive match.
func (ix Index) Lookup(col string) (int, bool) {
	if i, ok := ix[col]; ok {
		return i, true
	}
	col = strings.TrimSpace(col)
	for h, i := range ix {
		if strings.EqualFold(h, col) {
			return i, true
		}
	}
	return -1, false
}

// Get returns the cell of row in column col, or nil when absent.
func (ix Index) Get(row []any, col string) any {
	i, ok := ix.Lookup(col)
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

// String returns the trimmed string form of a cell.
func (ix Index) String(row []any, col string) string {
	return CellString(ix.Get(row, col))
}

// CellString renders a cell as trimmed text; nil becomes "".
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// IsBlank reports whether every cell of row is empty.
func IsBlank(row []any) bool {
	for _, v := range row {
		if CellString(v) != "" {
			return false
		}
	}
	return true
}

// Column returns column i of every row, nil-padded.
func (t Table) Column(i int) []any {
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		if i < len(row) {
			out[r] = row[i]
		}
	}
	return out
}

// ColumnLetter converts a zero-based column position to its A1 letters: 0 is A, 26 is AA.
func ColumnLetter(i int) string {
	n := i + 1
	var b []byte
	for n > 0 {
		rem := (n - 1) % 26
		b = append([]byte{byte('A' + rem)}, b...)
		n = (n - 1) / 26
	}
	return string(b)
}

// FirstDataRow is the sheet row number of Rows[0].
const FirstDataRow = 2
