package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes the header and rows as CSV.
func (t Table) WriteCSV(w io.Writer) error {
	return WriteGridCSV(w, t.Values())
}

// WriteGridCSV writes a raw grid as CSV, rendering cells with FormatCell.
func WriteGridCSV(w io.Writer, grid [][]any) error {
	cw := csv.NewWriter(w)
	for _, row := range grid {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = FormatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders a cell for text output: floats without trailing zeros, nil as "".
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
