// Package files is a workspace backed by a local directory:
//
//	<root>/accounts.csv                  chart of accounts export
//	<root>/secured/<source>/<sheet>.csv  one CSV per sheet
//	<root>/secured/<source>.xls          or a legacy workbook
//	<root>/secured/<source>.csv          or a single Budget sheet
//	<root>/proposed/...                  same layout
//	<root>/reconciliations/*.csv         Reconciliation sheets
//
// Reports are written as one CSV per sheet under the output directory.
package files

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/extrame/xls"

	"budgetflow/internal/sheets"
	"budgetflow/internal/table"
)

const (
	accountsFile        = "accounts.csv"
	reconciliationsDir  = "reconciliations"
	previousQuartersDir = "previous_quarters"
	xlsCharset          = "utf-8"
	validationSuffix    = ".validation"
)

// Store reads funding sources from root and writes reports to out.
type Store struct {
	mu            sync.Mutex
	root          string
	out           string
	catalogColumn int
}

var _ sheets.Workspace = (*Store)(nil)

// New creates a store. catalogColumn is the zero-based account column of accounts.csv.
func New(root, out string, catalogColumn int) *Store {
	return &Store{root: root, out: out, catalogColumn: catalogColumn}
}

// ProjectName is the name of the root directory.
func (s *Store) ProjectName(_ context.Context) (string, error) {
	abs, err := filepath.Abs(s.root)
	if err != nil {
		return "", err
	}
	return filepath.Base(abs), nil
}

func (s *Store) ListSources(_ context.Context, folder sheets.Folder) ([]sheets.SourceRef, error) {
	dir := filepath.Join(s.root, string(folder))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	var out []sheets.SourceRef
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		switch ext := strings.ToLower(filepath.Ext(name)); {
		case e.IsDir():
			out = append(out, sheets.SourceRef{ID: filepath.Join(dir, name), Name: name, Folder: folder})
		case ext == ".csv" || ext == ".xls":
			out = append(out, sheets.SourceRef{ID: filepath.Join(dir, name), Name: strings.TrimSuffix(name, filepath.Ext(name)), Folder: folder})
		}
	}
	return out, nil
}

// ReadSheet resolves the sheet inside the workbook the reference points at.
func (s *Store) ReadSheet(_ context.Context, ref sheets.SourceRef, sheet string) ([][]any, error) {
	info, err := os.Stat(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref.Name, err)
	}
	switch {
	case info.IsDir():
		grid, err := readCSV(filepath.Join(ref.ID, sheet+".csv"))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sheets.MissingSheet(ref, sheet)
		}
		return grid, err
	case strings.EqualFold(filepath.Ext(ref.ID), ".xls"):
		return readXLSSheet(ref, sheet)
	default:
		// A lone CSV holds the sheet it is registered under: Budget for
		// funding sources, Reconciliation for reconciliation files.
		if sheet != sheets.BudgetSheet && sheet != sheets.ReconciliationSheet {
			return nil, sheets.MissingSheet(ref, sheet)
		}
		return readCSV(ref.ID)
	}
}

func (s *Store) ReadAccounts(_ context.Context) ([]string, error) {
	grid, err := readCSV(filepath.Join(s.root, accountsFile))
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	out := make([]string, 0, len(grid))
	for _, r := range grid {
		if s.catalogColumn < len(r) {
			out = append(out, table.CellString(r[s.catalogColumn]))
		}
	}
	return out, nil
}

// ReplaceSheets removes every CSV in the output directory and writes the tables.
func (s *Store) ReplaceSheets(_ context.Context, tables []table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	old, err := filepath.Glob(filepath.Join(s.out, "*.csv"))
	if err != nil {
		return err
	}
	for _, f := range old {
		if err := os.Remove(f); err != nil {
			return fmt.Errorf("clear output: %w", err)
		}
	}
	for _, t := range tables {
		if err := writeCSV(s.outputPath(t.Name), t.Values()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WriteSheet(_ context.Context, t table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.out, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return writeCSV(s.outputPath(t.Name), t.Values())
}

func (s *Store) outputPath(name string) string {
	return filepath.Join(s.out, SafeName(name)+".csv")
}

// WriteColumn rewrites a CSV sheet. Workbooks in xls form are read-only.
func (s *Store) WriteColumn(_ context.Context, ref sheets.SourceRef, sheet string, column, startRow int, values []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.csvPath(ref, sheet)
	if err != nil {
		return err
	}
	grid, err := readCSV(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sheets.MissingSheet(ref, sheet)
	}
	if err != nil {
		return err
	}
	for r := startRow - 1; r < len(grid); r++ {
		if column < len(grid[r]) {
			grid[r][column] = ""
		}
	}
	for i, v := range values {
		r := startRow - 1 + i
		for len(grid) <= r {
			grid = append(grid, nil)
		}
		for len(grid[r]) <= column {
			grid[r] = append(grid[r], "")
		}
		grid[r][column] = v
	}
	return writeCSV(path, grid)
}

func (s *Store) csvPath(ref sheets.SourceRef, sheet string) (string, error) {
	info, err := os.Stat(ref.ID)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", ref.Name, err)
	}
	if info.IsDir() {
		return filepath.Join(ref.ID, sheet+".csv"), nil
	}
	if strings.EqualFold(filepath.Ext(ref.ID), ".csv") && sheet == sheets.BudgetSheet {
		return ref.ID, nil
	}
	if strings.EqualFold(filepath.Ext(ref.ID), ".csv") {
		return "", sheets.MissingSheet(ref, sheet)
	}
	return "", fmt.Errorf("%s: %w", ref.Name, sheets.ErrUnsupported)
}

// ListReconciliations finds reconciliation CSVs in the reconciliations
// directory and its previous_quarters subdirectory.
func (s *Store) ListReconciliations(_ context.Context) ([]sheets.SourceRef, error) {
	var out []sheets.SourceRef
	for _, dir := range []string{
		filepath.Join(s.root, reconciliationsDir),
		filepath.Join(s.root, reconciliationsDir, previousQuartersDir),
	} {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list reconciliations: %w", err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.Contains(name, sheets.ReconciliationPattern) || !strings.EqualFold(filepath.Ext(name), ".csv") {
				continue
			}
			out = append(out, sheets.SourceRef{ID: filepath.Join(dir, name), Name: strings.TrimSuffix(name, filepath.Ext(name))})
		}
	}
	return out, nil
}

// SetAccountValidation stores the allowed values next to the sheet, one per
// line, since CSV has no notion of validation rules.
func (s *Store) SetAccountValidation(_ context.Context, ref sheets.SourceRef, sheet string, column int, accounts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, err := s.csvPath(ref, sheet)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return sheets.MissingSheet(ref, sheet)
	}
	target := strings.TrimSuffix(path, filepath.Ext(path)) + "." + table.ColumnLetter(column) + validationSuffix
	return os.WriteFile(target, []byte(strings.Join(accounts, "\n")+"\n"), 0o644)
}

// SafeName replaces path separators so a sheet name can be used as a file name.
func SafeName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return r.Replace(strings.TrimSpace(name))
}

func readCSV(path string) ([][]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	grid := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(rec))
		for j, v := range rec {
			row[j] = v
		}
		grid[i] = row
	}
	return grid, nil
}

func writeCSV(path string, grid [][]any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := table.WriteGridCSV(f, grid); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

func readXLSSheet(ref sheets.SourceRef, sheet string) ([][]any, error) {
	f, err := os.Open(ref.ID)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref.Name, err)
	}
	defer f.Close()
	wb, err := xls.OpenReader(f, xlsCharset)
	if err != nil {
		return nil, fmt.Errorf("failed to open xls workbook %s: %w", ref.Name, err)
	}
	names := make([]string, 0, wb.NumSheets())
	for i := 0; i < wb.NumSheets(); i++ {
		ws := wb.GetSheet(i)
		if ws == nil {
			continue
		}
		names = append(names, ws.Name)
		if ws.Name != sheet {
			continue
		}
		var grid [][]any
		for r := 0; r <= int(ws.MaxRow); r++ {
			row := ws.Row(r)
			if row == nil {
				grid = append(grid, nil)
				continue
			}
			cells := make([]any, row.LastCol())
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells[c] = row.Col(c)
			}
			grid = append(grid, cells)
		}
		return grid, nil
	}
	sort.Strings(names)
	return nil, fmt.Errorf("%w (sheets: %s)", sheets.MissingSheet(ref, sheet), strings.Join(names, ", "))
}
