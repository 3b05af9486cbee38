package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"budgetflow/internal/sheets"
	"budgetflow/internal/table"
)

// Store is an in-process workspace used for development and tests.
type Store struct {
	mu              sync.Mutex
	project         string
	seq             int
	sources         map[sheets.Folder][]sheets.SourceRef
	workbooks       map[string]map[string][][]any
	accounts        []string
	reconciliations []sheets.SourceRef
	output          map[string]table.Table
	outputOrder     []string
	validations     map[string][]string
}

var _ sheets.Workspace = (*Store)(nil)

func New(project string) *Store {
	return &Store{
		project:     project,
		sources:     make(map[sheets.Folder][]sheets.SourceRef),
		workbooks:   make(map[string]map[string][][]any),
		output:      make(map[string]table.Table),
		validations: make(map[string][]string),
	}
}

// AddSource registers a workbook in folder and returns its reference.
func (s *Store) AddSource(folder sheets.Folder, name string, workbook map[string][][]any) sheets.SourceRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.addWorkbook(name, folder, workbook)
	s.sources[folder] = append(s.sources[folder], ref)
	return ref
}

// AddReconciliation registers a reconciliation workbook with a single Reconciliation sheet.
func (s *Store) AddReconciliation(name string, grid [][]any) sheets.SourceRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := s.addWorkbook(name, "", map[string][][]any{sheets.ReconciliationSheet: grid})
	s.reconciliations = append(s.reconciliations, ref)
	return ref
}

func (s *Store) addWorkbook(name string, folder sheets.Folder, workbook map[string][][]any) sheets.SourceRef {
	s.seq++
	ref := sheets.SourceRef{ID: fmt.Sprintf("mem:%d", s.seq), Name: name, Folder: folder}
	wb := make(map[string][][]any, len(workbook))
	for k, v := range workbook {
		wb[k] = copyGrid(v)
	}
	s.workbooks[ref.ID] = wb
	return ref
}

// SetAccounts replaces the chart of accounts.
func (s *Store) SetAccounts(accounts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = append([]string(nil), accounts...)
}

func (s *Store) ProjectName(_ context.Context) (string, error) {
	return s.project, nil
}

func (s *Store) ListSources(_ context.Context, folder sheets.Folder) ([]sheets.SourceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.SourceRef(nil), s.sources[folder]...), nil
}

func (s *Store) ReadSheet(_ context.Context, ref sheets.SourceRef, sheet string) ([][]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, ok := s.workbooks[ref.ID][sheet]
	if !ok {
		return nil, sheets.MissingSheet(ref, sheet)
	}
	return copyGrid(grid), nil
}

func (s *Store) ReadAccounts(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accounts...), nil
}

func (s *Store) ReplaceSheets(_ context.Context, tables []table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = make(map[string]table.Table, len(tables))
	s.outputOrder = s.outputOrder[:0]
	for _, t := range tables {
		s.putOutput(t)
	}
	return nil
}

func (s *Store) WriteSheet(_ context.Context, t table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putOutput(t)
	return nil
}

func (s *Store) putOutput(t table.Table) {
	if _, exists := s.output[t.Name]; !exists {
		s.outputOrder = append(s.outputOrder, t.Name)
	}
	s.output[t.Name] = t
}

// Output returns the output workbook sheets in creation order.
func (s *Store) Output() []table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]table.Table, 0, len(s.outputOrder))
	for _, name := range s.outputOrder {
		out = append(out, s.output[name])
	}
	return out
}

func (s *Store) WriteColumn(_ context.Context, ref sheets.SourceRef, sheet string, column, startRow int, values []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	grid, ok := s.workbooks[ref.ID][sheet]
	if !ok {
		return sheets.MissingSheet(ref, sheet)
	}
	for r := startRow - 1; r < len(grid); r++ {
		if column < len(grid[r]) {
			grid[r][column] = nil
		}
	}
	for i, v := range values {
		r := startRow - 1 + i
		for len(grid) <= r {
			grid = append(grid, nil)
		}
		for len(grid[r]) <= column {
			grid[r] = append(grid[r], nil)
		}
		grid[r][column] = v
	}
	s.workbooks[ref.ID][sheet] = grid
	return nil
}

func (s *Store) ListReconciliations(_ context.Context) ([]sheets.SourceRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sheets.SourceRef
	for _, r := range s.reconciliations {
		if strings.Contains(r.Name, sheets.ReconciliationPattern) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) SetAccountValidation(_ context.Context, ref sheets.SourceRef, sheet string, column int, accounts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workbooks[ref.ID][sheet]; !ok {
		return sheets.MissingSheet(ref, sheet)
	}
	s.validations[validationKey(ref, sheet, column)] = append([]string(nil), accounts...)
	return nil
}

// Validation returns the list applied to a column, if any.
func (s *Store) Validation(ref sheets.SourceRef, sheet string, column int) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validations[validationKey(ref, sheet, column)]
	return v, ok
}

// Sheets lists the sheet names of a workbook, sorted.
func (s *Store) Sheets(ref sheets.SourceRef) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.workbooks[ref.ID]))
	for n := range s.workbooks[ref.ID] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func validationKey(ref sheets.SourceRef, sheet string, column int) string {
	return fmt.Sprintf("%s/%s/%d", ref.ID, sheet, column)
}

func copyGrid(in [][]any) [][]any {
	if in == nil {
		return nil
	}
	out := make([][]any, len(in))
	for i, r := range in {
		out[i] = append([]any(nil), r...)
	}
	return out
}
