package memory

import (
	"context"
	"errors"
	"testing"

	"budgetflow/internal/core"
	"budgetflow/internal/sheets"
	"budgetflow/internal/table"
)

func TestStoreSourcesAndSheets(t *testing.T) {
	ctx := context.Background()
	s := New("Project X")
	ref := s.AddSource(sheets.Secured, "Fund A", map[string][][]any{
		sheets.BudgetSheet: {{"*Account", "Amount"}, {"Rent (400)", float64(5)}},
	})
	s.AddSource(sheets.Proposed, "Fund B", nil)

	secured, err := s.ListSources(ctx, sheets.Secured)
	if err != nil || len(secured) != 1 || secured[0].Name != "Fund A" {
		t.Fatalf("unexpected secured sources %v (err=%v)", secured, err)
	}

	tbl, err := sheets.ReadTable(ctx, s, ref, sheets.BudgetSheet)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	if len(tbl.Rows) != 1 || tbl.Header[0] != "*Account" {
		t.Fatalf("unexpected table %+v", tbl)
	}

	_, err = s.ReadSheet(ctx, ref, "Nope")
	if !errors.Is(err, core.ErrMissingCollaboratorData) {
		t.Fatalf("expected missing data error, got %v", err)
	}
	if name, _ := s.ProjectName(ctx); name != "Project X" {
		t.Fatalf("unexpected project name %q", name)
	}
}

func TestStoreWriteColumn(t *testing.T) {
	ctx := context.Background()
	s := New("P")
	ref := s.AddSource(sheets.Secured, "Fund A", map[string][][]any{
		"Submitted_budget": {{"title"}, {"sub"}, {"old 1"}, {"old 2"}, {"old 3"}},
	})
	if err := s.WriteColumn(ctx, ref, "Submitted_budget", 0, 3, []any{"new 1"}); err != nil {
		t.Fatalf("write column: %v", err)
	}
	grid, _ := s.ReadSheet(ctx, ref, "Submitted_budget")
	if grid[2][0] != "new 1" || grid[3][0] != nil || grid[4][0] != nil || grid[0][0] != "title" {
		t.Fatalf("unexpected grid %v", grid)
	}

	if err := s.WriteColumn(ctx, ref, "Submitted_budget", 2, 2, []any{"=A2-B2"}); err != nil {
		t.Fatalf("write column: %v", err)
	}
	grid, _ = s.ReadSheet(ctx, ref, "Submitted_budget")
	if len(grid[1]) != 3 || grid[1][2] != "=A2-B2" {
		t.Fatalf("expected padded row, got %v", grid[1])
	}
}

func TestStoreOutputAndValidation(t *testing.T) {
	ctx := context.Background()
	s := New("P")
	_ = s.ReplaceSheets(ctx, []table.Table{{Name: "A"}, {Name: "B"}})
	_ = s.WriteSheet(ctx, table.Table{Name: "Overview"})
	_ = s.ReplaceSheets(ctx, []table.Table{{Name: "C"}})
	out := s.Output()
	if len(out) != 1 || out[0].Name != "C" {
		t.Fatalf("expected only C after replace, got %v", out)
	}

	ref := s.AddSource(sheets.Secured, "Fund A", map[string][][]any{sheets.BudgetSheet: {{"*Account"}}})
	if err := s.SetAccountValidation(ctx, ref, sheets.BudgetSheet, 0, []string{"Rent (400)"}); err != nil {
		t.Fatalf("set validation: %v", err)
	}
	if v, ok := s.Validation(ref, sheets.BudgetSheet, 0); !ok || len(v) != 1 {
		t.Fatalf("expected validation, got %v", v)
	}

	s.AddReconciliation("reconciliation_expense_income_2024Q1", [][]any{{"Debit (NZD)"}})
	s.AddReconciliation("notes", nil)
	recs, _ := s.ListReconciliations(ctx)
	if len(recs) != 1 {
		t.Fatalf("expected one reconciliation, got %v", recs)
	}
}
