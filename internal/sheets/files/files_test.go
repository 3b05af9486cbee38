package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/core"
	"budgetflow/internal/sheets"
	"budgetflow/internal/table"
)

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixture(t *testing.T) (*Store, string, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "Wildlife 2024")
	out := filepath.Join(t.TempDir(), "out")
	mustWrite(t, filepath.Join(root, "accounts.csv"),
		"a,b,c,d,e,f,g,h,i,*Account\n,,,,,,,,,Rent (400)\n,,,,,,,,,Grants (102)\n,,,,,,,,\n")
	mustWrite(t, filepath.Join(root, "secured", "Fund A", "Budget.csv"),
		"*Account,Start,End,Amount\nRent (400),01/Jan/24,31/Mar/24,300\n")
	mustWrite(t, filepath.Join(root, "secured", "Fund A", "Submitted_budget.csv"), "title\nsub\nold\n")
	mustWrite(t, filepath.Join(root, "secured", "Fund B.csv"),
		"*Account,Start,End,Amount\nGrants (102),01/Jan/24,01/Jan/24,100\n")
	mustWrite(t, filepath.Join(root, "secured", "notes.txt"), "ignored")
	mustWrite(t, filepath.Join(root, "reconciliations", "reconciliation_expense_income_2024Q2.csv"), "Funding Source\nFund A\n")
	mustWrite(t, filepath.Join(root, "reconciliations", "previous_quarters", "reconciliation_expense_income_2024Q1.csv"), "Funding Source\n")
	mustWrite(t, filepath.Join(root, "reconciliations", "summary.csv"), "x\n")
	return New(root, out, 9), root, out
}

func TestListAndRead(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	name, err := s.ProjectName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Wildlife 2024", name)

	refs, err := s.ListSources(ctx, sheets.Secured)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "Fund A", refs[0].Name)
	assert.Equal(t, "Fund B", refs[1].Name)

	none, err := s.ListSources(ctx, sheets.Proposed)
	require.NoError(t, err)
	assert.Empty(t, none)

	for _, ref := range refs {
		tbl, err := sheets.ReadTable(ctx, s, ref, sheets.BudgetSheet)
		require.NoError(t, err, ref.Name)
		assert.Equal(t, []string{"*Account", "Start", "End", "Amount"}, tbl.Header)
		assert.Len(t, tbl.Rows, 1)
	}

	_, err = s.ReadSheet(ctx, refs[0], "Budget, Actual, Forecast Tracking")
	assert.ErrorIs(t, err, core.ErrMissingCollaboratorData)
	_, err = s.ReadSheet(ctx, refs[1], sheets.SubmittedBudgetSheet)
	assert.ErrorIs(t, err, core.ErrMissingCollaboratorData)

	accounts, err := s.ReadAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"*Account", "Rent (400)", "Grants (102)"}, accounts)

	recs, err := s.ListReconciliations(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "reconciliation_expense_income_2024Q2", recs[0].Name)
	grid, err := s.ReadSheet(ctx, recs[0], sheets.ReconciliationSheet)
	require.NoError(t, err)
	assert.Equal(t, "Fund A", grid[1][0])
}

func TestReportOutput(t *testing.T) {
	ctx := context.Background()
	s, _, out := fixture(t)

	require.NoError(t, s.ReplaceSheets(ctx, []table.Table{
		{Name: "Fund A", Header: []string{"*Account", "Jan-24"}, Rows: [][]any{{"Rent (400)", 100.5}}},
		{Name: "Stale", Header: []string{"x"}},
	}))
	require.NoError(t, s.ReplaceSheets(ctx, []table.Table{
		{Name: "Fund A", Header: []string{"*Account", "Jan-24"}, Rows: [][]any{{"Rent (400)", 100.5}}},
	}))
	require.NoError(t, s.WriteSheet(ctx, table.Table{Name: "Overview", Header: []string{"Funding Source"}}))

	b, err := os.ReadFile(filepath.Join(out, "Fund A.csv"))
	require.NoError(t, err)
	assert.Equal(t, "*Account,Jan-24\nRent (400),100.5\n", string(b))
	_, err = os.Stat(filepath.Join(out, "Stale.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, "Overview.csv"))
	assert.NoError(t, err)
}

func TestWriteColumnAndValidation(t *testing.T) {
	ctx := context.Background()
	s, root, _ := fixture(t)
	refs, err := s.ListSources(ctx, sheets.Secured)
	require.NoError(t, err)

	require.NoError(t, s.WriteColumn(ctx, refs[0], sheets.SubmittedBudgetSheet, 0, 3, []any{"Rent (400)", "Total expenses without GST"}))
	b, err := os.ReadFile(filepath.Join(root, "secured", "Fund A", "Submitted_budget.csv"))
	require.NoError(t, err)
	assert.Equal(t, "title\nsub\nRent (400)\nTotal expenses without GST\n", string(b))

	require.NoError(t, s.WriteColumn(ctx, refs[1], sheets.BudgetSheet, 4, 2, []any{"=D2-C2"}))
	b, err = os.ReadFile(filepath.Join(root, "secured", "Fund B.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "100,=D2-C2")

	require.NoError(t, s.SetAccountValidation(ctx, refs[0], sheets.BudgetSheet, 0, []string{"Rent (400)"}))
	b, err = os.ReadFile(filepath.Join(root, "secured", "Fund A", "Budget.A.validation"))
	require.NoError(t, err)
	assert.Equal(t, "Rent (400)\n", string(b))
}
