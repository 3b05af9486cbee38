package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/core"
	"budgetflow/internal/engine"
	"budgetflow/internal/log"
	"budgetflow/internal/overview"
	"budgetflow/internal/sheets"
	"budgetflow/internal/sheets/memory"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
	"budgetflow/internal/variance"
)

var testAccounts = []string{
	"*Account",
	"Salaries (477)",
	"",
	"Grants (102)",
	"Project Contract Income (181)",
	"Unused Donations and Grants with Conditions (835)",
	"Accounts Payable (800)",
}

func budgetGrid() [][]any {
	return [][]any{
		{"*Account", "Start", "End", "Amount", "Expense/Income", "Actual", "Forecast"},
		{"Salaries (477)", "01/Jan/24", "31/Mar/24", float64(120), "Staff", float64(5), ""},
		{"Grants (102)", "01/Jan/24", "01/Jan/24", float64(100), "Grant income", "", ""},
		{"Project Contract Income (181)", "01/Feb/24", "01/Feb/24", float64(50), "Travel", "", ""},
	}
}

func newStore() (*memory.Store, sheets.SourceRef) {
	store := memory.New("Project X")
	store.SetAccounts(testAccounts)
	ref := store.AddSource(sheets.Secured, "Fund A", map[string][][]any{
		sheets.BudgetSheet:          budgetGrid(),
		sheets.SubmittedBudgetSheet: {{"title"}, {"sub"}, {"stale"}, {"stale"}, {"stale"}, {"stale"}, {"stale"}, {"stale"}, {"stale"}},
	})
	return store, ref
}

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

type fakeExporter struct {
	runID  string
	tables []table.Table
}

func (f *fakeExporter) Export(_ context.Context, runID string, tables []table.Table) ([]string, error) {
	f.runID, f.tables = runID, tables
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = runID + "/" + t.Name + ".csv"
	}
	return names, nil
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	store.AddSource(sheets.Secured, "Fund B", map[string][][]any{"Notes": {{"nothing here"}}})
	store.AddSource(sheets.Proposed, "Fund C", map[string][][]any{sheets.BudgetSheet: budgetGrid()})
	repo := newRepo(t)
	exp := &fakeExporter{}

	svc := NewAllocationService(store, engine.New(engine.DefaultSettings(), log.Discard()), repo, exp, log.Discard())
	res, err := svc.Allocate(ctx, RunInfo{RequestedBy: "test"})
	require.NoError(t, err)

	rep := res.Report
	require.Len(t, rep.Sources, 1, "only secured sources are allocated")
	require.Contains(t, rep.Failed, core.FundingSourceID("Fund B"))
	assert.True(t, errors.Is(rep.Failed["Fund B"], core.ErrMissingCollaboratorData))
	assert.Equal(t, "270.00", rep.Combined.Total().StringFixed(2))

	out := store.Output()
	require.Len(t, out, 2)
	assert.Equal(t, "Fund A", out[0].Name)
	assert.Equal(t, "Project X", out[1].Name)
	assert.NotContains(t, out[1].Column(0), "Accounts Payable (800)")

	assert.Equal(t, res.RunID, exp.runID)
	assert.Len(t, res.Exported, 2)

	run, err := repo.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, run.Status)
	assert.Equal(t, "Project X", run.Project)
	assert.Equal(t, "test", run.RequestedBy)
	sources, err := repo.ListRunSources(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestAllocate_NothingReadable(t *testing.T) {
	store := memory.New("Empty")
	store.SetAccounts(testAccounts)
	store.AddSource(sheets.Secured, "Fund B", map[string][][]any{"Notes": {{"x"}}})
	repo := newRepo(t)

	svc := NewAllocationService(store, engine.New(engine.DefaultSettings(), log.Discard()), repo, nil, log.Discard())
	res, err := svc.Allocate(context.Background(), RunInfo{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoSources))
	assert.Empty(t, store.Output(), "nothing is written on failure")

	run, err := repo.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, run.Status)
}

// unnamedStore fails to name its project, as a Drive lookup can.
type unnamedStore struct {
	*memory.Store
}

func (unnamedStore) ProjectName(context.Context) (string, error) {
	return "", errors.New("drive: 503 backend error")
}

func TestAllocate_ProjectNameFailureFinishesQueuedRun(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	repo := newRepo(t)
	queued, err := repo.QueueRun(ctx, KindAllocate, "api")
	require.NoError(t, err)

	svc := NewAllocationService(unnamedStore{store}, engine.New(engine.DefaultSettings(), log.Discard()), repo, nil, log.Discard())
	res, err := svc.Allocate(ctx, RunInfo{ID: queued.ID, RequestedBy: "api"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "project name")
	assert.Equal(t, queued.ID, res.RunID)
	assert.Nil(t, res.Report)

	run, err := repo.GetRun(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "drive: 503 backend error")
}

func TestAllocate_DuplicateSourceNames(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore()
	store.AddSource(sheets.Secured, "Fund A", map[string][][]any{sheets.BudgetSheet: budgetGrid()})
	repo := newRepo(t)

	svc := NewAllocationService(store, engine.New(engine.DefaultSettings(), log.Discard()), repo, nil, log.Discard())
	res, err := svc.Allocate(ctx, RunInfo{})
	require.NoError(t, err)

	require.Len(t, res.Report.Sources, 2)
	ids := []core.FundingSourceID{res.Report.Sources[0].Source, res.Report.Sources[1].Source}
	assert.ElementsMatch(t, []core.FundingSourceID{"Fund A", "Fund A (2)"}, ids)
	assert.Equal(t, "540.00", res.Report.Combined.Total().StringFixed(2))

	run, err := repo.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, run.Status)
	sources, err := repo.ListRunSources(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestDistinctNames(t *testing.T) {
	refs := []sheets.SourceRef{
		{ID: "1", Name: "Fund A"},
		{ID: "2", Name: "Fund A (2)"},
		{ID: "3", Name: "Fund A"},
		{ID: "4", Name: "Fund B"},
		{ID: "5", Name: "Fund A"},
	}
	out := distinctNames(log.Discard(), refs)

	var names []string
	for _, r := range out {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Fund A", "Fund A (2)", "Fund A (3)", "Fund B", "Fund A (4)"}, names)
	assert.Equal(t, "Fund A", refs[2].Name, "input is not modified")
}

func TestAccountsRefresh(t *testing.T) {
	ctx := context.Background()
	store, ref := newStore()
	svc := NewAccountsService(store, nil, log.Discard())

	valid, err := svc.ValidAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Salaries (477)",
		"Grants (102)",
		"Project Contract Income (181)",
		"Unused Donations and Grants with Conditions (835)",
		"Accounts Payable (800)",
	}, valid)

	found, err := svc.FindSource(ctx, "Fund A")
	require.NoError(t, err)
	require.Equal(t, ref, found)
	require.NoError(t, svc.Refresh(ctx, found, RunInfo{}))

	got, ok := store.Validation(ref, sheets.BudgetSheet, 0)
	require.True(t, ok)
	assert.Equal(t, valid, got)

	grid, err := store.ReadSheet(ctx, ref, sheets.SubmittedBudgetSheet)
	require.NoError(t, err)
	var column []any
	for _, r := range grid {
		column = append(column, r[0])
	}
	assert.Equal(t, []any{
		"title", "sub",
		"Salaries (477)",
		"Grants (102)",
		"Project Contract Income (181)",
		"Unused Donations and Grants with Conditions (835)",
		"Accounts Payable (800)",
		TotalWithoutGST,
		nil,
	}, column)

	_, err = svc.FindSource(ctx, "Fund Z")
	assert.True(t, errors.Is(err, core.ErrMissingCollaboratorData))
}

func TestAccountsRefresh_NoAccountColumn(t *testing.T) {
	store := memory.New("P")
	store.SetAccounts(testAccounts)
	ref := store.AddSource(sheets.Proposed, "Odd", map[string][][]any{
		sheets.BudgetSheet: {{"Account", "Amount"}},
	})
	svc := NewAccountsService(store, nil, log.Discard())

	err := svc.Refresh(context.Background(), ref, RunInfo{})
	assert.True(t, errors.Is(err, core.ErrMissingColumn))
	_, ok := store.Validation(ref, sheets.BudgetSheet, 0)
	assert.False(t, ok)
}

func TestVarianceReconcileAll(t *testing.T) {
	ctx := context.Background()
	store, ref := newStore()
	store.AddReconciliation("reconciliation_expense_income_2024Q1", [][]any{
		{"Reconciled Expense/Income", "Funding Source", "Debit (NZD)", "Credit (NZD)"},
		{"Staff", "Fund A", float64(100), float64(10)},
		{"Staff", "Fund B", float64(999), float64(0)},
		{"Travel", "Fund A", "$20.50", ""},
	})
	store.AddReconciliation("reconciliation_expense_income_broken", [][]any{
		{"Category", "Debit (NZD)"},
	})
	store.AddReconciliation("unrelated", [][]any{{"x"}})
	repo := newRepo(t)

	svc := NewVarianceService(store, variance.DefaultSettings(), repo, log.Discard())
	results, err := svc.ReconcileAll(ctx, RunInfo{})
	require.NoError(t, err)
	require.Contains(t, results, core.FundingSourceID("Fund A"))
	res := results["Fund A"]
	assert.Len(t, res.Skipped, 1)
	assert.Equal(t, []string{"Staff", "Travel"}, res.Categories())

	grid, err := store.ReadSheet(ctx, ref, sheets.BudgetSheet)
	require.NoError(t, err)
	assert.Equal(t, float64(90), grid[1][5])
	assert.Equal(t, "", grid[2][5], "unmatched category keeps its previous actual")
	assert.Equal(t, 20.5, grid[3][5])
	assert.Equal(t, "=D2-F2", grid[1][6])
	assert.Equal(t, "=D4-F4", grid[3][6])

	_, ok := store.Validation(ref, sheets.BudgetSheet, 0)
	assert.True(t, ok, "variance pass refreshes account validation first")

	runs, err := repo.ListRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, KindVariance, runs[0].Kind)
	assert.Equal(t, "1 budgets reconciled", runs[0].Note)
}

func TestOverviewBuild(t *testing.T) {
	ctx := context.Background()
	store := memory.New("P")
	store.AddSource(sheets.Secured, "Fund A", map[string][][]any{
		overview.BudgetSheet: {
			{"Fund A budget"},
			{"Milestone", "Cost", "Income", "Xero Inventory Item"},
			{"M1", float64(100), float64(0), "ITEM-1"},
			{"", "", "", ""},
			{"M2", "$50", float64(10), ""},
		},
		overview.TrackingSheet: {
			{"", "Budget", "Total Actual to date"},
			{"Expenses"},
			{"ITEM-1", float64(100), float64(42.5)},
			{"Total Expenses", float64(100), float64(42.5)},
		},
	})
	store.AddSource(sheets.Proposed, "Fund B", map[string][][]any{
		overview.BudgetSheet: {
			{"Milestone", "Cost", "Income", "Xero Inventory Item"},
			{"Pitch", float64(10), float64(0), ""},
		},
	})
	store.AddSource(sheets.Proposed, "Fund C", map[string][][]any{"Other": {{"x"}}})

	svc := NewOverviewService(store, nil, log.Discard())
	got, err := svc.Build(ctx, RunInfo{})
	require.NoError(t, err)
	assert.Equal(t, overview.SheetName, got.Name)
	assert.Equal(t, [][]any{
		{"Fund A", "Yes", "M1", float64(100), float64(0), 42.5},
		{"Fund A", "Yes", "M2", float64(50), float64(10), float64(0)},
		{"Fund B", "No", "Pitch", float64(10), float64(0), float64(0)},
	}, got.Rows)

	out := store.Output()
	require.Len(t, out, 1)
	assert.Equal(t, got, out[0])
}
