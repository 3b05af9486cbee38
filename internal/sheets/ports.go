package sheets

import (
	"context"
	"errors"
	"fmt"

	"budgetflow/internal/core"
	"budgetflow/internal/table"
)

// Folder is a funding-status folder under the project folder.
type Folder string

const (
	Secured  Folder = "secured"
	Proposed Folder = "proposed"
)

// Well-known sheet names inside funding source workbooks.
const (
	BudgetSheet          = "Budget"
	SubmittedBudgetSheet = "Submitted_budget"
	ReconciliationSheet  = "Reconciliation"

	// ReconciliationPattern is the file name fragment of reconciliation workbooks.
	ReconciliationPattern = "reconciliation_expense_income"
)

// SourceRef identifies one workbook held by a collaborator.
type SourceRef struct {
	ID     string
	Name   string
	Folder Folder
}

// FundingSource is the funding source identity of the workbook.
func (r SourceRef) FundingSource() core.FundingSourceID {
	return core.FundingSourceID(r.Name)
}

// ErrUnsupported is returned by adapters for operations their storage cannot perform.
var ErrUnsupported = errors.New("operation not supported by this backend")

// Ports for outbound adapters.
type (
	SourceLister interface {
		// ProjectName names the project the funding sources belong to.
		ProjectName(ctx context.Context) (string, error)
		// ListSources returns the workbooks of a folder; a missing folder yields none.
		ListSources(ctx context.Context, folder Folder) ([]SourceRef, error)
	}

	// SheetReader returns the raw grid of a sheet. A missing sheet is reported
	// with an error wrapping core.ErrMissingCollaboratorData.
	SheetReader interface {
		ReadSheet(ctx context.Context, ref SourceRef, sheet string) ([][]any, error)
	}

	// CatalogReader returns the raw account labels of the chart of accounts.
	CatalogReader interface {
		ReadAccounts(ctx context.Context) ([]string, error)
	}

	// ReportWriter owns the output workbook.
	ReportWriter interface {
		// ReplaceSheets clears the output workbook and writes one sheet per table.
		ReplaceSheets(ctx context.Context, tables []table.Table) error
		// WriteSheet replaces the content of a single sheet, creating it if needed.
		WriteSheet(ctx context.Context, t table.Table) error
	}

	// ColumnWriter clears a column from startRow (1-based) down and writes
	// values there. Strings starting with '=' are stored as formulas.
	ColumnWriter interface {
		WriteColumn(ctx context.Context, ref SourceRef, sheet string, column, startRow int, values []any) error
	}

	ReconciliationLister interface {
		ListReconciliations(ctx context.Context) ([]SourceRef, error)
	}

	// ValidationWriter restricts the data rows of a column to a list of values.
	ValidationWriter interface {
		SetAccountValidation(ctx context.Context, ref SourceRef, sheet string, column int, accounts []string) error
	}

	// Workspace is everything a backend provides.
	Workspace interface {
		SourceLister
		SheetReader
		CatalogReader
		ReportWriter
		ColumnWriter
		ReconciliationLister
		ValidationWriter
	}
)

// ReadTable reads a sheet whose first row is the header.
func ReadTable(ctx context.Context, r SheetReader, ref SourceRef, sheet string) (table.Table, error) {
	grid, err := r.ReadSheet(ctx, ref, sheet)
	if err != nil {
		return table.Table{}, err
	}
	return table.FromValues(sheet, grid), nil
}

// MissingSheet builds the error adapters return for an absent sheet.
func MissingSheet(ref SourceRef, sheet string) error {
	return fmt.Errorf("%s: %w", ref.Name, &core.MissingDataError{What: "sheet", Name: sheet})
}
