package services

import (
	"context"
	"errors"
	"fmt"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/sheets"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
)

// TotalWithoutGST closes the account list written to Submitted_budget.
const TotalWithoutGST = "Total expenses without GST"

// submittedFirstRow is where the account list starts in Submitted_budget (A3).
const submittedFirstRow = 3

type AccountsPorts interface {
	sheets.SourceLister
	sheets.SheetReader
	sheets.CatalogReader
	sheets.ColumnWriter
	sheets.ValidationWriter
}

// AccountsService keeps the account pickers of budget workbooks in line with
// the chart of accounts.
type AccountsService struct {
	ports   AccountsPorts
	tracker tracker
	logger  *log.Logger
}

func NewAccountsService(ports AccountsPorts, runs RunRecorder, logger *log.Logger) *AccountsService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentAccounts)
	return &AccountsService{ports: ports, tracker: tracker{runs: runs, logger: logger}, logger: logger}
}

// ValidAccounts is the raw account column of the catalog without blanks and
// header labels. Exclusions do not apply here.
func (s *AccountsService) ValidAccounts(ctx context.Context) ([]string, error) {
	labels, err := s.ports.ReadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" || l == string(core.AccountHeader) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// FindSource looks a budget workbook up by name in the secured then proposed folders.
func (s *AccountsService) FindSource(ctx context.Context, name string) (sheets.SourceRef, error) {
	return findSource(ctx, s.ports, name)
}

func findSource(ctx context.Context, lister sheets.SourceLister, name string) (sheets.SourceRef, error) {
	for _, folder := range []sheets.Folder{sheets.Secured, sheets.Proposed} {
		refs, err := lister.ListSources(ctx, folder)
		if err != nil {
			return sheets.SourceRef{}, fmt.Errorf("list %s: %w", folder, err)
		}
		for _, ref := range refs {
			if ref.Name == name {
				return ref, nil
			}
		}
	}
	return sheets.SourceRef{}, &core.MissingDataError{What: "funding source", Name: name}
}

// Refresh rewrites the Submitted_budget account list, when that sheet exists,
// and re-applies the account validation to the Budget sheet.
func (s *AccountsService) Refresh(ctx context.Context, ref sheets.SourceRef, info RunInfo) error {
	runID := s.tracker.begin(ctx, KindAccounts, info)
	err := s.refresh(ctx, ref, s.logger.With(log.FieldRunID, runID))
	note := ""
	if err == nil {
		note = ref.Name
	}
	s.tracker.finish(ctx, runID, storage.Outcome{Note: note, Err: err})
	return err
}

// RefreshAccounts refreshes one workbook without recording a run; used ahead of a variance pass.
func (s *AccountsService) RefreshAccounts(ctx context.Context, ref sheets.SourceRef) error {
	return s.refresh(ctx, ref, s.logger)
}

func (s *AccountsService) refresh(ctx context.Context, ref sheets.SourceRef, logger *log.Logger) error {
	logger = logger.With(log.FieldFundingSource, ref.Name, log.FieldOperation, log.OpAccounts)
	accounts, err := s.ValidAccounts(ctx)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Valid accounts loaded", "count", len(accounts))

	if _, err := s.ports.ReadSheet(ctx, ref, sheets.SubmittedBudgetSheet); err == nil {
		values := make([]any, 0, len(accounts)+1)
		for _, a := range accounts {
			values = append(values, a)
		}
		values = append(values, TotalWithoutGST)
		if err := s.ports.WriteColumn(ctx, ref, sheets.SubmittedBudgetSheet, 0, submittedFirstRow, values); err != nil {
			return fmt.Errorf("write submitted budget accounts: %w", err)
		}
		logger.InfoContext(ctx, "Submitted budget accounts written", log.FieldSheet, sheets.SubmittedBudgetSheet, "rows", len(values))
	} else if errors.Is(err, core.ErrMissingCollaboratorData) {
		logger.InfoContext(ctx, "No submitted budget sheet, skipping", log.FieldSheet, sheets.SubmittedBudgetSheet)
	} else {
		return fmt.Errorf("read submitted budget: %w", err)
	}

	budget, err := sheets.ReadTable(ctx, s.ports, ref, sheets.BudgetSheet)
	if err != nil {
		return err
	}
	col := -1
	for i, h := range budget.Header {
		if h == string(core.AccountHeader) {
			col = i
			break
		}
	}
	if col < 0 {
		return &core.MissingColumnError{Table: sheets.BudgetSheet, Columns: []string{string(core.AccountHeader)}}
	}
	if err := s.ports.SetAccountValidation(ctx, ref, sheets.BudgetSheet, col, accounts); err != nil {
		return fmt.Errorf("set account validation: %w", err)
	}
	logger.InfoContext(ctx, "Account validation applied",
		log.FieldSheet, sheets.BudgetSheet, "column", table.ColumnLetter(col))
	return nil
}
