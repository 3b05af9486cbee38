package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/sheets"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
	"budgetflow/internal/variance"
)

type VariancePorts interface {
	AccountsPorts
	sheets.ReconciliationLister
}

// VarianceService fills a budget's Actual column from the reconciliation
// ledgers and rewrites its Forecast formulas.
type VarianceService struct {
	ports    VariancePorts
	accounts *AccountsService
	settings variance.Settings
	tracker  tracker
	logger   *log.Logger
}

func NewVarianceService(ports VariancePorts, settings variance.Settings, runs RunRecorder, logger *log.Logger) *VarianceService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &VarianceService{
		ports:    ports,
		accounts: NewAccountsService(ports, nil, logger),
		settings: settings,
		tracker:  tracker{runs: runs, logger: logger},
		logger:   logger.WithComponent(log.ComponentVariance),
	}
}

// ReconcileAll runs the variance pass over every secured budget. Budgets that
// fail are logged and reported in the joined error; the others are still written.
func (s *VarianceService) ReconcileAll(ctx context.Context, info RunInfo) (map[core.FundingSourceID]*variance.Result, error) {
	if info.Project == "" {
		if p, err := s.ports.ProjectName(ctx); err == nil {
			info.Project = p
		}
	}
	runID := s.tracker.begin(ctx, KindVariance, info)
	results, err := s.reconcileAll(ctx, s.logger.With(log.FieldRunID, runID))
	s.tracker.finish(ctx, runID, storage.Outcome{Note: fmt.Sprintf("%d budgets reconciled", len(results)), Err: err})
	return results, err
}

func (s *VarianceService) reconcileAll(ctx context.Context, logger *log.Logger) (map[core.FundingSourceID]*variance.Result, error) {
	refs, err := s.ports.ListSources(ctx, sheets.Secured)
	if err != nil {
		return nil, fmt.Errorf("list secured sources: %w", err)
	}
	recs, err := s.reconciliations(ctx, logger)
	if err != nil {
		return nil, err
	}

	results := make(map[core.FundingSourceID]*variance.Result, len(refs))
	var errs []error
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.reconcile(ctx, logger, ref, recs)
		if err != nil {
			logger.ErrorContext(ctx, "Variance pass failed", log.FieldFundingSource, ref.Name, log.FieldError, err)
			errs = append(errs, fmt.Errorf("%s: %w", ref.Name, err))
			continue
		}
		results[ref.FundingSource()] = res
	}
	return results, errors.Join(errs...)
}

// Reconcile runs the variance pass for one budget workbook.
func (s *VarianceService) Reconcile(ctx context.Context, ref sheets.SourceRef) (*variance.Result, error) {
	recs, err := s.reconciliations(ctx, s.logger)
	if err != nil {
		return nil, err
	}
	return s.reconcile(ctx, s.logger, ref, recs)
}

func (s *VarianceService) reconcile(ctx context.Context, logger *log.Logger, ref sheets.SourceRef, recs []variance.Reconciliation) (*variance.Result, error) {
	logger = logger.With(log.FieldFundingSource, ref.Name, log.FieldOperation, log.OpVariance)

	if err := s.accounts.RefreshAccounts(ctx, ref); err != nil {
		logger.WarnContext(ctx, "Account validation refresh failed", log.FieldError, err)
	}

	budget, err := sheets.ReadTable(ctx, s.ports, ref, sheets.BudgetSheet)
	if err != nil {
		return nil, err
	}
	res, err := variance.Reconcile(ref.FundingSource(), budget, recs, s.settings)
	if err != nil {
		return nil, err
	}
	for _, skipped := range res.Skipped {
		logger.WarnContext(ctx, "Skipping reconciliation ledger", log.FieldError, skipped)
	}
	for _, c := range res.Categories() {
		t := res.Totals[c]
		files := make([]string, 0, len(t.Lines))
		for _, l := range t.Lines {
			files = append(files, fmt.Sprintf("%s (debit %s, credit %s)", l.File, l.Debit.StringFixed(2), l.Credit.StringFixed(2)))
		}
		logger.DebugContext(ctx, "Category actual",
			"category", c,
			"debit", t.Debit.StringFixed(2),
			"credit", t.Credit.StringFixed(2),
			"actual", t.Actual().StringFixed(2),
			"files", strings.Join(files, "; "))
	}

	if err := s.ports.WriteColumn(ctx, ref, sheets.BudgetSheet, res.ActualColumn, table.FirstDataRow, res.Actuals); err != nil {
		return nil, fmt.Errorf("write actuals: %w", err)
	}
	if err := s.ports.WriteColumn(ctx, ref, sheets.BudgetSheet, res.ForecastColumn, table.FirstDataRow, res.Forecasts); err != nil {
		return nil, fmt.Errorf("write forecasts: %w", err)
	}
	logger.InfoContext(ctx, "Budget actuals updated",
		"categories", len(res.Totals),
		"rows", len(res.Actuals),
		"ledgers", len(recs))
	return res, nil
}

// reconciliations reads the Reconciliation sheet of every reconciliation
// workbook; workbooks without that sheet are skipped.
func (s *VarianceService) reconciliations(ctx context.Context, logger *log.Logger) ([]variance.Reconciliation, error) {
	refs, err := s.ports.ListReconciliations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	out := make([]variance.Reconciliation, 0, len(refs))
	for _, ref := range refs {
		t, err := sheets.ReadTable(ctx, s.ports, ref, sheets.ReconciliationSheet)
		if err != nil {
			if errors.Is(err, core.ErrMissingCollaboratorData) {
				logger.WarnContext(ctx, "Reconciliation workbook has no Reconciliation sheet",
					log.FieldSpreadsheetRef, ref.Name)
				continue
			}
			return nil, err
		}
		out = append(out, variance.Reconciliation{Name: ref.Name, Table: t})
	}
	logger.InfoContext(ctx, "Reconciliation ledgers loaded", "count", len(out))
	return out, nil
}
