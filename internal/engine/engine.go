package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/period"
	"budgetflow/internal/table"
)

// Source is one funding source budget as read from its collaborator.
type Source struct {
	ID    core.FundingSourceID
	Table table.Table
}

// SourceResult is everything computed for one funding source.
type SourceResult struct {
	Source    core.FundingSourceID
	Ledger    Ledger
	Rows      []core.LedgerRow
	Waterfall Waterfall
	Breakdown []QuarterBreakdown
	Matrix    *Matrix
	Warnings  []error
	Dropped   int
}

// Report is the outcome of one run over all funding sources.
type Report struct {
	Project  string
	Start    core.Date
	End      core.Date
	Months   []period.Month
	Quarters []period.Quarter
	Sources  []*SourceResult
	Combined *Matrix
	Failed   map[core.FundingSourceID]error
}

// Tables returns one table per source followed by the combined table named after the project.
func (r *Report) Tables(layout string) []table.Table {
	out := make([]table.Table, 0, len(r.Sources)+1)
	for _, s := range r.Sources {
		out = append(out, s.Matrix.Table(string(s.Source), layout))
	}
	if r.Combined != nil {
		out = append(out, r.Combined.Table(r.Project, layout))
	}
	return out
}

// Warnings collects every non-fatal problem of the run.
func (r *Report) Warnings() []error {
	var out []error
	for _, s := range r.Sources {
		out = append(out, s.Ledger.Skipped...)
		out = append(out, s.Warnings...)
	}
	return out
}

// Engine runs the allocation pipeline with fixed settings.
type Engine struct {
	settings Settings
	logger   *log.Logger
}

// New creates an engine. A nil logger logs to the default slog handler.
func New(settings Settings, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Engine{settings: settings, logger: logger.WithComponent(log.ComponentEngine)}
}

func (e *Engine) Settings() Settings { return e.settings }

// Run parses every source, fixes the reporting span over all of them and then
// processes the sources concurrently. A source that cannot be read is recorded
// in Report.Failed; the run fails only when no source is left.
func (e *Engine) Run(ctx context.Context, project string, catalog core.Catalog, sources []Source) (*Report, error) {
	if catalog.Len() == 0 {
		return nil, core.ErrNoCatalog
	}
	if len(sources) == 0 {
		return nil, core.ErrNoSources
	}

	report := &Report{Project: project, Failed: make(map[core.FundingSourceID]error)}
	ledgers := make([]Ledger, 0, len(sources))
	for _, src := range sources {
		l, err := ReadLedger(src.ID, src.Table, e.settings)
		if err != nil {
			e.logger.WarnContext(ctx, "Skipping funding source",
				log.FieldFundingSource, src.ID, log.FieldError, err)
			report.Failed[src.ID] = err
			continue
		}
		for _, skipped := range l.Skipped {
			e.logger.WarnContext(ctx, "Skipping malformed row",
				log.FieldFundingSource, src.ID, log.FieldError, skipped)
		}
		ledgers = append(ledgers, l)
	}
	if len(ledgers) == 0 {
		return report, fmt.Errorf("%w: all %d sources failed", core.ErrNoSources, len(sources))
	}

	start, end, ok := GlobalSpan(ledgers)
	if !ok {
		return report, fmt.Errorf("%w: no dated rows in any source", core.ErrNoSources)
	}
	report.Start, report.End = start, end
	report.Months = period.MonthsBetween(start, end)
	report.Quarters = period.QuartersBetween(start, end)
	e.logger.InfoContext(ctx, "Reporting span fixed",
		"start", start.String(), "end", end.String(),
		"months", len(report.Months), "quarters", len(report.Quarters), "sources", len(ledgers))

	results := make([]*SourceResult, len(ledgers))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.settings.Workers, 1))
	for i, l := range ledgers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.Process(gctx, catalog, l, report.Months, report.Quarters)
			if err != nil {
				e.logger.ErrorContext(gctx, "Funding source failed",
					log.FieldFundingSource, l.Source, log.FieldError, err)
				mu.Lock()
				report.Failed[l.Source] = err
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	matrices := make([]*Matrix, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		report.Sources = append(report.Sources, r)
		matrices = append(matrices, r.Matrix)
	}
	if len(report.Sources) == 0 {
		return report, fmt.Errorf("%w: every source failed processing", core.ErrNoSources)
	}
	combined, err := Combine(catalog, report.Months, matrices...)
	if err != nil {
		return report, fmt.Errorf("combine matrices: %w", err)
	}
	report.Combined = combined
	return report, nil
}

// Process runs the pipeline for one ledger over a fixed reporting span.
func (e *Engine) Process(ctx context.Context, catalog core.Catalog, l Ledger, months []period.Month, quarters []period.Quarter) (*SourceResult, error) {
	logger := e.logger.With(log.FieldFundingSource, string(l.Source))
	res := &SourceResult{Source: l.Source, Ledger: l}

	split, err := SplitOverheads(l.Rows, e.settings)
	if err != nil {
		return nil, fmt.Errorf("split overhead: %w", err)
	}
	res.Breakdown = ExpenseBreakdown(split, quarters, e.settings)

	w, warnings := RunWaterfall(l.Source, split, quarters, e.settings)
	res.Waterfall = w
	res.Warnings = warnings
	for _, warn := range warnings {
		var u *UncoveredExpense
		if errors.As(warn, &u) {
			logger.WarnContext(ctx, "Expenses not covered by income",
				log.FieldQuarter, u.Quarter.Label(),
				"expense", u.Expense.StringFixed(2),
				"uncovered", u.Uncovered.StringFixed(2))
		}
	}
	e.checkBreakdown(ctx, logger, res.Breakdown, w)

	res.Rows = append(append(make([]core.LedgerRow, 0, len(split)), split...), w.Rows(e.settings)...)
	m := NewMatrix(catalog, months)
	if res.Dropped, err = m.Accumulate(res.Rows); err != nil {
		return nil, fmt.Errorf("accumulate: %w", err)
	}
	if _, err := m.Subtract(incomeRows(l.Rows, e.settings)); err != nil {
		return nil, fmt.Errorf("subtract income: %w", err)
	}
	res.Matrix = m

	logger.InfoContext(ctx, "Funding source processed",
		"rows", len(l.Rows),
		"skipped_rows", len(l.Skipped),
		"derived_rows", len(res.Rows)-len(split),
		"dropped_rows", res.Dropped,
		"total", m.Total().StringFixed(2))
	return res, nil
}

// checkBreakdown compares the per-account breakdown with the waterfall expense totals.
func (e *Engine) checkBreakdown(ctx context.Context, logger *log.Logger, breakdown []QuarterBreakdown, w Waterfall) {
	tolerance := decimal.NewFromFloat(0.01)
	for i, b := range breakdown {
		if i >= len(w.Quarters) {
			break
		}
		q := w.Quarters[i]
		logger.DebugContext(ctx, "Quarterly expense",
			log.FieldQuarter, b.Quarter.Label(),
			"expense", q.Expense.StringFixed(2),
			"accounts", len(b.ByAccount),
			"released", sumValues(q.Released).StringFixed(2),
			"deferred", sumValues(q.Deferred).StringFixed(2))
		if b.Total.Sub(q.Expense).Abs().GreaterThan(tolerance) {
			logger.WarnContext(ctx, "Quarterly breakdown does not match waterfall expense",
				log.FieldQuarter, b.Quarter.Label(),
				"breakdown", b.Total.StringFixed(2),
				"expense", q.Expense.StringFixed(2))
		}
	}
}

func incomeRows(rows []core.LedgerRow, s Settings) []core.LedgerRow {
	var out []core.LedgerRow
	for _, r := range rows {
		if s.IsRevenue(r.Account) {
			out = append(out, r)
		}
	}
	return out
}

func sumValues(m map[core.AccountID]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}
