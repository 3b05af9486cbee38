package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"budgetflow/internal/core"
	"budgetflow/internal/engine"
	"budgetflow/internal/log"
	"budgetflow/internal/sheets"
	"budgetflow/internal/storage"
)

// AllocationPorts is what an allocation run reads from and writes to.
type AllocationPorts interface {
	sheets.SourceLister
	sheets.SheetReader
	sheets.CatalogReader
	sheets.ReportWriter
}

// AllocationService runs the allocation engine over the secured funding
// sources of a project and publishes the resulting matrices.
type AllocationService struct {
	ports    AllocationPorts
	engine   *engine.Engine
	tracker  tracker
	exporter Exporter
	logger   *log.Logger
}

// AllocationResult is the outcome of one allocation run.
type AllocationResult struct {
	RunID    string
	Report   *engine.Report
	Exported []string
}

// NewAllocationService wires the service. runs and exporter may be nil.
func NewAllocationService(ports AllocationPorts, eng *engine.Engine, runs RunRecorder, exporter Exporter, logger *log.Logger) *AllocationService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentEngine)
	return &AllocationService{
		ports:    ports,
		engine:   eng,
		tracker:  tracker{runs: runs, logger: logger},
		exporter: exporter,
		logger:   logger,
	}
}

// Allocate reads the catalog and every secured budget, runs the engine and
// replaces the output workbook with one tab per source plus the combined tab.
// Nothing is written when the engine fails.
func (s *AllocationService) Allocate(ctx context.Context, info RunInfo) (*AllocationResult, error) {
	project, err := s.ports.ProjectName(ctx)
	if err != nil {
		err = fmt.Errorf("project name: %w", err)
		runID := s.tracker.begin(ctx, KindAllocate, info)
		s.tracker.finish(ctx, runID, storage.Outcome{Err: err})
		s.logger.ErrorContext(ctx, "Allocation failed", log.FieldRunID, runID, log.FieldError, err)
		return &AllocationResult{RunID: runID}, err
	}
	info.Project = project
	runID := s.tracker.begin(ctx, KindAllocate, info)
	logger := s.logger.With(log.NewFields().WithRun(runID, project).WithOperation(log.OpAllocate).ToSlice()...)

	report, err := s.allocate(ctx, logger, project)
	s.tracker.finish(ctx, runID, storage.Outcome{Report: report, Err: err})
	if err != nil {
		logger.ErrorContext(ctx, "Allocation failed", log.FieldError, err)
		return &AllocationResult{RunID: runID, Report: report}, err
	}

	res := &AllocationResult{RunID: runID, Report: report}
	if s.exporter != nil {
		layout := s.engine.Settings().MonthLayout
		if res.Exported, err = s.exporter.Export(ctx, runID, report.Tables(layout)); err != nil {
			logger.WarnContext(ctx, "Report export failed", log.FieldError, err)
		}
	}
	logger.InfoContext(ctx, "Allocation completed",
		"sources", len(report.Sources),
		"failed", len(report.Failed),
		"warnings", len(report.Warnings()),
		"total", report.Combined.Total().StringFixed(2))
	return res, nil
}

func (s *AllocationService) allocate(ctx context.Context, logger *log.Logger, project string) (*engine.Report, error) {
	labels, err := s.ports.ReadAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	catalog := core.NewCatalog(labels, s.engine.Settings().ExcludedAccounts)
	logger.InfoContext(ctx, "Catalog loaded", "accounts", catalog.Len())

	refs, err := s.ports.ListSources(ctx, sheets.Secured)
	if err != nil {
		return nil, fmt.Errorf("list secured sources: %w", err)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: folder %q is empty", core.ErrNoSources, sheets.Secured)
	}

	refs = distinctNames(logger, refs)

	sources, readFailures := s.readSources(ctx, logger, refs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrNoSources, errors.Join(mapValues(readFailures)...))
	}

	report, err := s.engine.Run(ctx, project, catalog, sources)
	if report != nil {
		for id, ferr := range readFailures {
			report.Failed[id] = ferr
		}
	}
	if err != nil {
		return report, err
	}

	tables := report.Tables(s.engine.Settings().MonthLayout)
	if err := s.ports.ReplaceSheets(ctx, tables); err != nil {
		return report, fmt.Errorf("write report: %w", err)
	}
	logger.InfoContext(ctx, "Report written", "tabs", len(tables))
	return report, nil
}

// readSources reads the Budget sheet of every source with bounded concurrency.
// Unreadable sources are returned separately and do not stop the others.
func (s *AllocationService) readSources(ctx context.Context, logger *log.Logger, refs []sheets.SourceRef) ([]engine.Source, map[core.FundingSourceID]error) {
	read := make([]*engine.Source, len(refs))
	failed := make(map[core.FundingSourceID]error)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.engine.Settings().Workers, 1))
	for i, ref := range refs {
		g.Go(func() error {
			t, err := sheets.ReadTable(gctx, s.ports, ref, sheets.BudgetSheet)
			if err != nil {
				logger.WarnContext(gctx, "Skipping unreadable funding source",
					log.FieldFundingSource, ref.Name, log.FieldError, err)
				mu.Lock()
				failed[ref.FundingSource()] = err
				mu.Unlock()
				return nil
			}
			read[i] = &engine.Source{ID: ref.FundingSource(), Table: t}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]engine.Source, 0, len(read))
	for _, src := range read {
		if src != nil {
			out = append(out, *src)
		}
	}
	return out, failed
}

// distinctNames renames workbooks sharing a name so every source keeps its own
// matrix and history rows. The first keeps its name, later ones get " (2)", " (3)".
func distinctNames(logger *log.Logger, refs []sheets.SourceRef) []sheets.SourceRef {
	out := make([]sheets.SourceRef, len(refs))
	taken := make(map[string]bool, len(refs))
	for _, ref := range refs {
		taken[ref.Name] = true
	}
	seen := make(map[string]int, len(refs))
	for i, ref := range refs {
		out[i] = ref
		seen[ref.Name]++
		if seen[ref.Name] == 1 {
			continue
		}
		n := seen[ref.Name]
		name := fmt.Sprintf("%s (%d)", ref.Name, n)
		for taken[name] {
			n++
			name = fmt.Sprintf("%s (%d)", ref.Name, n)
		}
		taken[name] = true
		seen[ref.Name] = n
		logger.Warn("Duplicate funding source name", log.FieldFundingSource, ref.Name, "renamed", name, "ref", ref.ID)
		out[i].Name = name
	}
	return out
}

func mapValues(m map[core.FundingSourceID]error) []error {
	out := make([]error, 0, len(m))
	for _, err := range m {
		out = append(out, err)
	}
	return out
}
