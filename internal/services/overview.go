package services

import (
	"context"
	"errors"
	"fmt"

	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/overview"
	"budgetflow/internal/sheets"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
)

type OverviewPorts interface {
	sheets.SourceLister
	sheets.SheetReader
	sheets.ReportWriter
}

// OverviewService writes the funding overview of secured and proposed sources.
type OverviewService struct {
	ports   OverviewPorts
	tracker tracker
	logger  *log.Logger
}

func NewOverviewService(ports OverviewPorts, runs RunRecorder, logger *log.Logger) *OverviewService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentOverview)
	return &OverviewService{ports: ports, tracker: tracker{runs: runs, logger: logger}, logger: logger}
}

// Build collects the milestone lines of every source and replaces the Overview sheet.
func (s *OverviewService) Build(ctx context.Context, info RunInfo) (table.Table, error) {
	if info.Project == "" {
		if p, err := s.ports.ProjectName(ctx); err == nil {
			info.Project = p
		}
	}
	runID := s.tracker.begin(ctx, KindOverview, info)
	t, err := s.build(ctx, s.logger.With(log.FieldRunID, runID, log.FieldOperation, log.OpOverview))
	s.tracker.finish(ctx, runID, storage.Outcome{Note: fmt.Sprintf("%d overview lines", len(t.Rows)), Err: err})
	return t, err
}

func (s *OverviewService) build(ctx context.Context, logger *log.Logger) (table.Table, error) {
	var lines []overview.Line
	for _, folder := range []sheets.Folder{sheets.Secured, sheets.Proposed} {
		refs, err := s.ports.ListSources(ctx, folder)
		if err != nil {
			return table.Table{}, fmt.Errorf("list %s: %w", folder, err)
		}
		for _, ref := range refs {
			if err := ctx.Err(); err != nil {
				return table.Table{}, err
			}
			wb, err := s.workbook(ctx, ref)
			if err != nil {
				logger.WarnContext(ctx, "Skipping funding source", log.FieldFundingSource, ref.Name, log.FieldError, err)
				continue
			}
			got, err := overview.Extract(wb)
			if err != nil {
				if got == nil {
					logger.WarnContext(ctx, "Skipping funding source", log.FieldFundingSource, ref.Name, log.FieldError, err)
					continue
				}
				logger.WarnContext(ctx, "Funding source has no tracked actuals", log.FieldFundingSource, ref.Name, log.FieldError, err)
			}
			logger.DebugContext(ctx, "Overview lines extracted", log.FieldFundingSource, ref.Name, "lines", len(got))
			lines = append(lines, got...)
		}
	}

	t := overview.Build(lines)
	if err := s.ports.WriteSheet(ctx, t); err != nil {
		return t, fmt.Errorf("write overview: %w", err)
	}
	logger.InfoContext(ctx, "Overview written", log.FieldSheet, t.Name, "lines", len(t.Rows))
	return t, nil
}

// workbook reads the two sheets the overview needs. A missing sheet is left nil.
func (s *OverviewService) workbook(ctx context.Context, ref sheets.SourceRef) (overview.Workbook, error) {
	wb := overview.Workbook{Source: ref.FundingSource(), Secured: ref.Folder == sheets.Secured}
	var err error
	if wb.Budget, err = s.optionalSheet(ctx, ref, overview.BudgetSheet); err != nil {
		return wb, err
	}
	if wb.Tracking, err = s.optionalSheet(ctx, ref, overview.TrackingSheet); err != nil {
		return wb, err
	}
	return wb, nil
}

func (s *OverviewService) optionalSheet(ctx context.Context, ref sheets.SourceRef, sheet string) ([][]any, error) {
	grid, err := s.ports.ReadSheet(ctx, ref, sheet)
	if errors.Is(err, core.ErrMissingCollaboratorData) {
		return nil, nil
	}
	return grid, err
}
