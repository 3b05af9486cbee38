package services

import (
	"context"

	"budgetflow/internal/log"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
)

// Run kinds recorded in the run history.
const (
	KindAllocate = "allocate"
	KindVariance = "variance"
	KindOverview = "overview"
	KindAccounts = "accounts"
)

// RunRecorder persists run history. *storage.SQLiteRepository implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, kind, project, requestedBy string) (storage.Run, error)
	StartRun(ctx context.Context, id, kind, project, requestedBy string) (storage.Run, error)
	FinishRun(ctx context.Context, id string, out storage.Outcome) error
}

// Exporter archives report tables outside the workspace.
type Exporter interface {
	Export(ctx context.Context, runID string, tables []table.Table) ([]string, error)
}

// RunInfo identifies a run to record. An empty ID creates a new run.
type RunInfo struct {
	ID          string
	Project     string
	RequestedBy string
}

// tracker records the start and end of a run when a recorder is configured.
// Recording failures are logged and never fail the run itself.
type tracker struct {
	runs   RunRecorder
	logger *log.Logger
}

func (t tracker) begin(ctx context.Context, kind string, info RunInfo) string {
	if t.runs == nil {
		return info.ID
	}
	var (
		run storage.Run
		err error
	)
	if info.ID == "" {
		run, err = t.runs.CreateRun(ctx, kind, info.Project, info.RequestedBy)
	} else {
		run, err = t.runs.StartRun(ctx, info.ID, kind, info.Project, info.RequestedBy)
	}
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to record run start", log.FieldError, err)
		return info.ID
	}
	return run.ID
}

func (t tracker) finish(ctx context.Context, id string, out storage.Outcome) {
	if t.runs == nil || id == "" {
		return
	}
	if err := t.runs.FinishRun(ctx, id, out); err != nil {
		t.logger.ErrorContext(ctx, "Failed to record run outcome",
			log.FieldRunID, id, log.FieldError, err)
	}
}
