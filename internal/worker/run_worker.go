package worker

import (
	"context"
	"errors"
	"fmt"

	"budgetflow/internal/amqp"
	"budgetflow/internal/core"
	"budgetflow/internal/log"
	"budgetflow/internal/services"
	"budgetflow/internal/sheets"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
	"budgetflow/internal/variance"
)

// Pipelines executed by the worker. The services record their own runs.
type (
	Allocator interface {
		Allocate(ctx context.Context, info services.RunInfo) (*services.AllocationResult, error)
	}

	Reconciler interface {
		ReconcileAll(ctx context.Context, info services.RunInfo) (map[core.FundingSourceID]*variance.Result, error)
	}

	OverviewBuilder interface {
		Build(ctx context.Context, info services.RunInfo) (table.Table, error)
	}

	AccountRefresher interface {
		FindSource(ctx context.Context, name string) (sheets.SourceRef, error)
		Refresh(ctx context.Context, ref sheets.SourceRef, info services.RunInfo) error
	}
)

// Publisher announces finished runs. *amqp.Client implements it.
type Publisher interface {
	PublishRunCompleted(ctx context.Context, msg *amqp.RunCompleted) error
}

// RunFinisher closes runs that failed before a pipeline could record them.
type RunFinisher interface {
	FinishRun(ctx context.Context, id string, out storage.Outcome) error
}

// Pipelines groups the services a worker dispatches to.
type Pipelines struct {
	Allocation Allocator
	Variance   Reconciler
	Overview   OverviewBuilder
	Accounts   AccountRefresher
}

// RunWorker executes run requests and publishes their completion.
type RunWorker struct {
	pipelines Pipelines
	publisher Publisher
	runs      RunFinisher
	logger    *log.Logger
}

// NewRunWorker wires a worker. publisher and runs may be nil.
func NewRunWorker(pipelines Pipelines, publisher Publisher, runs RunFinisher, logger *log.Logger) *RunWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &RunWorker{
		pipelines: pipelines,
		publisher: publisher,
		runs:      runs,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRunRequest executes one request. A failed run is recorded and
// published, and the delivery is still acknowledged; only a cancelled context
// is returned so the message goes back to the queue.
func (w *RunWorker) HandleRunRequest(ctx context.Context, req *amqp.RunRequest) error {
	logger := w.logger.With(log.FieldRunID, req.RunID, "kind", req.Kind)
	logger.InfoContext(ctx, "Processing run request", "requested_by", req.RequestedBy)

	note, err := w.Execute(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.WarnContext(ctx, "Run interrupted", log.FieldError, ctxErr)
		return ctxErr
	}

	status := string(storage.StatusCompleted)
	if err != nil {
		status = string(storage.StatusFailed)
		logger.ErrorContext(ctx, "Run failed", log.FieldError, err)
	} else {
		logger.InfoContext(ctx, "Run completed", "note", note)
	}

	if w.publisher != nil {
		if perr := w.publisher.PublishRunCompleted(ctx, amqp.NewRunCompleted(req, status, note, err)); perr != nil {
			logger.WarnContext(ctx, "Failed to publish run completion", log.FieldError, perr)
		}
	}
	return nil
}

// Execute dispatches a request to its pipeline and returns a short note
// describing the outcome.
func (w *RunWorker) Execute(ctx context.Context, req *amqp.RunRequest) (string, error) {
	info := services.RunInfo{ID: req.RunID, RequestedBy: req.RequestedBy}

	switch req.Kind {
	case amqp.KindAllocate:
		if w.pipelines.Allocation == nil {
			return "", w.unsupported(ctx, req)
		}
		res, err := w.pipelines.Allocation.Allocate(ctx, info)
		if res == nil || res.Report == nil {
			return "", err
		}
		return fmt.Sprintf("%d sources allocated, %d failed, %d exported",
			len(res.Report.Sources), len(res.Report.Failed), len(res.Exported)), err

	case amqp.KindVariance:
		if w.pipelines.Variance == nil {
			return "", w.unsupported(ctx, req)
		}
		results, err := w.pipelines.Variance.ReconcileAll(ctx, info)
		return fmt.Sprintf("%d budgets reconciled", len(results)), err

	case amqp.KindOverview:
		if w.pipelines.Overview == nil {
			return "", w.unsupported(ctx, req)
		}
		t, err := w.pipelines.Overview.Build(ctx, info)
		return fmt.Sprintf("%d overview lines", len(t.Rows)), err

	case amqp.KindAccounts:
		if w.pipelines.Accounts == nil {
			return "", w.unsupported(ctx, req)
		}
		ref, err := w.pipelines.Accounts.FindSource(ctx, req.Source)
		if err != nil {
			w.fail(ctx, req.RunID, err)
			return "", err
		}
		if err := w.pipelines.Accounts.Refresh(ctx, ref, info); err != nil {
			return "", err
		}
		return ref.Name, nil

	default:
		err := fmt.Errorf("%w: unknown run kind %q", amqp.ErrPermanent, req.Kind)
		w.fail(ctx, req.RunID, err)
		return "", err
	}
}

func (w *RunWorker) unsupported(ctx context.Context, req *amqp.RunRequest) error {
	err := fmt.Errorf("%w: no %s pipeline configured", amqp.ErrPermanent, req.Kind)
	w.fail(ctx, req.RunID, err)
	return err
}

// fail records a run that never reached its pipeline.
func (w *RunWorker) fail(ctx context.Context, runID string, err error) {
	if w.runs == nil || runID == "" {
		return
	}
	if ferr := w.runs.FinishRun(ctx, runID, storage.Outcome{Err: err}); ferr != nil && !errors.Is(ferr, storage.ErrRunNotFound) {
		w.logger.ErrorContext(ctx, "Failed to record run failure", log.FieldRunID, runID, log.FieldError, ferr)
	}
}
