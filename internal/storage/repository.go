package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"budgetflow/internal/core"
	"budgetflow/internal/engine"
	"budgetflow/internal/period"
	"budgetflow/internal/table"
)

// CombinedSource is the source key under which the combined matrix of a run is stored.
const CombinedSource = "_combined"

const (
	monthKey = "2006-01"
	// fixed width so timestamps sort as text
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var ErrRunNotFound = errors.New("run not found")

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is one recorded invocation of a pipeline.
type Run struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Project     string     `json:"project"`
	Status      RunStatus  `json:"status"`
	RequestedBy string     `json:"requested_by,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	SpanStart   string     `json:"span_start,omitempty"`
	SpanEnd     string     `json:"span_end,omitempty"`
	Months      []string   `json:"months,omitempty"`
	Total       string     `json:"total"`
	Warnings    int        `json:"warnings"`
	Note        string     `json:"note,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// RunSource is the per funding source outcome of an allocation run.
type RunSource struct {
	Source  string `json:"source"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Rows    int    `json:"rows"`
	Skipped int    `json:"skipped"`
	Dropped int    `json:"dropped"`
	Total   string `json:"total"`
}

type QuarterSummary struct {
	Source    string `json:"source"`
	Quarter   string `json:"quarter"`
	Expense   string `json:"expense"`
	Released  string `json:"released"`
	Deferred  string `json:"deferred"`
	Uncovered string `json:"uncovered"`
}

// Outcome is what FinishRun records. Report is nil for runs that do not allocate.
type Outcome struct {
	Report *engine.Report
	Note   string
	Err    error
}

type SQLiteRepository struct {
	db     *sql.DB
	now    func() time.Time
	schema uint
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateHistory(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now, schema: version}, nil
}

// SchemaVersion is the migration version the history was opened at.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schema
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateRun records a new run in the running state.
func (r *SQLiteRepository) CreateRun(ctx context.Context, kind, project, requestedBy string) (Run, error) {
	return r.StartRun(ctx, uuid.NewString(), kind, project, requestedBy)
}

// QueueRun records a run that a worker will pick up later.
func (r *SQLiteRepository) QueueRun(ctx context.Context, kind, requestedBy string) (Run, error) {
	run := Run{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      StatusQueued,
		RequestedBy: requestedBy,
		StartedAt:   r.now().UTC(),
		Total:       "0",
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, requested_by, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Kind, string(run.Status), run.RequestedBy, formatTime(run.StartedAt))
	if err != nil {
		return Run{}, fmt.Errorf("queue run: %w", err)
	}
	slog.InfoContext(ctx, "Run queued", "run_id", run.ID, "kind", kind)
	return run, nil
}

// StartRun moves a queued run to running, or records it when id is unknown.
func (r *SQLiteRepository) StartRun(ctx context.Context, id, kind, project, requestedBy string) (Run, error) {
	started := r.now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, project, status, requested_by, started_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, started_at = excluded.started_at,
		    project = CASE WHEN excluded.project <> '' THEN excluded.project ELSE runs.project END`,
		id, kind, project, string(StatusRunning), requestedBy, formatTime(started))
	if err != nil {
		return Run{}, fmt.Errorf("start run: %w", err)
	}
	slog.InfoContext(ctx, "Run started", "run_id", id, "kind", kind, "project", project)
	return r.GetRun(ctx, id)
}

// FinishRun closes a run and, when the outcome carries a report, stores its
// sources, quarter summaries and matrices in one transaction.
func (r *SQLiteRepository) FinishRun(ctx context.Context, id string, out Outcome) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	status := StatusCompleted
	errText := ""
	if out.Err != nil {
		status = StatusFailed
		errText = out.Err.Error()
	}

	var spanStart, spanEnd, months, total string
	total = "0"
	warnings := 0
	rep := out.Report
	if rep != nil {
		if !rep.Start.IsZero() {
			spanStart, spanEnd = rep.Start.String(), rep.End.String()
		}
		keys := make([]string, len(rep.Months))
		for i, m := range rep.Months {
			keys[i] = m.Start().Format(monthKey)
		}
		months = strings.Join(keys, ",")
		if rep.Combined != nil {
			total = rep.Combined.Total().StringFixed(2)
		}
		warnings = len(rep.Warnings())
		if err := saveReport(ctx, tx, id, rep); err != nil {
			return err
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, span_start = ?, span_end = ?, months = ?,
		    total = ?, warnings = ?, note = ?, error = ?, project = CASE WHEN ? <> '' THEN ? ELSE project END
		 WHERE id = ?`,
		string(status), formatTime(r.now().UTC()), spanStart, spanEnd, months,
		total, warnings, out.Note, errText, projectOf(rep), projectOf(rep), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	slog.InfoContext(ctx, "Run finished", "run_id", id, "status", status, "warnings", warnings)
	return nil
}

func projectOf(rep *engine.Report) string {
	if rep == nil {
		return ""
	}
	return rep.Project
}

func saveReport(ctx context.Context, tx *sql.Tx, runID string, rep *engine.Report) error {
	if rep.Combined != nil {
		for i, a := range rep.Combined.Accounts() {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO run_accounts (run_id, position, account) VALUES (?, ?, ?)`,
				runID, i, string(a)); err != nil {
				return fmt.Errorf("save accounts: %w", err)
			}
		}
		if err := saveMatrix(ctx, tx, runID, CombinedSource, rep.Combined); err != nil {
			return err
		}
	}

	for _, s := range rep.Sources {
		source := string(s.Source)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_sources (run_id, source, status, row_count, skipped, dropped, total) VALUES (?, ?, 'ok', ?, ?, ?, ?)`,
			runID, source, len(s.Ledger.Rows), len(s.Ledger.Skipped), s.Dropped, s.Matrix.Total().StringFixed(2)); err != nil {
			return fmt.Errorf("save source %s: %w", source, err)
		}
		for _, q := range s.Waterfall.Quarters {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO quarter_summaries (run_id, source, quarter, expense, released, deferred, uncovered) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, source, q.Quarter.Label(),
				q.Expense.StringFixed(2), sum(q.Released).StringFixed(2), sum(q.Deferred).StringFixed(2), q.Uncovered.StringFixed(2)); err != nil {
				return fmt.Errorf("save quarter %s/%s: %w", source, q.Quarter, err)
			}
		}
		if err := saveMatrix(ctx, tx, runID, source, s.Matrix); err != nil {
			return err
		}
	}

	for src, ferr := range rep.Failed {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_sources (run_id, source, status, error) VALUES (?, ?, 'failed', ?)`,
			runID, string(src), ferr.Error()); err != nil {
			return fmt.Errorf("save failed source %s: %w", src, err)
		}
	}
	return nil
}

func saveMatrix(ctx context.Context, tx *sql.Tx, runID, source string, m *engine.Matrix) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matrix_cells (run_id, source, account, month, amount) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare matrix insert: %w", err)
	}
	defer stmt.Close()

	var insertErr error
	m.Each(func(account core.AccountID, month period.Month, amount decimal.Decimal) {
		if insertErr != nil {
			return
		}
		_, insertErr = stmt.ExecContext(ctx, runID, source, string(account), month.Start().Format(monthKey), amount.String())
	})
	if insertErr != nil {
		return fmt.Errorf("save matrix %s: %w", source, insertErr)
	}
	return nil
}

func sum(m map[core.AccountID]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}

const runColumns = `id, kind, project, status, requested_by, started_at, finished_at,
	span_start, span_end, months, total, warnings, note, error`

// ListRuns returns the most recent runs first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run      Run
		status   string
		started  string
		finished sql.NullString
		months   string
	)
	err := s.Scan(&run.ID, &run.Kind, &run.Project, &status, &run.RequestedBy, &started, &finished,
		&run.SpanStart, &run.SpanEnd, &months, &run.Total, &run.Warnings, &run.Note, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)
	if run.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if finished.Valid && finished.String != "" {
		t, err := parseTime(finished.String)
		if err != nil {
			return Run{}, err
		}
		run.FinishedAt = &t
	}
	if months != "" {
		run.Months = strings.Split(months, ",")
	}
	return run, nil
}

// ListRunSources returns the per-source outcomes of a run ordered by source.
func (r *SQLiteRepository) ListRunSources(ctx context.Context, runID string) ([]RunSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source, status, error, row_count, skipped, dropped, total FROM run_sources WHERE run_id = ? ORDER BY source`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run sources: %w", err)
	}
	defer rows.Close()

	var out []RunSource
	for rows.Next() {
		var s RunSource
		if err := rows.Scan(&s.Source, &s.Status, &s.Error, &s.Rows, &s.Skipped, &s.Dropped, &s.Total); err != nil {
			return nil, fmt.Errorf("scan run source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// QuarterSummaries returns the waterfall summaries of a run, ordered by source then quarter.
func (r *SQLiteRepository) QuarterSummaries(ctx context.Context, runID string) ([]QuarterSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT source, quarter, expense, released, deferred, uncovered FROM quarter_summaries
		 WHERE run_id = ? ORDER BY source, quarter`, runID)
	if err != nil {
		return nil, fmt.Errorf("list quarter summaries: %w", err)
	}
	defer rows.Close()

	var out []QuarterSummary
	for rows.Next() {
		var q QuarterSummary
		if err := rows.Scan(&q.Source, &q.Quarter, &q.Expense, &q.Released, &q.Deferred, &q.Uncovered); err != nil {
			return nil, fmt.Errorf("scan quarter summary: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// MatrixTable rebuilds the dense account by month table of one source of a run.
// Use CombinedSource for the combined matrix.
func (r *SQLiteRepository) MatrixTable(ctx context.Context, runID, source, layout string) (table.Table, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return table.Table{}, err
	}
	if layout == "" {
		layout = period.DefaultMonthLayout
	}

	months := make([]period.Month, 0, len(run.Months))
	col := make(map[string]int, len(run.Months))
	for i, key := range run.Months {
		t, err := time.Parse(monthKey, key)
		if err != nil {
			return table.Table{}, fmt.Errorf("run %s: bad month %q: %w", runID, key, err)
		}
		months = append(months, period.Month{Year: t.Year(), Month: t.Month()})
		col[key] = i
	}

	accounts, err := r.runAccounts(ctx, runID)
	if err != nil {
		return table.Table{}, err
	}
	rowOf := make(map[string]int, len(accounts))
	grid := make([][]decimal.Decimal, len(accounts))
	for i, a := range accounts {
		rowOf[a] = i
		grid[i] = make([]decimal.Decimal, len(months))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT account, month, amount FROM matrix_cells WHERE run_id = ? AND source = ?`, runID, source)
	if err != nil {
		return table.Table{}, fmt.Errorf("read matrix: %w", err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var account, month, amount string
		if err := rows.Scan(&account, &month, &amount); err != nil {
			return table.Table{}, fmt.Errorf("scan matrix cell: %w", err)
		}
		found = true
		i, ok := rowOf[account]
		j, ok2 := col[month]
		if !ok || !ok2 {
			continue
		}
		if grid[i][j], err = decimal.NewFromString(amount); err != nil {
			return table.Table{}, fmt.Errorf("matrix cell %s/%s: %w", account, month, err)
		}
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, err
	}
	if !found && !r.hasSource(ctx, runID, source) {
		return table.Table{}, fmt.Errorf("%w: source %q in run %s", ErrRunNotFound, source, runID)
	}

	name := source
	if source == CombinedSource {
		name = run.Project
	}
	header := make([]string, 0, len(months)+1)
	header = append(header, string(core.AccountHeader))
	for _, m := range months {
		header = append(header, m.Format(layout))
	}
	out := table.Table{Name: name, Header: header, Rows: make([][]any, 0, len(accounts))}
	for i, a := range accounts {
		row := make([]any, 0, len(months)+1)
		row = append(row, a)
		for _, v := range grid[i] {
			row = append(row, core.Cell(v))
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func (r *SQLiteRepository) runAccounts(ctx context.Context, runID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT account FROM run_accounts WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("read run accounts: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan run account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) hasSource(ctx context.Context, runID, source string) bool {
	if source == CombinedSource {
		var n int
		_ = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM run_accounts WHERE run_id = ?`, runID).Scan(&n)
		return n > 0
	}
	var n int
	_ = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM run_sources WHERE run_id = ? AND source = ? AND status = 'ok'`, runID, source).Scan(&n)
	return n > 0
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
