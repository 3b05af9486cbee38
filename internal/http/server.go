// Package http serves the run history and triggers runs.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetflow/internal/amqp"
	"budgetflow/internal/cache"
	"budgetflow/internal/log"
	"budgetflow/internal/middleware/ratelimit"
	"budgetflow/internal/middleware/security"
	"budgetflow/internal/middleware/trace"
	"budgetflow/internal/storage"
	"budgetflow/internal/table"
)

// RunStore is the run history. *storage.SQLiteRepository implements it.
type RunStore interface {
	Ping(ctx context.Context) error
	ListRuns(ctx context.Context, limit int) ([]storage.Run, error)
	GetRun(ctx context.Context, id string) (storage.Run, error)
	ListRunSources(ctx context.Context, runID string) ([]storage.RunSource, error)
	QuarterSummaries(ctx context.Context, runID string) ([]storage.QuarterSummary, error)
	MatrixTable(ctx context.Context, runID, source, layout string) (table.Table, error)
	QueueRun(ctx context.Context, kind, requestedBy string) (storage.Run, error)
	FinishRun(ctx context.Context, id string, out storage.Outcome) error
}

// RunQueue hands run requests to workers. *amqp.Client implements it.
type RunQueue interface {
	PublishRunRequest(ctx context.Context, msg *amqp.RunRequest) error
}

// RunExecutor runs a request in process. *worker.RunWorker implements it.
type RunExecutor interface {
	Execute(ctx context.Context, req *amqp.RunRequest) (string, error)
}

// Options configures the server. Queue takes precedence over Executor; with
// neither, POST /api/runs is not available.
type Options struct {
	Addr        string
	MonthLayout string
	Queue       RunQueue
	Executor    RunExecutor
	Cache       cache.Cache[[]byte]
	RateLimit   ratelimit.Config
	Logger      *log.Logger
}

type Server struct {
	http.Server
	runs     RunStore
	queue    RunQueue
	executor RunExecutor
	cache    cache.Cache[[]byte]
	layout   string
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	// inline runs outlive their request and stop at shutdown
	baseCtx      context.Context
	cancelRuns   context.CancelFunc
	inline       sync.WaitGroup
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(runs RunStore, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	c := opts.Cache
	if c == nil {
		c = cache.NewWeightedLRUCache[[]byte](128, 8<<20, 5*time.Minute, cache.ByteLen)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	clientIP := security.NewClientIP()
	s := &Server{
		runs:       runs,
		queue:      opts.Queue,
		executor:   opts.Executor,
		cache:      c,
		layout:     opts.MonthLayout,
		logger:     logger,
		limiter:    ratelimit.NewLimiter(opts.RateLimit),
		tracer:     trace.NewMiddleware(logger, clientIP.Extract),
		baseCtx:    baseCtx,
		cancelRuns: cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/sources/{source}", s.handleSourceCSV)

	var h http.Handler = mux
	h = s.limiter.Middleware(clientIP.Extract, http.MethodPost)(h)
	h = log.Middleware(logger, trace.GetRequestID)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests, cancels inline runs and waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		s.cancelRuns()

		done := make(chan struct{})
		go func() {
			s.inline.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Inline runs still active at shutdown")
		}
	})

	return shutdownErr
}
