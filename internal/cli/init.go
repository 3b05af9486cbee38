// Package cli provides common initialization utilities shared by
// cmd/budgetflow, cmd/budgetflow-server and cmd/budgetflow-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"budgetflow/internal/amqp"
	"budgetflow/internal/backend"
	"budgetflow/internal/config"
	"budgetflow/internal/engine"
	"budgetflow/internal/log"
	"budgetflow/internal/services"
	"budgetflow/internal/storage"
	"budgetflow/internal/variance"
)

// SetupLogger builds the logger described by the configuration and sets it
// as the default logger.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(cfg.Logger(component))
	log.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration from the environment and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(component string) (*config.Config, *log.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// InitSQLite initializes a SQLite repository with the given path.
// Returns the repository or exits the process on failure.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	sqliteRepo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	logger.Info("Initialized run history", "path", dbPath, "schema", sqliteRepo.SchemaVersion())
	return sqliteRepo
}

// InitAMQP connects to the broker when configured. A nil client means run
// requests are executed inline.
func InitAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if !cfg.AMQPEnabled() {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, running requests inline", log.FieldError, err)
		return nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}

// Services is the set of run services built over one workspace.
type Services struct {
	Allocation *services.AllocationService
	Variance   *services.VarianceService
	Overview   *services.OverviewService
	Accounts   *services.AccountsService

	cleanups []backend.CleanupFunc
}

// Close releases the workspace and exporter resources.
func (s *Services) Close() error {
	var first error
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		if err := s.cleanups[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoadSettings returns the engine settings, overridden by SETTINGS_FILE when set.
func LoadSettings(cfg *config.Config) (engine.Settings, error) {
	settings := engine.DefaultSettings()
	if cfg.SettingsFile != "" {
		s, err := engine.LoadSettings(cfg.SettingsFile)
		if err != nil {
			return engine.Settings{}, err
		}
		settings = s
	}
	if cfg.EngineWorkers > 0 {
		settings.Workers = cfg.EngineWorkers
	}
	return settings, settings.Validate()
}

// BuildServices creates the configured workspace and wires every run service
// to it. runs may be nil when history is not recorded.
func BuildServices(ctx context.Context, cfg *config.Config, runs services.RunRecorder, logger *log.Logger) (*Services, error) {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return nil, fmt.Errorf("engine settings: %w", err)
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	svc := &Services{}
	if res.Cleanup != nil {
		svc.cleanups = append(svc.cleanups, res.Cleanup)
	}

	exporter, cleanup, err := backend.NewExporter(ctx, cfg.ExportBucket, logger)
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	if cleanup != nil {
		svc.cleanups = append(svc.cleanups, cleanup)
	}

	ws := res.Workspace
	svc.Allocation = services.NewAllocationService(ws, engine.New(settings, logger), runs, exporter, logger)
	svc.Variance = services.NewVarianceService(ws, variance.DefaultSettings(), runs, logger)
	svc.Overview = services.NewOverviewService(ws, runs, logger)
	svc.Accounts = services.NewAccountsService(ws, runs, logger)
	return svc, nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
