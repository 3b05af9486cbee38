package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetflow/internal/backend"
	"budgetflow/internal/cli"
	apphttp "budgetflow/internal/http"
	"budgetflow/internal/log"
	"budgetflow/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentHTTP)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	reportCache, closeCache, err := backend.NewReportCache(context.Background(), cfg.RedisURL, cfg.ReportCacheTTL,
		logger.WithComponent(log.ComponentCache).Logger)
	if err != nil {
		logger.Error("Failed to initialize report cache", log.FieldError, err)
		os.Exit(1)
	}
	defer closeCache()

	settings, err := cli.LoadSettings(cfg)
	if err != nil {
		logger.Error("Invalid engine settings", log.FieldError, err)
		os.Exit(1)
	}

	opts := apphttp.Options{
		Addr:        ":" + cfg.Port,
		MonthLayout: settings.MonthLayout,
		Cache:       reportCache,
		Logger:      logger,
	}

	// Runs go to the workers when a broker is configured, otherwise they run here
	if amqpClient := cli.InitAMQP(logger, cfg); amqpClient != nil {
		defer amqpClient.Close()
		opts.Queue = amqpClient
	} else {
		svc, err := cli.BuildServices(context.Background(), cfg, sqliteRepo, logger)
		if err != nil {
			logger.Error("Failed to build services", log.FieldError, err)
			os.Exit(1)
		}
		defer svc.Close()
		opts.Executor = worker.NewRunWorker(worker.Pipelines{
			Allocation: svc.Allocation,
			Variance:   svc.Variance,
			Overview:   svc.Overview,
			Accounts:   svc.Accounts,
		}, nil, sqliteRepo, logger)
	}

	srv := apphttp.NewServer(sqliteRepo, opts)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting budgetflow server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"queued_runs", opts.Queue != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
