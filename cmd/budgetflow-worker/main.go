package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetflow/internal/cli"
	"budgetflow/internal/log"
	"budgetflow/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker)
	logger.Info("Starting budgetflow-worker", "backend", cfg.DataBackend)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	amqpClient := cli.InitAMQP(logger, cfg)
	if amqpClient == nil {
		os.Exit(1)
	}
	defer amqpClient.Close()

	svc, err := cli.BuildServices(context.Background(), cfg, sqliteRepo, logger)
	if err != nil {
		logger.Error("Failed to build services", log.FieldError, err)
		os.Exit(1)
	}
	defer svc.Close()

	runWorker := worker.NewRunWorker(worker.Pipelines{
		Allocation: svc.Allocation,
		Variance:   svc.Variance,
		Overview:   svc.Overview,
		Accounts:   svc.Accounts,
	}, amqpClient, sqliteRepo, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	go func() {
		err := amqpClient.ConsumeRunRequests(ctx, runWorker.HandleRunRequest)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	logger.Info("Worker consuming run requests",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
