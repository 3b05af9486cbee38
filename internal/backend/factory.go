package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"budgetflow/internal/sheets/files"
	gsheet "budgetflow/internal/sheets/google"
	"budgetflow/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case FilesBackend:
		return f.createFilesBackend(config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createFilesBackend(config Config) (*BackendResult, error) {
	info, err := os.Stat(config.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("open data directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data directory %s is not a directory", config.DataDirectory)
	}

	store := files.New(config.DataDirectory, config.OutputDirectory, config.CatalogColumn)

	f.logger.Info("Initialized files backend",
		"data_directory", config.DataDirectory,
		"output_directory", config.OutputDirectory)

	return &BackendResult{Workspace: store}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		ProjectFolderID:        config.ProjectFolderID,
		OutputSpreadsheetID:    config.OutputSpreadsheetID,
		CatalogSpreadsheetID:   config.CatalogSpreadsheetID,
		CatalogColumn:          config.CatalogColumn,
		ReconciliationFolderID: config.ReconciliationFolderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend",
		"project_folder", config.ProjectFolderID,
		"reconciliation_folder", config.ReconciliationFolderID)

	return &BackendResult{Workspace: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	project := config.ProjectName
	if project == "" {
		project = "budgetflow"
	}
	store := memory.New(project)

	f.logger.Info("Initialized memory backend", "project", project)

	return &BackendResult{Workspace: store}, nil
}
