package backend

import (
	"context"

	"budgetflow/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the workspace instance and optional cleanup function
type BackendResult struct {
	Workspace sheets.Workspace
	Cleanup   CleanupFunc
}

// Factory creates workspaces based on configuration
type Factory interface {
	// CreateBackend creates a workspace instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// Files specific
	DataDirectory   string
	OutputDirectory string

	// Shared by files and sheets
	CatalogColumn int

	// Google Sheets specific
	ProjectFolderID        string
	OutputSpreadsheetID    string
	CatalogSpreadsheetID   string
	ReconciliationFolderID string

	// Memory backend specific
	ProjectName string
}

// BackendType represents the type of backend
type BackendType string

const (
	FilesBackend  BackendType = "files"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case FilesBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
