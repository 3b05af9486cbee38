package backend

import (
	"fmt"

	"budgetflow/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		DataDirectory:   appConfig.DataDir,
		OutputDirectory: appConfig.OutputDir,
		CatalogColumn:   appConfig.CatalogColumn,

		ProjectFolderID:        appConfig.ProjectFolderID,
		OutputSpreadsheetID:    appConfig.OutputSpreadsheetID,
		CatalogSpreadsheetID:   appConfig.CatalogSpreadsheetID,
		ReconciliationFolderID: appConfig.ReconciliationFolderID,

		ProjectName: "budgetflow",
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case FilesBackend:
		if c.DataDirectory == "" {
			return fmt.Errorf("data directory is required for files backend")
		}
		if c.OutputDirectory == "" {
			return fmt.Errorf("output directory is required for files backend")
		}

	case SheetsBackend:
		if c.ProjectFolderID == "" {
			return fmt.Errorf("project folder ID is required for sheets backend")
		}
		if c.OutputSpreadsheetID == "" {
			return fmt.Errorf("output spreadsheet ID is required for sheets backend")
		}
		if c.CatalogSpreadsheetID == "" {
			return fmt.Errorf("catalog spreadsheet ID is required for sheets backend")
		}

	case MemoryBackend:
		// Memory backend starts empty
	}

	if c.CatalogColumn < 0 {
		return fmt.Errorf("catalog column must not be negative: %d", c.CatalogColumn)
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, FilesBackend, SheetsBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
