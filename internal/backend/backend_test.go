package backend

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetflow/internal/config"
	"budgetflow/internal/sheets"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackendType_IsValid(t *testing.T) {
	for _, bt := range GetBackendTypes() {
		assert.True(t, bt.IsValid(), bt.String())
	}
	assert.False(t, BackendType("sqlite").IsValid())
	assert.Equal(t, []string{"memory", "files", "sheets"}, GetBackendTypeStrings())
}

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "postgres"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:          "sheets",
		ProjectFolderID:      "folder",
		OutputSpreadsheetID:  "out",
		CatalogSpreadsheetID: "catalog",
		CatalogColumn:        9,
	})
	require.NoError(t, err)
	assert.Equal(t, SheetsBackend, cfg.Type)
	assert.Equal(t, "catalog", cfg.CatalogSpreadsheetID)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"files", Config{Type: FilesBackend, DataDirectory: "data", OutputDirectory: "out"}, false},
		{"files without data", Config{Type: FilesBackend, OutputDirectory: "out"}, true},
		{"sheets without catalog", Config{Type: SheetsBackend, ProjectFolderID: "p", OutputSpreadsheetID: "o"}, true},
		{"negative column", Config{Type: MemoryBackend, CatalogColumn: -1}, true},
		{"unknown", Config{Type: "sqlite"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(testLogger())

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, ProjectName: "Demo"})
		require.NoError(t, err)
		name, err := res.Workspace.ProjectName(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Demo", name)
		refs, err := res.Workspace.ListSources(ctx, sheets.Secured)
		require.NoError(t, err)
		assert.Empty(t, refs)
	})

	t.Run("files", func(t *testing.T) {
		dir := t.TempDir()
		res, err := f.CreateBackend(ctx, Config{Type: FilesBackend, DataDirectory: dir, OutputDirectory: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, res.Workspace)
	})

	t.Run("files missing directory", func(t *testing.T) {
		_, err := f.CreateBackend(ctx, Config{Type: FilesBackend, DataDirectory: "/does/not/exist", OutputDirectory: "out"})
		assert.Error(t, err)
	})

	t.Run("sheets without credentials", func(t *testing.T) {
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
		_, err := f.CreateBackend(ctx, Config{
			Type:                 SheetsBackend,
			ProjectFolderID:      "p",
			OutputSpreadsheetID:  "o",
			CatalogSpreadsheetID: "c",
		})
		assert.Error(t, err)
	})
}

func TestNewReportCache_LRU(t *testing.T) {
	c, cleanup, err := NewReportCache(context.Background(), "", time.Minute, testLogger())
	require.NoError(t, err)
	defer cleanup()

	c.Set("run/a", []byte("csv"))
	got, ok := c.Get("run/a")
	require.True(t, ok)
	assert.Equal(t, "csv", string(got))
	assert.Equal(t, 1, c.Size())
}

func TestNewExporter_Disabled(t *testing.T) {
	exp, cleanup, err := NewExporter(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Nil(t, exp)
	assert.Nil(t, cleanup)
}
