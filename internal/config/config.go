package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"budgetflow/internal/log"
)

// Supported data backends.
const (
	BackendMemory = "memory"
	BackendFiles  = "files"
	BackendSheets = "sheets"
)

var validBackends = []string{BackendMemory, BackendFiles, BackendSheets}

type Config struct {
	// Data backend
	DataBackend string
	DataDir     string
	OutputDir   string

	// Google Sheets and Drive
	ProjectFolderID        string
	OutputSpreadsheetID    string
	CatalogSpreadsheetID   string
	CatalogColumn          int
	ReconciliationFolderID string

	// Engine
	SettingsFile  string
	EngineWorkers int

	// Run history
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Report cache and archive
	RedisURL       string
	ReportCacheTTL time.Duration
	ExportBucket   string

	// HTTP Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string
}

// defaults are shared by Load and Build.
var defaults = map[string]string{
	"DATA_BACKEND":     BackendMemory,
	"DATA_DIR":         "./data",
	"OUTPUT_DIR":       "./out",
	"CATALOG_COLUMN":   "9",
	"SQLITE_DB_PATH":   "./data/budgetflow.db",
	"ENGINE_WORKERS":   "4",
	"REPORT_CACHE_TTL": "5m",
	"PORT":             "8081",
	"LOG_LEVEL":        "info",
	"LOG_FORMAT":       "text",
}

// Keys lists every configuration key.
var Keys = []string{
	"DATA_BACKEND", "DATA_DIR", "OUTPUT_DIR",
	"PROJECT_FOLDER_ID", "OUTPUT_SPREADSHEET_ID", "CATALOG_SPREADSHEET_ID", "CATALOG_COLUMN",
	"RECONCILIATION_FOLDER_ID",
	"SETTINGS_FILE", "ENGINE_WORKERS",
	"SQLITE_DB_PATH",
	"AMQP_URL", "AMQP_EXCHANGE", "AMQP_QUEUE",
	"REDIS_URL", "REPORT_CACHE_TTL", "EXPORT_BUCKET",
	"PORT",
	"LOG_LEVEL", "LOG_FORMAT",
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()
	return build(func(key string) string { return getEnv(key, defaults[key]) })
}

// Build layers the environment, an optional config file and command line
// flags with viper. Flags are matched to keys by lower-casing the key and
// replacing underscores with dashes, so DATA_BACKEND binds --data-backend.
func Build(file string, flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for _, key := range Keys {
		if def, ok := defaults[key]; ok {
			v.SetDefault(key, def)
		}
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
		if flags == nil {
			continue
		}
		if f := flags.Lookup(FlagName(key)); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
			}
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	return build(v.GetString), nil
}

// FlagName is the command line flag bound to a configuration key.
func FlagName(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", "-"))
}

func build(get func(string) string) *Config {
	return &Config{
		DataBackend: strings.ToLower(get("DATA_BACKEND")),
		DataDir:     get("DATA_DIR"),
		OutputDir:   get("OUTPUT_DIR"),

		ProjectFolderID:        get("PROJECT_FOLDER_ID"),
		OutputSpreadsheetID:    get("OUTPUT_SPREADSHEET_ID"),
		CatalogSpreadsheetID:   get("CATALOG_SPREADSHEET_ID"),
		CatalogColumn:          parseInt(get("CATALOG_COLUMN"), 9),
		ReconciliationFolderID: get("RECONCILIATION_FOLDER_ID"),

		SettingsFile:  get("SETTINGS_FILE"),
		EngineWorkers: parseInt(get("ENGINE_WORKERS"), 4),

		SQLiteDBPath: get("SQLITE_DB_PATH"),

		AMQPURL:      get("AMQP_URL"),
		AMQPExchange: get("AMQP_EXCHANGE"),
		AMQPQueue:    get("AMQP_QUEUE"),

		RedisURL:       get("REDIS_URL"),
		ReportCacheTTL: parseDuration(get("REPORT_CACHE_TTL"), 5*time.Minute),
		ExportBucket:   get("EXPORT_BUCKET"),

		Port: get("PORT"),

		LogLevel:  get("LOG_LEVEL"),
		LogFormat: get("LOG_FORMAT"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendFiles {
		if c.DataDir == "" {
			errors = append(errors, "data directory cannot be empty when using files backend")
		} else if info, err := os.Stat(c.DataDir); err != nil || !info.IsDir() {
			errors = append(errors, fmt.Sprintf("data directory does not exist: %s", c.DataDir))
		}
		if c.OutputDir == "" {
			errors = append(errors, "output directory cannot be empty when using files backend")
		}
	}

	if c.DataBackend == BackendSheets {
		if c.ProjectFolderID == "" {
			errors = append(errors, "PROJECT_FOLDER_ID is required when using sheets backend")
		}
		if c.OutputSpreadsheetID == "" {
			errors = append(errors, "OUTPUT_SPREADSHEET_ID is required when using sheets backend")
		}
		if c.CatalogSpreadsheetID == "" {
			errors = append(errors, "CATALOG_SPREADSHEET_ID is required when using sheets backend")
		}
	}

	if c.CatalogColumn < 0 {
		errors = append(errors, fmt.Sprintf("invalid catalog column %d: must not be negative", c.CatalogColumn))
	}

	if c.SettingsFile != "" {
		if _, err := os.Stat(c.SettingsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("settings file does not exist: %s", c.SettingsFile))
		}
	}

	if c.EngineWorkers < 1 {
		errors = append(errors, fmt.Sprintf("invalid engine workers %d: must be at least 1", c.EngineWorkers))
	} else if c.EngineWorkers > 64 {
		errors = append(errors, fmt.Sprintf("invalid engine workers %d: must be at most 64", c.EngineWorkers))
	}

	// Run history always lives in SQLite
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RedisURL != "" && strings.Contains(c.RedisURL, "://") {
		if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	}

	if c.ReportCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must not be negative", c.ReportCacheTTL))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if _, err := log.ParseFormat(c.LogFormat); err != nil {
		errors = append(errors, err.Error())
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Logger returns the logging configuration for a component.
func (c *Config) Logger(component string) log.Config {
	cfg := log.DefaultConfig()
	cfg.Component = component
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	if format, err := log.ParseFormat(c.LogFormat); err == nil {
		cfg.Format = format
	}
	return cfg
}

// AMQPEnabled reports whether run requests go through the broker.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		return i
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
		return d
	}
	return defaultValue
}
