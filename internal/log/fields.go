package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldRunID          = "run_id"
	FieldProject        = "project"
	FieldFundingSource  = "funding_source"
	FieldAccount        = "account"
	FieldQuarter        = "quarter"
	FieldSheet          = "sheet"
	FieldSpreadsheetRef = "spreadsheet_ref"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentEngine   = "engine"
	ComponentVariance = "variance"
	ComponentOverview = "overview"
	ComponentAccounts = "accounts"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentCache    = "cache"
	ComponentExport   = "export"
	ComponentBackend  = "backend"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpAllocate = "allocate"
	OpVariance = "variance"
	OpOverview = "overview"
	OpAccounts = "accounts"
	OpRead     = "read"
	OpWrite    = "write"
	OpList     = "list"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRun adds the run identifier and project.
func (f LogFields) WithRun(runID, project string) LogFields {
	f[FieldRunID] = runID
	if project != "" {
		f[FieldProject] = project
	}
	return f
}

// WithSource adds the funding source.
func (f LogFields) WithSource(source string) LogFields {
	f[FieldFundingSource] = source
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
