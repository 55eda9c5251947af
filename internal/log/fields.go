package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientID      = "client_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldTab           = "tab"
	FieldSite          = "site"
	FieldSupervisor    = "supervisor"
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	FieldCacheHit      = "cache_hit"
	FieldRows          = "rows"
	FieldFileName      = "file_name"
	FieldFormat        = "format"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentReports     = "reports"
	ComponentFilterSync  = "filtersync"
	ComponentCoordinator = "coordinator"
	ComponentExport      = "export"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentCache       = "cache"
	ComponentBackend     = "backend"
)

// Operations defines standard operation names
const (
	OpLoad     = "load"
	OpCommit   = "commit"
	OpFetch    = "fetch"
	OpPrefetch = "prefetch"
	OpExport   = "export"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeEmptyDataset  = "empty_dataset_error"
	ErrorTypeInternal      = "internal_error"
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

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithFilter adds the report filter fields
func (f LogFields) WithFilter(tab, site, supervisor, startDate, endDate string) LogFields {
	f[FieldTab] = tab
	f[FieldSite] = site
	f[FieldSupervisor] = supervisor
	f[FieldStartDate] = startDate
	f[FieldEndDate] = endDate
	return f
}

// WithExport adds export result fields
func (f LogFields) WithExport(fileName, format string, rows int) LogFields {
	f[FieldFileName] = fileName
	f[FieldFormat] = format
	f[FieldRows] = rows
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
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
