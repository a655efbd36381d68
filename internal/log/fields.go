package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldMode          = "mode"
	FieldUserID        = "user_id"
	FieldConsentHandle = "consent_handle"
	FieldConsentStatus = "consent_status"
	FieldMock          = "mock"
	FieldAccountID     = "account_id"
	FieldCount         = "count"
	FieldEndpoint      = "endpoint"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAA        = "aa"
	ComponentConsent   = "consent"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
	ComponentExport    = "export"
	ComponentCLI       = "cli"
	ComponentRateLimit = "rate_limit"
	ComponentWorker    = "worker"
)

// Operations defines standard operation names
const (
	OpRequestConsent    = "request_consent"
	OpFetchAccounts     = "fetch_accounts"
	OpFetchTransactions = "fetch_transactions"
	OpExport            = "export"
	OpRecord            = "record"
	OpPublish           = "publish"
	OpConsume           = "consume"
	OpStartup           = "startup"
	OpShutdown          = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithConsent adds the consent fields. The handle is an authorization token
// and is only logged truncated.
func (f LogFields) WithConsent(handle, status string, mock bool) LogFields {
	f[FieldConsentHandle] = Truncate(handle, 24)
	f[FieldConsentStatus] = status
	f[FieldMock] = mock
	return f
}

func (f LogFields) WithAccount(accountID string) LogFields {
	f[FieldAccountID] = accountID
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
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
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

// Truncate shortens s to n bytes and marks the cut with "...".
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
