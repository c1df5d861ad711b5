package ports

import (
	"context"
	"time"

	"github.com/tenq-ai/tenq-cli/internal/core/domain"
)

// SummaryGateway defines the non-streaming operations against the TenQ API.
type SummaryGateway interface {
	// ListFilings returns the most recent filings known to the backend.
	ListFilings(ctx context.Context, limit int) ([]domain.Filing, error)

	// GetSummary fetches the stored summary for a filing, if one exists.
	GetSummary(ctx context.Context, filingID int64) (*domain.Summary, error)

	// TestConnection checks reachability and, when a key is configured,
	// authentication against the API.
	TestConnection(ctx context.Context) error

	// GetConnectionStatus returns the result of the most recent request.
	GetConnectionStatus() ConnectionStatus
}

// CredentialProvider supplies the Authorization header value for credentialed
// requests. An empty value with a nil error means the caller is anonymous.
type CredentialProvider interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

// ConnectionStatus represents the status of the API connection
type ConnectionStatus struct {
	IsConnected   bool          `json:"is_connected"`
	LastConnected time.Time     `json:"last_connected"`
	LastError     string        `json:"last_error,omitempty"`
	Latency       time.Duration `json:"latency"`
	RetryCount    int           `json:"retry_count"`
}

// LoggingGateway defines the interface for logging operations
type LoggingGateway interface {
	// Log logs a message with the specified level
	Log(level LogLevel, message string, fields map[string]interface{})

	// LogError logs an error
	LogError(err error, message string, fields map[string]interface{})

	// SetLogLevel sets the logging level
	SetLogLevel(level LogLevel)

	// GetLogLevel returns the current logging level
	GetLogLevel() LogLevel
}

// LogLevel defines the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
