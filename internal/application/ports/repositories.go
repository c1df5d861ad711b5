package ports

import "time"

// ConfigurationRepository defines the interface for configuration persistence
type ConfigurationRepository interface {
	// Load retrieves the current configuration
	Load() (*Configuration, error)

	// Save persists the configuration
	Save(config *Configuration) error

	// LoadDefault returns the default configuration
	LoadDefault() *Configuration

	// Validate validates the configuration
	Validate(config *Configuration) error

	// GetConfigPath returns the path to the configuration file
	GetConfigPath() string
}

// Configuration represents the application configuration
type Configuration struct {
	APIEndpoint          string `json:"api_endpoint"`
	APIKey               string `json:"api_key,omitempty"`
	StreamTimeoutSeconds int    `json:"stream_timeout_seconds"`
	LogLevel             string `json:"log_level"`
	Debug                bool   `json:"debug"`
}

// StreamTimeout returns the inactivity window for summary streams.
func (c *Configuration) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutSeconds) * time.Second
}

// HasAPIKey reports whether credentialed requests are possible.
func (c *Configuration) HasAPIKey() bool {
	return c.APIKey != ""
}
