package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
)

const (
	defaultAPIEndpoint         = "https://api.tenq.ai"
	defaultStreamTimeoutSecs   = 120
	defaultLogLevel            = "info"
	defaultConfigFileName      = "config.json"
	defaultConfigDirectoryName = ".tenq"
)

// ConfigSource defines the interface for configuration sources
type ConfigSource interface {
	Load() (*ports.Configuration, error)
	Priority() int
	Name() string
}

// CompositeConfigRepository implements the ConfigurationRepository interface
// by merging sources in priority order (higher priority wins per field).
type CompositeConfigRepository struct {
	sources    []ConfigSource
	configPath string
}

// NewCompositeConfigRepository creates a new configuration repository
func NewCompositeConfigRepository() *CompositeConfigRepository {
	configPath := os.Getenv("TENQ_CONFIG_FILE")
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	repo := &CompositeConfigRepository{
		configPath: configPath,
	}
	repo.AddSource(NewEnvironmentConfigSource())
	repo.AddSource(NewFileConfigSource(configPath))
	return repo
}

// AddSource adds a configuration source
func (r *CompositeConfigRepository) AddSource(source ConfigSource) {
	r.sources = append(r.sources, source)
	sort.SliceStable(r.sources, func(i, j int) bool {
		return r.sources[i].Priority() > r.sources[j].Priority()
	})
}

// Load retrieves the current configuration, merging all sources over the
// defaults.
func (r *CompositeConfigRepository) Load() (*ports.Configuration, error) {
	config := r.LoadDefault()

	// Apply lowest priority first so higher priority sources win.
	for i := len(r.sources) - 1; i >= 0; i-- {
		source := r.sources[i]
		loaded, err := source.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", source.Name(), err)
		}
		if loaded != nil {
			mergeConfigurations(config, loaded)
		}
	}

	if err := r.Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Save persists the configuration to the config file.
func (r *CompositeConfigRepository) Save(config *ports.Configuration) error {
	if err := r.Validate(config); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	if err := os.WriteFile(r.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}

// LoadDefault returns the default configuration
func (r *CompositeConfigRepository) LoadDefault() *ports.Configuration {
	return &ports.Configuration{
		APIEndpoint:          defaultAPIEndpoint,
		StreamTimeoutSeconds: defaultStreamTimeoutSecs,
		LogLevel:             defaultLogLevel,
	}
}

// Validate validates the configuration
func (r *CompositeConfigRepository) Validate(config *ports.Configuration) error {
	if config.APIEndpoint == "" {
		return fmt.Errorf("api_endpoint cannot be empty")
	}
	if config.StreamTimeoutSeconds <= 0 {
		return fmt.Errorf("stream_timeout_seconds must be positive, got %d", config.StreamTimeoutSeconds)
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", config.LogLevel)
	}
	return nil
}

// GetConfigPath returns the path to the configuration file
func (r *CompositeConfigRepository) GetConfigPath() string {
	return r.configPath
}

// mergeConfigurations overlays non-zero fields of source onto target.
func mergeConfigurations(target, source *ports.Configuration) {
	if source.APIEndpoint != "" {
		target.APIEndpoint = source.APIEndpoint
	}
	if source.APIKey != "" {
		target.APIKey = source.APIKey
	}
	if source.StreamTimeoutSeconds != 0 {
		target.StreamTimeoutSeconds = source.StreamTimeoutSeconds
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.Debug {
		target.Debug = true
	}
}

// FileConfigSource loads configuration from a JSON file.
type FileConfigSource struct {
	filePath string
}

// NewFileConfigSource creates a file-backed configuration source.
func NewFileConfigSource(filePath string) *FileConfigSource {
	return &FileConfigSource{filePath: filePath}
}

func (f *FileConfigSource) Load() (*ports.Configuration, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var config ports.Configuration
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", f.filePath, err)
	}
	return &config, nil
}

func (f *FileConfigSource) Priority() int { return 10 }

func (f *FileConfigSource) Name() string { return "file" }

// EnvironmentConfigSource loads configuration from TENQ_* environment
// variables.
type EnvironmentConfigSource struct{}

// NewEnvironmentConfigSource creates an environment-backed source.
func NewEnvironmentConfigSource() *EnvironmentConfigSource {
	return &EnvironmentConfigSource{}
}

func (e *EnvironmentConfigSource) Load() (*ports.Configuration, error) {
	config := &ports.Configuration{
		APIEndpoint: os.Getenv("TENQ_API_URL"),
		APIKey:      os.Getenv("TENQ_API_KEY"),
		LogLevel:    os.Getenv("TENQ_LOG_LEVEL"),
	}

	if v := os.Getenv("TENQ_STREAM_TIMEOUT"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TENQ_STREAM_TIMEOUT %q: %w", v, err)
		}
		config.StreamTimeoutSeconds = seconds
	}

	if v := os.Getenv("TENQ_DEBUG"); v == "true" || v == "1" {
		config.Debug = true
	}

	return config, nil
}

func (e *EnvironmentConfigSource) Priority() int { return 20 }

func (e *EnvironmentConfigSource) Name() string { return "environment" }

// getDefaultConfigPath returns ~/.tenq/config.json, falling back to the
// working directory when the home directory is unknown.
func getDefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigFileName
	}
	return filepath.Join(home, defaultConfigDirectoryName, defaultConfigFileName)
}
