package di

import (
	"fmt"
	"os"

	"github.com/tenq-ai/tenq-cli/internal/application/ports"
	"github.com/tenq-ai/tenq-cli/internal/application/services"
	"github.com/tenq-ai/tenq-cli/internal/infrastructure/api"
	"github.com/tenq-ai/tenq-cli/internal/infrastructure/auth"
	"github.com/tenq-ai/tenq-cli/internal/infrastructure/config"
	"github.com/tenq-ai/tenq-cli/internal/infrastructure/logging"
	"github.com/tenq-ai/tenq-cli/internal/interfaces/cli"
)

// Container holds all application dependencies
type Container struct {
	// Configuration
	Config     *ports.Configuration
	ConfigRepo *config.CompositeConfigRepository

	// Infrastructure
	Logger       *logging.ConsoleLogger
	AuthManager  *auth.Manager
	APIGateway   *api.TenQAPIGateway
	StreamClient *api.StreamClient

	// Application
	SummaryService *services.SummaryService

	// CLI
	CLIContainer *cli.CLIContainer
}

// NewContainer creates and configures the dependency injection container
func NewContainer() (*Container, error) {
	c := &Container{
		ConfigRepo: config.NewCompositeConfigRepository(),
	}

	cfg, err := c.ConfigRepo.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load configuration, using defaults: %v\n", err)
		cfg = c.ConfigRepo.LoadDefault()
	}
	c.Config = cfg

	level := ports.LogLevel(cfg.LogLevel)
	if cfg.Debug {
		level = ports.LogLevelDebug
	}
	c.Logger = logging.NewConsoleLogger(os.Stderr, level)

	c.buildServices()

	c.CLIContainer = &cli.CLIContainer{
		Config:         c.Config,
		ConfigRepo:     c.ConfigRepo,
		Logger:         c.Logger,
		SummaryService: c.SummaryService,
		MainContainer:  c,
	}

	return c, nil
}

// buildServices constructs every component derived from the configuration.
// Called again after a configuration override.
func (c *Container) buildServices() {
	c.AuthManager = auth.NewManager(c.Config.APIKey, auth.NewHTTPTokenProvider(c.Config.APIEndpoint))
	c.APIGateway = api.NewTenQAPIGateway(c.Config.APIEndpoint, c.AuthManager, c.Logger)
	c.StreamClient = api.NewStreamClient(c.Config.APIEndpoint, c.AuthManager, c.Logger)
	c.SummaryService = services.NewSummaryService(c.StreamClient, c.APIGateway, c.Logger, c.Config.StreamTimeout())

	if c.CLIContainer != nil {
		c.CLIContainer.Config = c.Config
		c.CLIContainer.SummaryService = c.SummaryService
	}
}

// ApplyAPIURLOverride replaces the API endpoint at runtime.
func (c *Container) ApplyAPIURLOverride(url string) error {
	if url == "" {
		return fmt.Errorf("API URL cannot be empty")
	}
	c.Config.APIEndpoint = url
	c.buildServices()
	return nil
}

// ApplyAPIKeyOverride replaces the API key at runtime.
func (c *Container) ApplyAPIKeyOverride(key string) error {
	c.Config.APIKey = key
	c.buildServices()
	return nil
}

// ApplyDebugOverride switches logging to debug level.
func (c *Container) ApplyDebugOverride() error {
	c.Config.Debug = true
	c.Logger.SetLogLevel(ports.LogLevelDebug)
	return nil
}

// GetCLIContainer returns the CLI dependencies.
func (c *Container) GetCLIContainer() *cli.CLIContainer {
	return c.CLIContainer
}
