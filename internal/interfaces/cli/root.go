package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/tenq-ai/tenq-cli/internal/application/ports"
	"github.com/tenq-ai/tenq-cli/internal/application/services"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// CLIContainer holds all the dependencies for CLI commands
type CLIContainer struct {
	Config         *ports.Configuration
	ConfigRepo     ports.ConfigurationRepository
	Logger         ports.LoggingGateway
	SummaryService *services.SummaryService
	MainContainer  interface{} // Will be set to *di.Container, avoiding circular import
}

// NewRootCommand creates the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "tenq",
		Short: "TenQ CLI - AI summaries for SEC filings",
		Long: `TenQ CLI streams AI-generated summaries of SEC filings (10-K, 10-Q, 8-K)
from the TenQ platform directly into your terminal.

It consumes the platform's summary generation stream, showing processing
stages and summary text as they arrive, and can list recent filings and fetch
stored summaries.`,
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyConfigurationOverrides(cmd, container); err != nil {
				return fmt.Errorf("failed to apply configuration overrides: %w", err)
			}
			return nil
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("api-url", "", "API endpoint URL (overrides configuration)")
	rootCmd.PersistentFlags().String("api-key", "", "API key for the TenQ platform")

	rootCmd.AddCommand(NewSummarizeCommand(container))
	rootCmd.AddCommand(NewFilingsCommand(container))
	rootCmd.AddCommand(NewConfigCommand(container))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tenq version %s\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
				Version, BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// applyConfigurationOverrides applies configuration overrides from command line flags
func applyConfigurationOverrides(cmd *cobra.Command, container *CLIContainer) error {
	mainContainer, ok := container.MainContainer.(interface {
		ApplyAPIURLOverride(string) error
		ApplyAPIKeyOverride(string) error
		ApplyDebugOverride() error
	})
	if !ok {
		// Silently continue if container doesn't support overrides
		return nil
	}

	if cmd.Flags().Changed("api-url") {
		apiURL, _ := cmd.Flags().GetString("api-url")
		if err := mainContainer.ApplyAPIURLOverride(apiURL); err != nil {
			return fmt.Errorf("failed to override API URL: %w", err)
		}
	}

	if cmd.Flags().Changed("api-key") {
		apiKey, _ := cmd.Flags().GetString("api-key")
		if err := mainContainer.ApplyAPIKeyOverride(apiKey); err != nil {
			return fmt.Errorf("failed to override API key: %w", err)
		}
	}

	if debugFlag, _ := cmd.Flags().GetBool("debug"); debugFlag {
		if err := mainContainer.ApplyDebugOverride(); err != nil {
			return fmt.Errorf("failed to enable debug mode: %w", err)
		}
	}

	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context, container *CLIContainer) {
	rootCmd := NewRootCommand(container)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
