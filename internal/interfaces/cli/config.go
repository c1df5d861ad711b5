package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewConfigCommand creates the config command with its subcommands
func NewConfigCommand(container *CLIContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and modify CLI configuration",
		Long: `Show and modify TenQ CLI configuration.

Configuration is merged from environment variables (TENQ_API_URL,
TENQ_API_KEY, TENQ_STREAM_TIMEOUT, TENQ_LOG_LEVEL, TENQ_DEBUG) over the
config file, over built-in defaults.`,
	}

	cmd.AddCommand(newConfigShowCommand(container))
	cmd.AddCommand(newConfigSetCommand(container))
	cmd.AddCommand(newConfigValidateCommand(container))

	return cmd
}

func newConfigShowCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg := container.Config

			fmt.Fprintf(out, "config file:            %s\n", container.ConfigRepo.GetConfigPath())
			fmt.Fprintf(out, "api_endpoint:           %s\n", cfg.APIEndpoint)
			fmt.Fprintf(out, "api_key:                %s\n", redactKey(cfg.APIKey))
			fmt.Fprintf(out, "stream_timeout_seconds: %d\n", cfg.StreamTimeoutSeconds)
			fmt.Fprintf(out, "log_level:              %s\n", cfg.LogLevel)
			fmt.Fprintf(out, "debug:                  %t\n", cfg.Debug)
			return nil
		},
	}
}

func newConfigSetCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value in the config file",
		Long: `Set a configuration value and persist it to the config file.

Supported keys: api_endpoint, api_key, stream_timeout_seconds, log_level.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			cfg, err := container.ConfigRepo.Load()
			if err != nil {
				cfg = container.ConfigRepo.LoadDefault()
			}

			switch key {
			case "api_endpoint":
				cfg.APIEndpoint = value
			case "api_key":
				cfg.APIKey = value
			case "stream_timeout_seconds":
				seconds, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
				}
				cfg.StreamTimeoutSeconds = seconds
			case "log_level":
				cfg.LogLevel = value
			default:
				return fmt.Errorf("unknown configuration key %q", key)
			}

			if err := container.ConfigRepo.Save(cfg); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", key, container.ConfigRepo.GetConfigPath())
			return nil
		},
	}
}

func newConfigValidateCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and test the API connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if err := container.ConfigRepo.Validate(container.Config); err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintln(out, "Configuration OK")

			if err := container.SummaryService.TestConnection(cmd.Context()); err != nil {
				return fmt.Errorf("API connection failed: %w", err)
			}
			fmt.Fprintf(out, "API reachable at %s\n", container.Config.APIEndpoint)
			return nil
		},
	}
}

func redactKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
