package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tenq-ai/tenq-cli/internal/application/services"
	"github.com/tenq-ai/tenq-cli/internal/core/domain/streaming"
	streamp "github.com/tenq-ai/tenq-cli/internal/core/ports/streaming"
)

// SummarizeFlags holds command-line flags for the summarize command
type SummarizeFlags struct {
	Force   bool
	Plain   bool
	Timings bool
	Timeout time.Duration
}

// NewSummarizeCommand creates the summarize command
func NewSummarizeCommand(container *CLIContainer) *cobra.Command {
	flags := &SummarizeFlags{}

	cmd := &cobra.Command{
		Use:   "summarize <filing-id>",
		Short: "Stream an AI-generated summary for a filing",
		Long: `Stream an AI-generated summary for a filing from the TenQ platform.

Summary text, processing stages, and errors are shown as they arrive on the
generation stream. By default an interactive view is rendered; use --plain
for line-oriented output suitable for pipes.

Examples:
  tenq summarize 1042                 # Stream the summary for filing 1042
  tenq summarize 1042 --force         # Bypass the server-side cache
  tenq summarize 1042 --plain         # Plain output, chunks to stdout
  tenq summarize 1042 --timings       # Print the stage timeline afterwards`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filingID, err := parseFilingID(args[0])
			if err != nil {
				return err
			}
			return runSummarize(cmd, container, filingID, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.Force, "force", false, "Bypass the server-side cache and force regeneration")
	cmd.Flags().BoolVar(&flags.Plain, "plain", false, "Line-oriented output instead of the interactive view")
	cmd.Flags().BoolVar(&flags.Timings, "timings", false, "Print the stage timeline after the stream ends")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "Stream inactivity timeout (default from configuration)")

	return cmd
}

// parseFilingID validates the positional filing id argument.
func parseFilingID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid filing id %q: must be a positive integer", arg)
	}
	return id, nil
}

func runSummarize(cmd *cobra.Command, container *CLIContainer, filingID int64, flags *SummarizeFlags) error {
	req := services.StreamRequest{
		Force:   flags.Force,
		Timeout: flags.Timeout,
	}

	var result *services.StreamResult
	var err error
	if flags.Plain {
		result, err = runPlainSummarize(cmd, container, filingID, req)
	} else {
		result, err = runSummaryView(cmd.Context(), container, filingID, req)
	}

	if result != nil && flags.Timings {
		fmt.Fprint(cmd.OutOrStdout(), renderTimeline(result.Timeline))
	}

	if err != nil {
		return err
	}
	if result.SummaryID == 0 && len(result.Errors) > 0 {
		return fmt.Errorf("summary generation failed: %s", result.Errors[0])
	}
	return nil
}

// runPlainSummarize streams with line-oriented output: summary text to
// stdout, progress and errors to stderr.
func runPlainSummarize(cmd *cobra.Command, container *CLIContainer, filingID int64, req services.StreamRequest) (*services.StreamResult, error) {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	handler := streamp.HandlerFuncs{
		Chunk: func(text string) {
			fmt.Fprint(out, text)
		},
		Progress: func(stage, message string, telemetry *streaming.Telemetry) {
			if message != "" {
				fmt.Fprintf(errOut, "[%s] %s\n", stage, message)
			} else {
				fmt.Fprintf(errOut, "[%s]\n", stage)
			}
		},
		Complete: func(summaryID int64) {
			fmt.Fprintln(out)
			fmt.Fprintf(errOut, "Summary %d complete\n", summaryID)
		},
		Error: func(message string) {
			fmt.Fprintf(errOut, "Error: %s\n", message)
		},
	}

	return container.SummaryService.StreamSummary(cmd.Context(), filingID, req, handler)
}

var (
	timelineHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	timelineStageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Width(14)
	timelineDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderTimeline formats the stage timeline collected during a stream.
func renderTimeline(records []streaming.StageTimingRecord) string {
	if len(records) == 0 {
		return ""
	}

	s := "\n" + timelineHeaderStyle.Render("Stage timeline") + "\n"
	for _, rec := range records {
		line := fmt.Sprintf("  %8s  %s %s",
			formatOffset(rec.Offset),
			timelineStageStyle.Render(rec.Stage),
			timelineDimStyle.Render(fmt.Sprintf("(+%s) %s", formatOffset(rec.Delta), rec.Message)),
		)
		s += line + "\n"
	}
	return s
}

func formatOffset(d time.Duration) string {
	return d.Round(10 * time.Millisecond).String()
}
