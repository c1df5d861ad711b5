package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	filingsHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	filingsFormStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	filingsDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// NewFilingsCommand creates the filings command
func NewFilingsCommand(container *CLIContainer) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "filings",
		Short: "List recent SEC filings known to the platform",
		Long: `List recent SEC filings known to the TenQ platform.

Shows the filing id to pass to 'tenq summarize', the company, form type, and
whether a stored summary already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filings, err := container.SummaryService.ListFilings(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list filings: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(filings) == 0 {
				fmt.Fprintln(out, "No filings found.")
				return nil
			}

			fmt.Fprintln(out, filingsHeaderStyle.Render(fmt.Sprintf("%-8s %-28s %-6s %-12s %s", "ID", "COMPANY", "FORM", "FILED", "SUMMARY")))
			for _, f := range filings {
				summary := filingsDimStyle.Render("-")
				if f.HasSummary {
					summary = "yes"
				}
				fmt.Fprintf(out, "%-8d %-28s %-6s %-12s %s\n",
					f.ID,
					truncateName(f.CompanyName, 28),
					filingsFormStyle.Render(fmt.Sprintf("%-6s", f.FormType)),
					f.FiledAt.Format("2006-01-02"),
					summary,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of filings to list")

	return cmd
}

func truncateName(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
