package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tenq-ai/tenq-cli/internal/application/services"
	"github.com/tenq-ai/tenq-cli/internal/core/domain/streaming"
	streamp "github.com/tenq-ai/tenq-cli/internal/core/ports/streaming"
)

// Messages sent into the Bubble Tea program by the stream handler.
type (
	streamChunkMsg    string
	streamProgressMsg struct {
		stage     string
		message   string
		telemetry *streaming.Telemetry
	}
	streamCompleteMsg int64
	streamErrorMsg    string
	streamDoneMsg     struct {
		result *services.StreamResult
		err    error
	}
	viewTickMsg time.Time
)

var (
	viewTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	viewStageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	viewPercentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	viewErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	viewDimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	viewDoneStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// runSummaryView streams a summary while rendering an interactive terminal
// view. It returns the aggregate stream result once the view exits.
func runSummaryView(ctx context.Context, container *CLIContainer, filingID int64, req services.StreamRequest) (*services.StreamResult, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(newSummaryViewModel(filingID, cancel))

	resultCh := make(chan streamDoneMsg, 1)
	go func() {
		handler := streamp.HandlerFuncs{
			Chunk: func(text string) {
				program.Send(streamChunkMsg(text))
			},
			Progress: func(stage, message string, telemetry *streaming.Telemetry) {
				program.Send(streamProgressMsg{stage: stage, message: message, telemetry: telemetry})
			},
			Complete: func(summaryID int64) {
				program.Send(streamCompleteMsg(summaryID))
			},
			Error: func(message string) {
				program.Send(streamErrorMsg(message))
			},
		}

		result, err := container.SummaryService.StreamSummary(streamCtx, filingID, req, handler)
		done := streamDoneMsg{result: result, err: err}
		resultCh <- done
		program.Send(done)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		done := <-resultCh
		return done.result, fmt.Errorf("summary view failed: %w", err)
	}

	done := <-resultCh
	return done.result, done.err
}

// summaryViewModel holds the state for the Bubble Tea summary view
type summaryViewModel struct {
	filingID int64
	cancel   context.CancelFunc
	started  time.Time

	stage        string
	stageMessage string
	percent      float64 // -1 when unknown
	content      string
	errs         []string
	summaryID    int64

	done     bool
	canceled bool
	frame    int
	width    int
}

func newSummaryViewModel(filingID int64, cancel context.CancelFunc) summaryViewModel {
	return summaryViewModel{
		filingID: filingID,
		cancel:   cancel,
		started:  time.Now(),
		stage:    "connecting",
		percent:  -1,
		width:    80,
	}
}

func (m summaryViewModel) Init() tea.Cmd {
	return viewTick()
}

func viewTick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg {
		return viewTickMsg(t)
	})
}

func (m summaryViewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			// Abort the stream; the done message follows and quits the view.
			m.canceled = true
			m.cancel()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case streamChunkMsg:
		m.content += string(msg)
		return m, nil

	case streamProgressMsg:
		m.stage = msg.stage
		m.stageMessage = msg.message
		if msg.telemetry != nil && msg.telemetry.Percent != nil {
			m.percent = *msg.telemetry.Percent
		}
		return m, nil

	case streamCompleteMsg:
		m.summaryID = int64(msg)
		return m, nil

	case streamErrorMsg:
		m.errs = append(m.errs, string(msg))
		return m, nil

	case streamDoneMsg:
		m.done = true
		return m, tea.Quit

	case viewTickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, viewTick()
	}

	return m, nil
}

func (m summaryViewModel) View() string {
	var b strings.Builder

	b.WriteString(viewTitleStyle.Render(fmt.Sprintf("TenQ summary for filing %d", m.filingID)))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	if m.content != "" {
		b.WriteString(m.content)
		if !strings.HasSuffix(m.content, "\n") {
			b.WriteString("\n")
		}
	}

	for _, e := range m.errs {
		b.WriteString(viewErrorStyle.Render("✗ "+e) + "\n")
	}

	if m.done {
		b.WriteString(m.finishLine())
	} else {
		b.WriteString("\n" + viewDimStyle.Render("q / ctrl+c to abort"))
	}
	b.WriteString("\n")

	return b.String()
}

func (m summaryViewModel) statusLine() string {
	elapsed := time.Since(m.started).Round(time.Second)

	if m.done {
		return viewDimStyle.Render(fmt.Sprintf("finished in %s", elapsed))
	}

	line := fmt.Sprintf("%s %s", spinnerFrames[m.frame%len(spinnerFrames)], viewStageStyle.Render(m.stage))
	if m.stageMessage != "" {
		line += " " + viewDimStyle.Render(m.stageMessage)
	}
	if m.percent >= 0 {
		line += " " + viewPercentStyle.Render(fmt.Sprintf("%.0f%%", m.percent))
	}
	line += " " + viewDimStyle.Render(elapsed.String())
	return line
}

func (m summaryViewModel) finishLine() string {
	switch {
	case m.summaryID != 0:
		return viewDoneStyle.Render(fmt.Sprintf("✓ Summary %d complete", m.summaryID))
	case m.canceled:
		return viewErrorStyle.Render("✗ Aborted")
	default:
		return viewErrorStyle.Render("✗ Stream ended without a summary")
	}
}
