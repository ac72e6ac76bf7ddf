package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/pricecat/internal/models"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *models.IngestionJob
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	jobs     jobReader
	jobID    string
	job      *models.IngestionJob
	interval time.Duration
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(r jobReader, job *models.IngestionJob, interval time.Duration) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		jobs:     r,
		jobID:    job.ID,
		job:      job,
		interval: interval,
		progress: prog,
		theme:    defaultTheme,
		done:     job.Status.IsTerminal(),
		err:      jobErr(job),
	}
}

// Init returns the initial command (start polling).
func (m progressModel) Init() tea.Cmd {
	if m.done {
		return tea.Quit
	}
	return tea.Batch(
		m.tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job
		if m.job.Status.IsTerminal() {
			m.done = true
			m.err = jobErr(m.job)
			return m, tea.Quit
		}
		return m, m.tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}
	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(float64(m.job.Progress) / 100)
	counts := fmt.Sprintf("%3d%%  %d items", m.job.Progress, m.job.TotalItems)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", status, bar, counts)
	if meta := m.job.CurrentMeta; meta != nil {
		if meta.TotalPages > 0 {
			fmt.Fprintf(&b, "  page %d/%d", meta.PageNumber, meta.TotalPages)
		}
		if meta.CurrentChapter != "" {
			fmt.Fprintf(&b, "  %s", meta.CurrentChapter)
		}
		b.WriteString("\n")
	}
	if n := len(m.job.Logs); n > 0 {
		fmt.Fprintf(&b, "  %s\n", m.job.Logs[n-1])
	}
	b.WriteString(m.theme.hintStyle().Render("Press Ctrl+C to stop watching") + "\n")
	return b.String()
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues.\nUse 'pricecat jobs show %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	var output string
	output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	if m.job != nil {
		output += fmt.Sprintf("  Items:    %d\n", m.job.TotalItems)
		output += fmt.Sprintf("  Duration: %s\n", m.job.UpdatedAt.Sub(m.job.CreatedAt).Round(time.Second))
	}
	return output
}

// fetchJob polls the job from a command goroutine so Update never blocks.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.jobs.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

func (m progressModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func jobErr(job *models.IngestionJob) error {
	if job == nil || job.Status != models.JobStatusFailed {
		return nil
	}
	if job.Error != nil {
		return fmt.Errorf("%s", *job.Error)
	}
	return fmt.Errorf("job failed with unknown error")
}

// RunJobProgress runs the interactive progress UI for a job.
// Returns nil on completion or Ctrl+C, the job error on failure.
func RunJobProgress(r jobReader, job *models.IngestionJob, interval time.Duration) error {
	if interval <= 0 {
		interval = pollInterval
	}
	p := tea.NewProgram(newProgressModel(r, job, interval))

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}
