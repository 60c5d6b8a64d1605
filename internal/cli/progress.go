package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/raphaelgruber/tunechat/internal/service"
	"github.com/spf13/cobra"
)

var watchInterval time.Duration

var finetuneWatchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a fine-tuning job until it finishes",
	Long: `Show a live status display for a fine-tuning job. Press q or Ctrl+C to
stop watching; the job keeps running on the service.

Examples:
  tunechat finetune watch ftjob-abc123
  tunechat finetune watch ftjob-abc123 --interval 10s`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	finetuneWatchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "time between status checks (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	interval := cfg.PollInterval
	if watchInterval > 0 {
		interval = watchInterval
	}
	return runJobProgress(api, args[0], interval)
}

// jobGetter fetches the current state of a tuning job.
type jobGetter interface {
	GetJob(ctx context.Context, id string) (*models.TuningJob, error)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *models.TuningJob
	err error
}

// progressModel is the bubbletea model for job progress.
type progressModel struct {
	api      jobGetter
	jobID    string
	job      *models.TuningJob
	interval time.Duration
	started  time.Time
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

// newProgressModel creates a new progress model.
func newProgressModel(api jobGetter, jobID string, interval time.Duration) progressModel {
	if interval <= 0 {
		interval = service.DefaultPollInterval
	}

	// Create progress bar with color blend
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		api:      api,
		jobID:    jobID,
		interval: interval,
		started:  time.Now(),
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init fetches the job immediately.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.fetchJob(),
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

		switch m.job.Status {
		case models.JobStatusSucceeded:
			m.done = true
			return m, tea.Quit
		case models.JobStatusFailed, models.JobStatusCancelled:
			m.done = true
			m.err = fmt.Errorf("%s", m.job.FailureReason())
			return m, tea.Quit
		}

		// Continue polling for pending and running jobs
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

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(statusFraction(m.job.Status))
	elapsed := time.Since(m.started).Round(time.Second)

	hint := m.theme.hintStyle().Render("Press q to stop watching; the job keeps running")

	return fmt.Sprintf("%s %s %s %s\n%s\n", status, bar, m.jobID, elapsed, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues on the service.\nUse 'tunechat finetune watch %s' to follow it again.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	output := m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	if m.job != nil {
		output += fmt.Sprintf("  Model:  %s\n", m.job.ResultModel())
		if m.job.TrainedTokens > 0 {
			output += fmt.Sprintf("  Tokens: %d\n", m.job.TrainedTokens)
		}
	}
	return output
}

// statusFraction maps a job status onto the progress bar. The service
// reports no percentage, only the lifecycle stage.
func statusFraction(s models.JobStatus) float64 {
	switch s {
	case models.JobStatusPending:
		return 0.15
	case models.JobStatusRunning:
		return 0.5
	case models.JobStatusSucceeded, models.JobStatusFailed, models.JobStatusCancelled:
		return 1
	}
	return 0
}

// fetchJob fetches the current job status from the service.
// Runs in a separate goroutine (command) to avoid blocking Update().
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		job, err := m.api.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func (m progressModel) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// runJobProgress runs the interactive progress UI for a job.
// Returns nil on success or when the user stops watching, error on job failure.
func runJobProgress(api jobGetter, jobID string, interval time.Duration) error {
	model := newProgressModel(api, jobID, interval)
	p := tea.NewProgram(model)

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
