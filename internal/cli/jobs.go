package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/tunechat/internal/client"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/spf13/cobra"
)

var jobsLimit int

var finetuneJobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect fine-tuning jobs",
	Long: `List recent fine-tuning jobs or inspect a specific job by ID.

Examples:
  tunechat finetune jobs                 # List recent jobs
  tunechat finetune jobs ftjob-abc123    # Show details for one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	finetuneJobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 10, "number of jobs to list")
}

func runJobs(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// If job ID provided, show that specific job
	if len(args) == 1 {
		return showJob(ctx, cmd.OutOrStdout(), api, args[0])
	}

	// List recent jobs
	return listJobs(ctx, cmd.OutOrStdout(), api)
}

func listJobs(ctx context.Context, out io.Writer, api *client.Client) error {
	jobs, err := api.ListJobs(ctx, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	writeJobTable(out, jobs)
	return nil
}

func writeJobTable(out io.Writer, jobs []models.TuningJob) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return
	}

	fmt.Fprintf(out, "%-32s %-10s %-16s %-20s %s\n", "ID", "STATUS", "BASE MODEL", "CREATED", "MODEL")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		created := ""
		if !job.CreatedAt.IsZero() {
			created = job.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%-32s %-10s %-16s %-20s %s\n", job.ID, job.Status, job.BaseModel, created, job.ResultModel())
	}
}

func showJob(ctx context.Context, out io.Writer, api *client.Client, id string) error {
	job, err := api.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	writeJobDetails(out, job)
	return nil
}

func writeJobDetails(out io.Writer, job *models.TuningJob) {
	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Status: %s", job.Status)
	if job.RawStatus != "" && job.RawStatus != string(job.Status) {
		fmt.Fprintf(out, " (%s)", job.RawStatus)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Base model: %s\n", job.BaseModel)
	fmt.Fprintf(out, "  Training file: %s\n", job.TrainingFile)
	if !job.CreatedAt.IsZero() {
		fmt.Fprintf(out, "  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	}
	if job.FinishedAt != nil {
		fmt.Fprintf(out, "  Finished: %s\n", job.FinishedAt.Format(time.RFC3339))
		if !job.CreatedAt.IsZero() {
			fmt.Fprintf(out, "  Duration: %s\n", job.FinishedAt.Sub(job.CreatedAt).Round(time.Second))
		}
	}
	if job.TrainedTokens > 0 {
		fmt.Fprintf(out, "  Trained tokens: %d\n", job.TrainedTokens)
	}
	if model := job.ResultModel(); model != "" {
		fmt.Fprintf(out, "  Model: %s\n", model)
	}
	if msg := job.ErrorMessage(); msg != "" {
		fmt.Fprintf(out, "  Error: %s\n", msg)
	}
}
