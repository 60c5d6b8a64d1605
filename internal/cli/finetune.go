package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/tunechat/internal/dataset"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/raphaelgruber/tunechat/internal/service"
	"github.com/spf13/cobra"
)

var (
	ftBaseModel    string
	ftSuffix       string
	ftPollInterval time.Duration
	ftTimeout      time.Duration
	ftTestPrompt   string
)

var finetuneCmd = &cobra.Command{
	Use:     "finetune",
	Aliases: []string{"ft"},
	Short:   "Validate training data and run fine-tuning jobs",
}

var finetuneValidateCmd = &cobra.Command{
	Use:   "validate [training-file]",
	Short: "Check a JSONL training file without uploading it",
	Long: `Check that every line of a JSONL training file is a JSON object with a
non-empty "messages" list whose entries carry "role" and "content".
Reports the first malformed line.

Examples:
  tunechat finetune validate
  tunechat finetune validate data/cannabis.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFinetuneValidate,
}

var finetuneRunCmd = &cobra.Command{
	Use:   "run [training-file]",
	Short: "Validate, upload, submit and wait for a fine-tuning job",
	Long: `Run the whole fine-tuning workflow: validate the training file, upload
it, create a tuning job on the base model and poll until the job finishes.
Any failing step stops the run; a re-run starts from validation.

Examples:
  tunechat finetune run
  tunechat finetune run data/cannabis.jsonl --base-model gpt-3.5-turbo
  tunechat finetune run --timeout 2h --test-prompt "What is CBD?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFinetuneRun,
}

var finetuneCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a running fine-tuning job",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinetuneCancel,
}

func init() {
	finetuneRunCmd.Flags().StringVar(&ftBaseModel, "base-model", "", "model to fine-tune (default from config)")
	finetuneRunCmd.Flags().StringVar(&ftSuffix, "suffix", "", "suffix for the resulting model name")
	finetuneRunCmd.Flags().DurationVar(&ftPollInterval, "poll-interval", 0, "time between status checks (default from config)")
	finetuneRunCmd.Flags().DurationVar(&ftTimeout, "timeout", 0, "give up waiting after this long (default from config, 0 waits forever)")
	finetuneRunCmd.Flags().StringVar(&ftTestPrompt, "test-prompt", "", "question to send to the new model once it is ready")

	finetuneCmd.AddCommand(finetuneValidateCmd)
	finetuneCmd.AddCommand(finetuneRunCmd)
	finetuneCmd.AddCommand(finetuneWatchCmd)
	finetuneCmd.AddCommand(finetuneJobsCmd)
	finetuneCmd.AddCommand(finetuneCancelCmd)
}

func trainingFileArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.TrainingFile
}

func runFinetuneValidate(cmd *cobra.Command, args []string) error {
	path := trainingFileArg(args)
	count, err := dataset.ValidateFile(path)
	fmt.Fprintln(cmd.OutOrStdout(), dataset.Report(path, count, err))
	return err
}

func runFinetuneRun(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	opts := service.FineTuneOptions{
		TrainingFile: trainingFileArg(args),
		BaseModel:    cfg.BaseModel,
		Suffix:       ftSuffix,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.PollTimeout,
		TestPrompt:   ftTestPrompt,
	}
	if ftBaseModel != "" {
		opts.BaseModel = ftBaseModel
	}
	if ftPollInterval > 0 {
		opts.PollInterval = ftPollInterval
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = ftTimeout
	}

	out := cmd.OutOrStdout()
	opts.OnStatus = func(job models.TuningJob) {
		printJobStatus(out, job)
	}

	// The completer is only needed for the test prompt.
	var completer service.Completer
	if opts.TestPrompt != "" {
		invoker, err := newInvoker()
		if err != nil {
			return err
		}
		completer = invoker
		opts.TestSystemPrompt = cfg.SmokeSystemPrompt
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.NewFineTuneService(api, completer, logger)
	result, err := svc.Run(ctx, opts)
	if err != nil {
		var abortErr *service.AbortError
		if errors.As(err, &abortErr) && abortErr.Stage == service.StagePoll && errors.Is(err, context.Canceled) {
			fmt.Fprintln(out, defaultTheme.hintStyle().Render(
				"Stopped waiting. The job keeps running; use 'tunechat finetune watch <job-id>' to follow it."))
		}
		return err
	}

	printFineTuneResult(out, result)
	return nil
}

func runFinetuneCancel(cmd *cobra.Command, args []string) error {
	api, err := newAPIClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job, err := api.CancelJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	printJobStatus(cmd.OutOrStdout(), *job)
	return nil
}

func printJobStatus(out io.Writer, job models.TuningJob) {
	status := defaultTheme.statusStyle().Render(fmt.Sprintf("[%s]", job.Status))
	line := fmt.Sprintf("%s %s %s", time.Now().Format("15:04:05"), status, job.ID)
	if job.RawStatus != "" && job.RawStatus != string(job.Status) {
		line += " (" + job.RawStatus + ")"
	}
	fmt.Fprintln(out, line)
}

func printFineTuneResult(out io.Writer, r *service.FineTuneResult) {
	fmt.Fprintln(out, defaultTheme.completedStyle().Render("✓ Fine-tuning completed"))
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Records:  %d\n", r.Records)
	fmt.Fprintf(out, "  File:     %s\n", r.FileID)
	fmt.Fprintf(out, "  Job:      %s\n", r.JobID)
	fmt.Fprintf(out, "  Model:    %s\n", r.Model)
	if r.Job != nil && r.Job.TrainedTokens > 0 {
		fmt.Fprintf(out, "  Tokens:   %d\n", r.Job.TrainedTokens)
	}

	switch {
	case r.TestErr != nil:
		fmt.Fprintln(out, defaultTheme.errorStyle().Render(fmt.Sprintf("\nTest prompt failed: %v", r.TestErr)))
	case r.TestReply != "":
		fmt.Fprintf(out, "\nTest reply:\n%s\n", r.TestReply)
	}
}
