// Package service drives the fine-tuning workflow against the hosted service.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/tunechat/internal/dataset"
	"github.com/raphaelgruber/tunechat/internal/models"
)

// PurposeFineTune is the upload purpose for training data.
const PurposeFineTune = "fine-tune"

// DefaultPollInterval is the wait between job status checks.
const DefaultPollInterval = 60 * time.Second

// FineTuneAPI is the subset of the hosted service the workflow needs.
type FineTuneAPI interface {
	UploadFile(ctx context.Context, path, purpose string) (*models.UploadedFile, error)
	CreateJob(ctx context.Context, spec models.JobSpec) (*models.TuningJob, error)
	GetJob(ctx context.Context, id string) (*models.TuningJob, error)
}

// Completer sends a conversation to a model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, model string, turns []models.Turn) (string, error)
}

// Stage names a step of the workflow.
type Stage string

const (
	StageValidate Stage = "validate"
	StageUpload   Stage = "upload"
	StageSubmit   Stage = "submit"
	StagePoll     Stage = "poll"
	StageComplete Stage = "complete"
)

// AbortError reports the stage at which the workflow stopped.
type AbortError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("fine-tune aborted at %s: %s", e.Stage, e.Reason)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

// StatusFunc observes every polled job state.
type StatusFunc func(job models.TuningJob)

// FineTuneOptions configures a single workflow run.
type FineTuneOptions struct {
	TrainingFile string
	BaseModel    string
	Suffix       string

	PollInterval time.Duration // 0 uses DefaultPollInterval
	Timeout      time.Duration // bounds the poll stage, 0 waits forever

	// TestPrompt, if set, is sent once to the resulting model.
	TestPrompt       string
	TestSystemPrompt string

	OnStatus StatusFunc
}

// FineTuneResult is the outcome of a successful run.
type FineTuneResult struct {
	Records int
	FileID  string
	JobID   string
	Model   string
	Job     *models.TuningJob

	TestReply string
	TestErr   error
}

// FineTuneService runs the validate, upload, submit, poll pipeline.
type FineTuneService struct {
	api       FineTuneAPI
	completer Completer
	logger    *slog.Logger
}

// NewFineTuneService creates a service. completer may be nil when no test
// prompt will be used.
func NewFineTuneService(api FineTuneAPI, completer Completer, logger *slog.Logger) *FineTuneService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FineTuneService{api: api, completer: completer, logger: logger}
}

// Run executes the whole workflow. Any failure stops the pipeline and is
// returned as *AbortError; nothing is resumed from a partial state.
func (s *FineTuneService) Run(ctx context.Context, opts FineTuneOptions) (*FineTuneResult, error) {
	result := &FineTuneResult{}

	// Validate
	records, err := dataset.ValidateFile(opts.TrainingFile)
	if err != nil {
		return nil, abort(StageValidate, err)
	}
	result.Records = records
	s.logger.Info("training file valid", "path", opts.TrainingFile, "records", records)

	// Upload
	file, err := s.api.UploadFile(ctx, opts.TrainingFile, PurposeFineTune)
	if err != nil {
		return nil, abort(StageUpload, err)
	}
	result.FileID = file.ID
	s.logger.Info("training file uploaded", "file_id", file.ID, "bytes", file.Bytes)

	// Submit
	job, err := s.api.CreateJob(ctx, models.JobSpec{
		TrainingFile: file.ID,
		BaseModel:    opts.BaseModel,
		Suffix:       opts.Suffix,
	})
	if err != nil {
		return nil, abort(StageSubmit, err)
	}
	result.JobID = job.ID
	s.logger.Info("fine-tuning job created", "job_id", job.ID, "base_model", opts.BaseModel)

	// Poll
	pollCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	final, err := s.WaitForJob(pollCtx, job.ID, opts.PollInterval, opts.OnStatus)
	if err != nil {
		return nil, err
	}
	result.Job = final

	// Complete
	if final.Status != models.JobStatusSucceeded {
		return nil, &AbortError{Stage: StageComplete, Reason: final.FailureReason()}
	}
	result.Model = final.ResultModel()
	if result.Model == "" {
		return nil, &AbortError{Stage: StageComplete, Reason: "job succeeded without a resulting model"}
	}
	s.logger.Info("fine-tuning succeeded", "job_id", final.ID, "model", result.Model)

	if opts.TestPrompt != "" && s.completer != nil {
		result.TestReply, result.TestErr = s.tryModel(ctx, result.Model, opts)
	}

	return result, nil
}

// WaitForJob polls jobID until it reaches a terminal status. The first
// check is immediate; later checks happen every interval. A failed status
// call aborts the wait without retrying.
func (s *FineTuneService) WaitForJob(ctx context.Context, jobID string, interval time.Duration, onStatus StatusFunc) (*models.TuningJob, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, abort(StagePoll, ctx.Err())
		case <-timer.C:
		}

		job, err := s.api.GetJob(ctx, jobID)
		if err != nil {
			return nil, abort(StagePoll, err)
		}

		s.logger.Debug("job status", "job_id", jobID, "status", job.RawStatus)
		if onStatus != nil {
			onStatus(*job)
		}

		if job.IsTerminal() {
			return job, nil
		}
		timer.Reset(interval)
	}
}

// tryModel sends the test prompt once. Failures are logged, not fatal.
func (s *FineTuneService) tryModel(ctx context.Context, model string, opts FineTuneOptions) (string, error) {
	var turns []models.Turn
	if opts.TestSystemPrompt != "" {
		turns = append(turns, models.SystemTurn(opts.TestSystemPrompt))
	}
	turns = append(turns, models.UserTurn(opts.TestPrompt))

	reply, err := s.completer.Complete(ctx, model, turns)
	if err != nil {
		s.logger.Warn("test prompt failed", "model", model, "error", err)
		return "", err
	}
	return reply, nil
}

func abort(stage Stage, err error) *AbortError {
	reason := err.Error()

	var verr *dataset.ValidationError
	var svcErr *models.ServiceError
	switch {
	case errors.As(err, &verr):
		reason = verr.Error()
	case errors.As(err, &svcErr) && svcErr.Message != "":
		reason = svcErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timed out waiting for job"
	case errors.Is(err, context.Canceled):
		reason = "cancelled while waiting for job"
	}
	return &AbortError{Stage: stage, Reason: reason, Err: err}
}
