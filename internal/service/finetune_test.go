package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/tunechat/internal/dataset"
	"github.com/raphaelgruber/tunechat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI replays a scripted sequence of job states.
type fakeAPI struct {
	mu       sync.Mutex
	states   []models.TuningJob
	polls    int
	uploads  int
	created  []models.JobSpec
	uploadEr error
	createEr error
	pollEr   error
}

func (f *fakeAPI) UploadFile(_ context.Context, path, purpose string) (*models.UploadedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadEr != nil {
		return nil, f.uploadEr
	}
	return &models.UploadedFile{ID: "file-abc", Filename: filepath.Base(path), Purpose: purpose}, nil
}

func (f *fakeAPI) CreateJob(_ context.Context, spec models.JobSpec) (*models.TuningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, spec)
	if f.createEr != nil {
		return nil, f.createEr
	}
	return &models.TuningJob{ID: "ftjob-1", Status: models.JobStatusPending}, nil
}

func (f *fakeAPI) GetJob(ctx context.Context, id string) (*models.TuningJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.pollEr != nil {
		return nil, f.pollEr
	}
	i := min(f.polls, len(f.states)-1)
	f.polls++
	job := f.states[i]
	job.ID = id
	return &job, nil
}

type fakeCompleter struct {
	reply string
	err   error
	model string
	turns []models.Turn
}

func (f *fakeCompleter) Complete(_ context.Context, model string, turns []models.Turn) (string, error) {
	f.model = model
	f.turns = turns
	return f.reply, f.err
}

func writeTrainingFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "training.jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validRecord = `{"messages":[{"role":"user","content":"What is CBD?"},{"role":"assistant","content":"A cannabinoid."}]}`

func runOpts(path string) FineTuneOptions {
	return FineTuneOptions{
		TrainingFile: path,
		BaseModel:    "gpt-3.5-turbo",
		PollInterval: time.Millisecond,
	}
}

func TestRunSucceeds(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{
		{Status: models.JobStatusPending, RawStatus: "validating_files"},
		{Status: models.JobStatusRunning, RawStatus: "running"},
		{Status: models.JobStatusSucceeded, RawStatus: "succeeded", ResultModelID: models.Ptr("ft:model-x")},
	}}
	svc := NewFineTuneService(api, nil, nil)

	var seen []models.JobStatus
	opts := runOpts(writeTrainingFile(t, validRecord, validRecord))
	opts.OnStatus = func(job models.TuningJob) { seen = append(seen, job.Status) }

	result, err := svc.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, "ft:model-x", result.Model)
	assert.Equal(t, 2, result.Records)
	assert.Equal(t, "file-abc", result.FileID)
	assert.Equal(t, "ftjob-1", result.JobID)
	assert.Equal(t, []models.JobStatus{models.JobStatusPending, models.JobStatusRunning, models.JobStatusSucceeded}, seen)

	require.Len(t, api.created, 1)
	assert.Equal(t, models.JobSpec{TrainingFile: "file-abc", BaseModel: "gpt-3.5-turbo"}, api.created[0])
}

func TestRunJobFailed(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{
		{Status: models.JobStatusRunning},
		{Status: models.JobStatusFailed, Error: models.Ptr("insufficient data")},
	}}
	svc := NewFineTuneService(api, nil, nil)

	result, err := svc.Run(context.Background(), runOpts(writeTrainingFile(t, validRecord)))
	assert.Nil(t, result)

	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, StageComplete, abortErr.Stage)
	assert.Equal(t, "insufficient data", abortErr.Reason)
}

func TestRunSucceededWithoutModel(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{{Status: models.JobStatusSucceeded}}}
	completer := &fakeCompleter{reply: "hi"}
	svc := NewFineTuneService(api, completer, nil)

	opts := runOpts(writeTrainingFile(t, validRecord))
	opts.TestPrompt = "hello"

	result, err := svc.Run(context.Background(), opts)
	assert.Nil(t, result)

	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, StageComplete, abortErr.Stage)
	assert.Equal(t, "job succeeded without a resulting model", abortErr.Reason)
	assert.Nil(t, completer.turns, "completer should not be called")
}

func TestRunJobCancelled(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{{Status: models.JobStatusCancelled}}}
	svc := NewFineTuneService(api, nil, nil)

	_, err := svc.Run(context.Background(), runOpts(writeTrainingFile(t, validRecord)))

	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, StageComplete, abortErr.Stage)
	assert.Equal(t, "job was cancelled", abortErr.Reason)
}

func TestRunMalformedFileNeverUploads(t *testing.T) {
	api := &fakeAPI{}
	svc := NewFineTuneService(api, nil, nil)

	path := writeTrainingFile(t, validRecord, `{"messages":[{"role":"user"}]}`)
	_, err := svc.Run(context.Background(), runOpts(path))

	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, StageValidate, abortErr.Stage)

	var verr *dataset.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Line)

	assert.Zero(t, api.uploads)
	assert.Empty(t, api.created)
}

func TestRunStageFailures(t *testing.T) {
	svcErr := &models.ServiceError{Op: "x", StatusCode: 500, Message: "server exploded"}

	tests := []struct {
		name  string
		api   *fakeAPI
		stage Stage
	}{
		{"upload", &fakeAPI{uploadEr: svcErr}, StageUpload},
		{"submit", &fakeAPI{createEr: svcErr}, StageSubmit},
		{"poll", &fakeAPI{pollEr: svcErr}, StagePoll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFineTuneService(tt.api, nil, nil)
			_, err := svc.Run(context.Background(), runOpts(writeTrainingFile(t, validRecord)))

			var abortErr *AbortError
			require.ErrorAs(t, err, &abortErr)
			assert.Equal(t, tt.stage, abortErr.Stage)
			assert.Equal(t, "server exploded", abortErr.Reason)
			assert.ErrorIs(t, err, svcErr)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{{Status: models.JobStatusRunning}}}
	svc := NewFineTuneService(api, nil, nil)

	opts := runOpts(writeTrainingFile(t, validRecord))
	opts.Timeout = 20 * time.Millisecond

	_, err := svc.Run(context.Background(), opts)

	var abortErr *AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, StagePoll, abortErr.Stage)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForJobCancelled(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{{Status: models.JobStatusRunning}}}
	svc := NewFineTuneService(api, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := svc.WaitForJob(ctx, "ftjob-1", time.Hour, func(models.TuningJob) {
		calls++
		cancel()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "first check is immediate")
}

func TestRunTestPrompt(t *testing.T) {
	api := &fakeAPI{states: []models.TuningJob{
		{Status: models.JobStatusSucceeded, ResultModelID: models.Ptr("ft:model-x")},
	}}

	t.Run("reply", func(t *testing.T) {
		completer := &fakeCompleter{reply: "CBD is a cannabinoid."}
		opts := runOpts(writeTrainingFile(t, validRecord))
		opts.TestPrompt = "What is CBD?"
		opts.TestSystemPrompt = "Medical cannabis specialist"

		result, err := NewFineTuneService(api, completer, nil).Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "CBD is a cannabinoid.", result.TestReply)
		assert.NoError(t, result.TestErr)
		assert.Equal(t, "ft:model-x", completer.model)
		assert.Equal(t, []models.Turn{
			models.SystemTurn("Medical cannabis specialist"),
			models.UserTurn("What is CBD?"),
		}, completer.turns)
	})

	t.Run("failure does not abort", func(t *testing.T) {
		completer := &fakeCompleter{err: errors.New("model not ready")}
		opts := runOpts(writeTrainingFile(t, validRecord))
		opts.TestPrompt = "What is CBD?"

		result, err := NewFineTuneService(api, completer, nil).Run(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, "ft:model-x", result.Model)
		assert.EqualError(t, result.TestErr, "model not ready")
	})
}

func TestAbortErrorMessage(t *testing.T) {
	err := &AbortError{Stage: StageUpload, Reason: "quota exceeded"}
	assert.Equal(t, "fine-tune aborted at upload: quota exceeded", err.Error())
}
