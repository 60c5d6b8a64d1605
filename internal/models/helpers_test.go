package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want JobStatus
	}{
		{"validating_files", JobStatusPending},
		{"queued", JobStatusPending},
		{"pending", JobStatusPending},
		{"running", JobStatusRunning},
		{"succeeded", JobStatusSucceeded},
		{"failed", JobStatusFailed},
		{"cancelled", JobStatusCancelled},
		{"something_new", JobStatusRunning},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseJobStatus(tt.raw); got != tt.want {
				t.Errorf("ParseJobStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusPending:   false,
		JobStatusRunning:   false,
		JobStatusSucceeded: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTuningJobAccessors(t *testing.T) {
	job := TuningJob{ID: "ftjob-1", Status: JobStatusRunning}
	if job.ResultModel() != "" || job.ErrorMessage() != "" {
		t.Fatalf("expected empty accessors for a fresh job")
	}

	job.ResultModelID = Ptr("ft:model-x")
	job.Error = Ptr("insufficient data")
	if job.ResultModel() != "ft:model-x" {
		t.Errorf("ResultModel() = %q", job.ResultModel())
	}
	if job.ErrorMessage() != "insufficient data" {
		t.Errorf("ErrorMessage() = %q", job.ErrorMessage())
	}
}

func TestTuningJobFailureReason(t *testing.T) {
	tests := []struct {
		name string
		job  TuningJob
		want string
	}{
		{"error message wins", TuningJob{Status: JobStatusCancelled, Error: Ptr("insufficient data")}, "insufficient data"},
		{"cancelled", TuningJob{Status: JobStatusCancelled}, "job was cancelled"},
		{"failed without message", TuningJob{Status: JobStatusFailed}, "job failed with unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.job.FailureReason(); got != tt.want {
				t.Errorf("FailureReason() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceErrorFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   *ServiceError
		fatal bool
	}{
		{"unauthorized status", &ServiceError{Op: "x", StatusCode: 401}, true},
		{"rate limited status", &ServiceError{Op: "x", StatusCode: 429}, true},
		{"server error", &ServiceError{Op: "x", StatusCode: 500, Message: "boom"}, false},
		{"quota in message", &ServiceError{Op: "x", Message: "You exceeded your current quota exceeded"}, true},
		{"billing in cause", &ServiceError{Op: "x", Err: errors.New("billing account inactive")}, true},
		{"network", &ServiceError{Op: "x", Err: errors.New("connection reset")}, false},
		{"count in message", &ServiceError{Op: "x", StatusCode: 400, Message: "training file has 403 lines"}, false},
		{"status code in cause", &ServiceError{Op: "x", Err: errors.New("API returned unexpected status code: 401")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Fatal(); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
			wrapped := fmt.Errorf("wrapped: %w", tt.err)
			if got := errors.Is(wrapped, ErrFatalAPI); got != tt.fatal {
				t.Errorf("errors.Is(ErrFatalAPI) = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestIsFatalMessageIgnoresBareNumbers(t *testing.T) {
	for _, msg := range []string{"file has 401 examples", "line 403: missing role"} {
		if IsFatalMessage(msg) {
			t.Errorf("IsFatalMessage(%q) = true, want false", msg)
		}
	}
	if !IsFatalMessage("HTTP 403: Forbidden") {
		t.Errorf("expected HTTP 403 to be fatal")
	}
}

func TestServiceErrorMessage(t *testing.T) {
	err := &ServiceError{Op: "create job", StatusCode: 400, Message: "invalid training file"}
	if got := err.Error(); got != "create job: 400 invalid training file" {
		t.Errorf("Error() = %q", got)
	}

	cause := errors.New("dial tcp: refused")
	err = &ServiceError{Op: "get job", Err: cause}
	if got := err.Error(); got != "get job: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be unwrappable")
	}

	svcErr, ok := AsServiceError(fmt.Errorf("outer: %w", err))
	if !ok || svcErr.Op != "get job" {
		t.Errorf("AsServiceError() = %v, %v", svcErr, ok)
	}
}
