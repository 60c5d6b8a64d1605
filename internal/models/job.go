package models

import "time"

// JobStatus represents the normalized state of a remote tuning job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ParseJobStatus maps a raw service status onto JobStatus.
// "validating_files" and "queued" are reported as pending; unknown values
// are treated as running so callers keep polling.
func ParseJobStatus(raw string) JobStatus {
	switch raw {
	case "validating_files", "queued", "pending":
		return JobStatusPending
	case "running":
		return JobStatusRunning
	case "succeeded":
		return JobStatusSucceeded
	case "failed":
		return JobStatusFailed
	case "cancelled":
		return JobStatusCancelled
	default:
		return JobStatusRunning
	}
}

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// TuningJob is a fine-tuning job as observed through the service API.
type TuningJob struct {
	ID            string     `json:"id"`
	Status        JobStatus  `json:"status"`
	RawStatus     string     `json:"raw_status,omitempty"` // Status string as sent by the service
	BaseModel     string     `json:"base_model,omitempty"`
	TrainingFile  string     `json:"training_file,omitempty"`
	ResultModelID *string    `json:"result_model_id,omitempty"`
	Error         *string    `json:"error,omitempty"`
	TrainedTokens int        `json:"trained_tokens,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the job reached succeeded, failed or cancelled.
func (j TuningJob) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// ResultModel returns the fine-tuned model ID or "".
func (j TuningJob) ResultModel() string {
	if j.ResultModelID == nil {
		return ""
	}
	return *j.ResultModelID
}

// ErrorMessage returns the service-provided failure reason or "".
func (j TuningJob) ErrorMessage() string {
	if j.Error == nil {
		return ""
	}
	return *j.Error
}

// FailureReason describes why a terminal job did not succeed.
func (j TuningJob) FailureReason() string {
	if msg := j.ErrorMessage(); msg != "" {
		return msg
	}
	if j.Status == JobStatusCancelled {
		return "job was cancelled"
	}
	return "job failed with unknown error"
}

// JobSpec describes a tuning job to submit.
type JobSpec struct {
	TrainingFile string // Uploaded file ID
	BaseModel    string
	Suffix       string // Optional, appended to the resulting model name
}

// UploadedFile is a file stored by the service.
type UploadedFile struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Bytes     int64     `json:"bytes"`
	Purpose   string    `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
}
