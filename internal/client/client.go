// Package client provides an HTTP client for the hosted files and fine-tuning API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/raphaelgruber/tunechat/internal/metrics"
	"github.com/raphaelgruber/tunechat/internal/models"
)

// DefaultBaseURL is the OpenAI-compatible API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client talks to the files and fine-tuning endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Collector
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMetrics records request timings in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) { c.metrics = collector }
}

// New creates a client for baseURL authenticated with apiKey.
// If baseURL is empty, uses DefaultBaseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			// Uploads of large training files can be slow
			Timeout: 5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// apiErrorBody is the service's error envelope.
type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Param   string `json:"param"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type fileResponse struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Bytes     int64  `json:"bytes"`
	Purpose   string `json:"purpose"`
	CreatedAt int64  `json:"created_at"`
}

type jobRequest struct {
	TrainingFile string `json:"training_file"`
	Model        string `json:"model"`
	Suffix       string `json:"suffix,omitempty"`
}

type jobResponse struct {
	ID             string  `json:"id"`
	Model          string  `json:"model"`
	Status         string  `json:"status"`
	FineTunedModel *string `json:"fine_tuned_model"`
	TrainingFile   string  `json:"training_file"`
	TrainedTokens  *int    `json:"trained_tokens"`
	CreatedAt      int64   `json:"created_at"`
	FinishedAt     *int64  `json:"finished_at"`
	Error          *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

type jobListResponse struct {
	Data    []jobResponse `json:"data"`
	HasMore bool          `json:"has_more"`
}

func (r jobResponse) toModel() *models.TuningJob {
	job := &models.TuningJob{
		ID:           r.ID,
		Status:       models.ParseJobStatus(r.Status),
		RawStatus:    r.Status,
		BaseModel:    r.Model,
		TrainingFile: r.TrainingFile,
		CreatedAt:    models.UnixTime(r.CreatedAt),
	}
	if r.FineTunedModel != nil && *r.FineTunedModel != "" {
		job.ResultModelID = models.Ptr(*r.FineTunedModel)
	}
	if r.Error != nil && r.Error.Message != "" {
		job.Error = models.Ptr(r.Error.Message)
	}
	if r.TrainedTokens != nil {
		job.TrainedTokens = *r.TrainedTokens
	}
	if r.FinishedAt != nil && *r.FinishedAt > 0 {
		job.FinishedAt = models.Ptr(models.UnixTime(*r.FinishedAt))
	}
	return job
}

// =============================================================================
// FILES
// =============================================================================

// UploadFile uploads the file at path with the given purpose.
func (c *Client) UploadFile(ctx context.Context, path, purpose string) (*models.UploadedFile, error) {
	const op = "upload file"
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("purpose", purpose); err != nil {
		return nil, fmt.Errorf("write purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("copy %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var resp fileResponse
	err = c.do(ctx, op, http.MethodPost, "/files", mw.FormDataContentType(), &body, &resp)
	c.metrics.RecordTiming(metrics.OpUpload, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return &models.UploadedFile{
		ID:        resp.ID,
		Filename:  resp.Filename,
		Bytes:     resp.Bytes,
		Purpose:   resp.Purpose,
		CreatedAt: models.UnixTime(resp.CreatedAt),
	}, nil
}

// =============================================================================
// FINE-TUNING JOBS
// =============================================================================

// CreateJob submits a fine-tuning job.
func (c *Client) CreateJob(ctx context.Context, spec models.JobSpec) (*models.TuningJob, error) {
	start := time.Now()
	reqBody, err := json.Marshal(jobRequest{
		TrainingFile: spec.TrainingFile,
		Model:        spec.BaseModel,
		Suffix:       spec.Suffix,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var resp jobResponse
	err = c.do(ctx, "create job", http.MethodPost, "/fine_tuning/jobs", "application/json", bytes.NewReader(reqBody), &resp)
	c.metrics.RecordTiming(metrics.OpJobCreate, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// GetJob retrieves a fine-tuning job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*models.TuningJob, error) {
	start := time.Now()
	var resp jobResponse
	err := c.do(ctx, "get job", http.MethodGet, "/fine_tuning/jobs/"+url.PathEscape(id), "", nil, &resp)
	c.metrics.RecordTiming(metrics.OpJobPoll, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// CancelJob requests cancellation of a running job.
func (c *Client) CancelJob(ctx context.Context, id string) (*models.TuningJob, error) {
	var resp jobResponse
	path := "/fine_tuning/jobs/" + url.PathEscape(id) + "/cancel"
	if err := c.do(ctx, "cancel job", http.MethodPost, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// ListJobs returns up to limit jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.TuningJob, error) {
	path := "/fine_tuning/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp jobListResponse
	if err := c.do(ctx, "list jobs", http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}

	jobs := make([]models.TuningJob, 0, len(resp.Data))
	for _, j := range resp.Data {
		jobs = append(jobs, *j.toModel())
	}
	return jobs, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// do sends a request and decodes a JSON response into result.
// Every failure is returned as *models.ServiceError.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &models.ServiceError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.ServiceError{Op: op, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.ServiceError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(op, resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &models.ServiceError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
		}
	}

	return nil
}

// decodeAPIError builds a ServiceError from an error response body.
func decodeAPIError(op string, status int, body []byte) error {
	svcErr := &models.ServiceError{Op: op, StatusCode: status}

	var envelope apiErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		svcErr.Message = envelope.Error.Message
		svcErr.Type = envelope.Error.Type
		if envelope.Error.Code != nil {
			svcErr.Code = fmt.Sprint(envelope.Error.Code)
		}
	}
	if svcErr.Message == "" {
		svcErr.Message = strings.TrimSpace(string(body))
	}
	if svcErr.Message == "" {
		svcErr.Message = http.StatusText(status)
	}
	return svcErr
}
