// API client for the task server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// OwnerHeader carries the caller identity for CLI and TUI requests.
const OwnerHeader = "X-Owner"

// APIService provides methods for calling a running task server.
type APIService struct {
	baseURL    string
	owner      string
	httpClient *http.Client
	maxRetry   time.Duration
}

// NewAPIService creates a new API client for the task server.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://localhost:7860"
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
		maxRetry:   10 * time.Second,
	}
}

// WithOwner returns a copy of the client that identifies as owner.
func (a *APIService) WithOwner(owner string) *APIService {
	c := *a
	c.owner = owner
	return &c
}

// BaseURL returns the server address.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Decode unmarshals the body into v.
func (r *APIResponse) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Err converts a non-2xx response into an error carrying the server's message.
func (r *APIResponse) Err() error {
	if r.OK() {
		return nil
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(r.Body, &body) == nil && body.Error != "" {
		return fmt.Errorf("%w: %d %s", shared.ErrAPIRequest, r.StatusCode, body.Error)
	}
	return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, r.StatusCode)
}

// Get performs a GET request, retrying transport failures with exponential backoff.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	if _, err := url.Parse(a.baseURL + path); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp *APIResponse
	op := func() error {
		r, err := a.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = a.maxRetry
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

// Delete performs a DELETE request.
func (a *APIService) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodDelete, path, nil)
}

func (a *APIService) newRequest(ctx context.Context, method, path string, data []byte) (*http.Request, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.owner != "" {
		req.Header.Set(OwnerHeader, a.owner)
	}
	return req, nil
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	req, err := a.newRequest(ctx, method, path, data)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// SubmitRequest is the body of POST /api/tasks.
type SubmitRequest struct {
	URLs    []string       `json:"urls"`
	Quality string         `json:"quality,omitempty"`
	Options models.Options `json:"options"`
}

// SubmitResponse reports created ids and the number of skipped duplicates.
type SubmitResponse struct {
	IDs     []string `json:"ids"`
	Skipped int      `json:"skipped"`
}

// ProbeRequest is the body of POST /api/probe.
type ProbeRequest struct {
	URLs    []string       `json:"urls"`
	Options models.Options `json:"options"`
}

// ProbeResult is one entry of the probe response.
type ProbeResult struct {
	URL      string           `json:"url"`
	Metadata *models.Metadata `json:"metadata,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ClearResponse reports how many task directories were removed.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

func (a *APIService) postJSON(ctx context.Context, path string, in, out any) error {
	var data []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		data = b
	} else {
		data = []byte("{}")
	}
	resp, err := a.Post(ctx, path, data)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// Submit creates tasks for urls.
func (a *APIService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := a.postJSON(ctx, "/api/tasks", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTasks returns the caller's tasks, newest first.
func (a *APIService) ListTasks(ctx context.Context) ([]models.TaskView, error) {
	resp, err := a.Get(ctx, "/api/tasks")
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out []models.TaskView
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTask returns one task.
func (a *APIService) GetTask(ctx context.Context, id string) (*models.TaskView, error) {
	resp, err := a.Get(ctx, "/api/tasks/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out models.TaskView
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskAction invokes pause, cancel, or retry on a task.
func (a *APIService) TaskAction(ctx context.Context, id, action string) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := a.postJSON(ctx, "/api/tasks/"+url.PathEscape(id)+"/"+action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryFailed resubmits every failed task.
func (a *APIService) RetryFailed(ctx context.Context) (*SubmitResponse, error) {
	var out SubmitResponse
	if err := a.postJSON(ctx, "/api/tasks/retry-failed", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearTasks removes the caller's tasks.
func (a *APIService) ClearTasks(ctx context.Context) (*ClearResponse, error) {
	resp, err := a.Delete(ctx, "/api/tasks")
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	var out ClearResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Probe previews metadata for urls.
func (a *APIService) Probe(ctx context.Context, req ProbeRequest) ([]ProbeResult, error) {
	var out []ProbeResult
	if err := a.postJSON(ctx, "/api/probe", req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadBundle streams the zip of completed artifacts into w.
func (a *APIService) DownloadBundle(ctx context.Context, w io.Writer) (int64, error) {
	req, err := a.newRequest(ctx, http.MethodGet, "/download-all", nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, (&APIResponse{StatusCode: resp.StatusCode, Body: body}).Err()
	}
	return io.Copy(w, resp.Body)
}
