// API client for the ytlib server, used by the CLI subcommands
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/hashicorp/go-retryablehttp"
)

// APIService makes requests to a running ytlib server.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a client for the server at baseURL.
//
// A nil client gets a retrying client that only retries idempotent requests.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3000"
	}
	if client == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = 2
		rc.RetryWaitMin = 200 * time.Millisecond
		rc.RetryWaitMax = 2 * time.Second
		rc.Logger = nil
		rc.CheckRetry = idempotentRetry
		client = rc.StandardClient()
	}

	return &APIService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func idempotentRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.Request != nil {
		switch resp.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodDelete:
		default:
			return false, nil
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// BaseURL returns the server address requests are sent to.
func (a *APIService) BaseURL() string { return a.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
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
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// call sends in as JSON and decodes a 2xx body into out. Error bodies become typed errors.
func (a *APIService) call(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		data = b
	}

	resp, err := a.do(ctx, method, path, data)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DecodeAPIError(resp.StatusCode, resp.Body)
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// DecodeAPIError rebuilds a typed error from an error response body.
func DecodeAPIError(status int, body []byte) error {
	var e models.ErrorResponse
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, status)
	}

	err := fmt.Errorf("%w: %s", shared.ErrorForKind(shared.ErrorKind(e.Error)), e.Message)
	if e.ActiveJobID != "" {
		return &shared.ConflictError{Err: err, ActiveJobID: e.ActiveJobID}
	}
	return err
}

// Health checks that the server is reachable.
func (a *APIService) Health(ctx context.Context) error {
	return a.call(ctx, http.MethodGet, "/health", nil, nil)
}

// SubmitJob creates a job and returns its id.
func (a *APIService) SubmitJob(ctx context.Context, req models.CreateJobRequest) (string, error) {
	var out models.CreateJobResponse
	if err := a.call(ctx, http.MethodPost, "/api/jobs", req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ListJobs returns all jobs, or only active ones.
func (a *APIService) ListJobs(ctx context.Context, activeOnly bool) ([]*models.Job, error) {
	path := "/api/jobs"
	if activeOnly {
		path += "?active=true"
	}
	var out models.JobsResponse
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// GetJob returns one job.
func (a *APIService) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var out models.Job
	if err := a.call(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelJob requests cancellation of an active job.
func (a *APIService) CancelJob(ctx context.Context, id string) error {
	return a.call(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
}

// DeleteJob removes a finished job.
func (a *APIService) DeleteJob(ctx context.Context, id string) error {
	return a.call(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil)
}

// ClearJobs removes every finished job.
func (a *APIService) ClearJobs(ctx context.Context) (int, error) {
	var out models.ClearResponse
	if err := a.call(ctx, http.MethodDelete, "/api/jobs", nil, &out); err != nil {
		return 0, err
	}
	return out.Cleared, nil
}

// ListSubscriptions returns every subscription.
func (a *APIService) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	var out models.SubscriptionsResponse
	if err := a.call(ctx, http.MethodGet, "/api/subscriptions", nil, &out); err != nil {
		return nil, err
	}
	return out.Subscriptions, nil
}

// CreateSubscription saves a new subscription.
func (a *APIService) CreateSubscription(ctx context.Context, req models.CreateSubscriptionRequest) (*models.Subscription, error) {
	var out models.Subscription
	if err := a.call(ctx, http.MethodPost, "/api/subscriptions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSubscription applies patch to a subscription.
func (a *APIService) UpdateSubscription(ctx context.Context, id string, patch models.SubscriptionPatch) (*models.Subscription, error) {
	var out models.Subscription
	if err := a.call(ctx, http.MethodPatch, "/api/subscriptions/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSubscription removes a subscription. Its past jobs are kept.
func (a *APIService) DeleteSubscription(ctx context.Context, id string) error {
	return a.call(ctx, http.MethodDelete, "/api/subscriptions/"+url.PathEscape(id), nil, nil)
}

// SyncSubscription enqueues a sync of one subscription.
func (a *APIService) SyncSubscription(ctx context.Context, id string) (string, error) {
	var out models.SyncResponse
	if err := a.call(ctx, http.MethodPost, "/api/subscriptions/"+url.PathEscape(id)+"/sync", nil, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// SyncAll enqueues a sync of every enabled subscription.
func (a *APIService) SyncAll(ctx context.Context) (*models.SyncAllResponse, error) {
	var out models.SyncAllResponse
	if err := a.call(ctx, http.MethodPost, "/api/subscriptions/sync", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SchedulerStatus reports the periodic sync loop.
func (a *APIService) SchedulerStatus(ctx context.Context) (*models.SchedulerStatus, error) {
	var out models.SchedulerStatus
	if err := a.call(ctx, http.MethodGet, "/api/scheduler", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LibraryTracks lists the dedup index, optionally filtered by album or artist key.
func (a *APIService) LibraryTracks(ctx context.Context, album, artist string) (*models.TracksResponse, error) {
	q := url.Values{}
	if album != "" {
		q.Set("album", album)
	}
	if artist != "" {
		q.Set("artist", artist)
	}
	path := "/api/library/tracks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out models.TracksResponse
	if err := a.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURL returns the websocket address for a job's log stream, or the event stream when jobID is empty.
func (a *APIService) StreamURL(jobID string) string {
	base := a.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	if jobID == "" {
		return base + "/api/events"
	}
	return base + "/api/jobs/" + url.PathEscape(jobID) + "/logs"
}
