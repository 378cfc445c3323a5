package models

import "time"

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	URL         string  `json:"url" validate:"required,url"`
	Kind        JobKind `json:"kind,omitempty" validate:"omitempty,oneof=track album playlist discography"`
	MaxItems    int     `json:"max_items,omitempty" validate:"gte=0"`
	AudioFormat string  `json:"audio_format,omitempty" validate:"omitempty,oneof=mp3"`
}

// CreateJobResponse is returned when a job is admitted.
type CreateJobResponse struct {
	ID string `json:"id"`
}

// JobsResponse lists jobs in admission order.
type JobsResponse struct {
	Jobs []*Job `json:"jobs"`
}

// ClearResponse reports how many finished jobs were removed.
type ClearResponse struct {
	Cleared int `json:"cleared"`
}

// CreateSubscriptionRequest is the body of POST /api/subscriptions.
type CreateSubscriptionRequest struct {
	URL      string `json:"url" validate:"required,url"`
	Name     string `json:"name,omitempty"`
	MaxItems int    `json:"max_items,omitempty" validate:"gte=0"`
	Enabled  *bool  `json:"enabled,omitempty"`
}

// SubscriptionsResponse lists subscriptions.
type SubscriptionsResponse struct {
	Subscriptions []*Subscription `json:"subscriptions"`
}

// SyncResponse is returned when one subscription sync is enqueued.
type SyncResponse struct {
	JobID string `json:"job_id"`
}

// SyncConflict names a subscription skipped because it already had an active job.
type SyncConflict struct {
	SubscriptionID string `json:"subscription_id"`
	ActiveJobID    string `json:"active_job_id"`
}

// SyncAllResponse is returned by a sync of every enabled subscription.
type SyncAllResponse struct {
	JobIDs    []string       `json:"job_ids"`
	Conflicts []SyncConflict `json:"conflicts"`
}

// SchedulerStatus reports the periodic subscription loop.
type SchedulerStatus struct {
	Running         bool       `json:"running"`
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"interval_minutes"`
	LastRunAt       *time.Time `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
}

// TracksResponse lists the library's dedup records.
type TracksResponse struct {
	Tracks []*TrackRecord `json:"tracks"`
	Count  int            `json:"count"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	ActiveJobID string `json:"active_job_id,omitempty"`
}
