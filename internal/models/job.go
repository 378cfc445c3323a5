package models

import (
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/ytlib/internal/shared"
)

// JobKind is the shape of content a job retrieves.
type JobKind string

const (
	KindTrack       JobKind = "track"
	KindAlbum       JobKind = "album"
	KindPlaylist    JobKind = "playlist"
	KindDiscography JobKind = "discography"
)

// Valid reports whether k is one of the known kinds.
func (k JobKind) Valid() bool {
	switch k {
	case KindTrack, KindAlbum, KindPlaylist, KindDiscography:
		return true
	default:
		return false
	}
}

// TrackFailure describes one track that could not be retrieved or organized.
type TrackFailure struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	Error   string `json:"error"`
}

// JobResult summarizes the tracks a job produced.
type JobResult struct {
	Title        string         `json:"title,omitempty"`
	Succeeded    int            `json:"succeeded"`
	Skipped      int            `json:"skipped"`
	Failed       int            `json:"failed"`
	OutputPaths  []string       `json:"output_paths,omitempty"`
	PlaylistPath string         `json:"playlist_path,omitempty"`
	Failures     []TrackFailure `json:"failures,omitempty"`
}

// Total returns the number of tracks the job accounted for.
func (r JobResult) Total() int {
	return r.Succeeded + r.Skipped + r.Failed
}

// Job is one execution of the pipeline for a URL.
//
// SubscriptionID is a lookup key only; the subscription may be deleted while its jobs remain.
type Job struct {
	ID             string     `json:"id"`
	Sequence       int        `json:"-"`
	Kind           JobKind    `json:"kind"`
	URL            string     `json:"url"`
	MaxItems       int        `json:"max_items,omitempty"`
	AudioFormat    string     `json:"audio_format,omitempty"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	Status         JobStatus  `json:"status"`
	Progress       int        `json:"progress"`
	Error          string     `json:"error,omitempty"`
	Result         JobResult  `json:"result"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// NewJob creates a pending job for url.
func NewJob(kind JobKind, url string, maxItems int) *Job {
	now := time.Now().UTC()
	return &Job{
		Kind:      kind,
		URL:       url,
		MaxItems:  maxItems,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the fields required before a job is persisted.
func (j *Job) Validate() error {
	if j.URL == "" {
		return fmt.Errorf("%w: job url is required", shared.ErrValidation)
	}
	if !j.Kind.Valid() {
		return fmt.Errorf("%w: unknown job kind %q", shared.ErrValidation, j.Kind)
	}
	if j.MaxItems < 0 {
		return fmt.Errorf("%w: max_items must not be negative", shared.ErrValidation)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: invalid status %s", shared.ErrValidation, j.Status)
	}
	if j.Progress < 0 || j.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", shared.ErrValidation, j.Progress)
	}
	return nil
}

// Transition moves the job to next, resetting progress for the new phase.
//
// Terminal statuses stamp FinishedAt; entering fetching_info stamps StartedAt.
func (j *Job) Transition(next JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidTransition, j.Status, next)
	}

	j.Status = next
	j.Progress = 0
	j.UpdatedAt = now

	if next == StatusFetchingInfo {
		started := now
		j.StartedAt = &started
	}
	if next.IsFinished() {
		finished := now
		j.FinishedAt = &finished
		if next == StatusCompleted {
			j.Progress = 100
		}
	}

	return nil
}

// Elapsed is the time from admission to the terminal status, or zero while the job is active.
func (j *Job) Elapsed() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.CreatedAt)
}

// SetProgress records phase progress. Values are clamped to 0..100 and never move backwards within a phase.
func (j *Job) SetProgress(percent int, now time.Time) error {
	if j.Status.IsFinished() {
		return fmt.Errorf("%w: job %s", shared.ErrJobFinished, j.ID)
	}

	percent = min(max(percent, 0), 100)
	if percent <= j.Progress {
		return nil
	}

	j.Progress = percent
	j.UpdatedAt = now
	return nil
}

// Fail moves the job to failed and keeps msg as its error.
func (j *Job) Fail(msg string, now time.Time) error {
	if err := j.Transition(StatusFailed, now); err != nil {
		return err
	}
	j.Error = msg
	return nil
}

// Clone returns a deep copy safe to hand outside the store.
func (j *Job) Clone() *Job {
	c := *j
	c.Result.OutputPaths = slices.Clone(j.Result.OutputPaths)
	c.Result.Failures = slices.Clone(j.Result.Failures)
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
