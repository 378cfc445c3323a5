package models

import (
	"encoding/json"
	"testing"
)

func TestJobStatusPredicates(t *testing.T) {
	if len(AllStatuses) != 7 {
		t.Fatalf("expected 7 statuses, got %d", len(AllStatuses))
	}

	for _, s := range AllStatuses {
		t.Run(s.String(), func(t *testing.T) {
			if s.IsRunning() && !s.IsActive() {
				t.Errorf("%s is running but not active", s)
			}
			if s.IsActive() == s.IsFinished() {
				t.Errorf("%s must be exactly one of active or finished", s)
			}
		})
	}

	tc := []struct {
		status  JobStatus
		active  bool
		running bool
	}{
		{StatusPending, true, false},
		{StatusFetchingInfo, true, true},
		{StatusDownloading, true, true},
		{StatusImporting, true, true},
		{StatusCompleted, false, false},
		{StatusFailed, false, false},
		{StatusCancelled, false, false},
	}

	for _, tt := range tc {
		if tt.status.IsActive() != tt.active {
			t.Errorf("%s: IsActive() = %v, want %v", tt.status, tt.status.IsActive(), tt.active)
		}
		if tt.status.IsRunning() != tt.running {
			t.Errorf("%s: IsRunning() = %v, want %v", tt.status, tt.status.IsRunning(), tt.running)
		}
	}

	t.Run("unknown status is finished", func(t *testing.T) {
		unknown := JobStatus(200)
		if unknown.Valid() || unknown.IsActive() || !unknown.IsFinished() {
			t.Errorf("unknown status should be invalid and finished")
		}
	})
}

func TestJobStatusTransitions(t *testing.T) {
	edges := map[JobStatus][]JobStatus{
		StatusPending:      {StatusFetchingInfo, StatusFailed, StatusCancelled},
		StatusFetchingInfo: {StatusDownloading, StatusFailed, StatusCancelled},
		StatusDownloading:  {StatusImporting, StatusFailed, StatusCancelled},
		StatusImporting:    {StatusCompleted, StatusFailed, StatusCancelled},
	}

	for _, from := range AllStatuses {
		allowed := map[JobStatus]bool{}
		for _, to := range edges[from] {
			allowed[to] = true
		}
		for _, to := range AllStatuses {
			if got := from.CanTransitionTo(to); got != allowed[to] {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, allowed[to])
			}
		}
	}

	if StatusPending.CanTransitionTo(StatusCompleted) {
		t.Error("pending must not complete directly")
	}
}

func TestJobStatusEncoding(t *testing.T) {
	for _, s := range AllStatuses {
		parsed, err := ParseJobStatus(s.String())
		if err != nil {
			t.Fatalf("failed to parse %s: %v", s, err)
		}
		if parsed != s {
			t.Errorf("expected %s, got %s", s, parsed)
		}
	}

	data, err := json.Marshal(struct {
		Status JobStatus `json:"status"`
	}{StatusFetchingInfo})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(data) != `{"status":"fetching_info"}` {
		t.Errorf("unexpected JSON %s", data)
	}

	var s JobStatus
	if err := s.Scan([]byte("cancelled")); err != nil || s != StatusCancelled {
		t.Errorf("expected cancelled from Scan, got %s (%v)", s, err)
	}

	if _, err := ParseJobStatus("paused"); err == nil {
		t.Error("expected error for unknown status")
	}
}
