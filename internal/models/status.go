package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/desertthunder/ytlib/internal/shared"
)

// JobStatus is a state in the job lifecycle.
//
//	pending → fetching_info → downloading → importing → completed
//	any active state → failed | cancelled
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusFetchingInfo
	StatusDownloading
	StatusImporting
	StatusCompleted
	StatusFailed
	StatusCancelled

	numStatuses
)

type statusTraits struct {
	name    string
	active  bool
	running bool
	next    []JobStatus
}

// statusTable holds every status exactly once, indexed by value.
var statusTable = [...]statusTraits{
	StatusPending: {
		name:   "pending",
		active: true,
		next:   []JobStatus{StatusFetchingInfo, StatusFailed, StatusCancelled},
	},
	StatusFetchingInfo: {
		name:    "fetching_info",
		active:  true,
		running: true,
		next:    []JobStatus{StatusDownloading, StatusFailed, StatusCancelled},
	},
	StatusDownloading: {
		name:    "downloading",
		active:  true,
		running: true,
		next:    []JobStatus{StatusImporting, StatusFailed, StatusCancelled},
	},
	StatusImporting: {
		name:    "importing",
		active:  true,
		running: true,
		next:    []JobStatus{StatusCompleted, StatusFailed, StatusCancelled},
	},
	StatusCompleted: {name: "completed"},
	StatusFailed:    {name: "failed"},
	StatusCancelled: {name: "cancelled"},
}

// Adding a status without a statusTable entry is a compile error.
var _ = [1]struct{}{}[int(numStatuses)-len(statusTable)]

// AllStatuses lists every status in lifecycle order.
var AllStatuses = func() []JobStatus {
	all := make([]JobStatus, 0, numStatuses)
	for s := JobStatus(0); s < numStatuses; s++ {
		all = append(all, s)
	}
	return all
}()

func (s JobStatus) traits() statusTraits {
	if !s.Valid() {
		return statusTraits{name: fmt.Sprintf("unknown(%d)", uint8(s))}
	}
	return statusTable[s]
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s < numStatuses
}

func (s JobStatus) String() string {
	return s.traits().name
}

// IsActive reports whether the job is admitted and not yet terminal: pending, fetching_info, downloading or importing.
func (s JobStatus) IsActive() bool {
	return s.traits().active
}

// IsRunning reports whether a worker is executing the job. Pending jobs are active but not running.
func (s JobStatus) IsRunning() bool {
	return s.traits().running
}

// IsFinished is the complement of [JobStatus.IsActive].
func (s JobStatus) IsFinished() bool {
	return !s.IsActive()
}

// CanTransitionTo reports whether next is an edge out of s.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, candidate := range s.traits().next {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseJobStatus converts a status name back into a [JobStatus].
func ParseJobStatus(name string) (JobStatus, error) {
	for s := JobStatus(0); s < numStatuses; s++ {
		if statusTable[s].name == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown job status %q", shared.ErrInvalidArgument, name)
}

func (s JobStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal %s", s)
	}
	return []byte(s.String()), nil
}

func (s *JobStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseJobStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value implements [driver.Valuer] so statuses are stored by name.
func (s JobStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot store %s", s)
	}
	return s.String(), nil
}

// Scan implements [sql.Scanner].
func (s *JobStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into JobStatus", src)
	}
}

// ActiveStatuses returns the statuses for which [JobStatus.IsActive] holds.
func ActiveStatuses() []JobStatus {
	var active []JobStatus
	for _, s := range AllStatuses {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}
