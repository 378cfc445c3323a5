package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Control errors, mapped to [ErrorKind] at the API boundary
	ErrNotFound   = fmt.Errorf("not found")
	ErrConflict   = fmt.Errorf("conflict")
	ErrValidation = fmt.Errorf("validation failed")

	ErrQueueFull       = fmt.Errorf("%w: queue is full", ErrConflict)
	ErrAlreadyActive   = fmt.Errorf("%w: a job is already active", ErrConflict)
	ErrDuplicateSource = fmt.Errorf("%w: source already subscribed", ErrConflict)
	ErrJobFinished     = fmt.Errorf("%w: job already finished", ErrConflict)
	ErrJobActive       = fmt.Errorf("%w: job is still active", ErrConflict)
	ErrUnsupportedURL  = fmt.Errorf("%w: unsupported URL", ErrValidation)

	// Job lifecycle errors
	ErrInvalidTransition = fmt.Errorf("invalid status transition")
	ErrCancelRequested   = fmt.Errorf("cancellation requested")
	ErrShuttingDown      = fmt.Errorf("worker pool shutting down")

	// Pipeline errors
	ErrTransient         = fmt.Errorf("transient failure")
	ErrPhaseFailed       = fmt.Errorf("phase failed")
	ErrUnsupportedFormat = fmt.Errorf("unsupported audio format")
	ErrTimeout           = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrMissingArgument = fmt.Errorf("%w: missing required argument", ErrValidation)
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrValidation)
)

// ErrorKind is the machine-readable category of an error returned by the control API.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindValidation ErrorKind = "validation"
	KindInternal   ErrorKind = "internal"
)

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	default:
		return KindInternal
	}
}

// ErrorForKind returns the sentinel matching kind, used to rebuild typed errors from API responses.
func ErrorForKind(kind ErrorKind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindValidation:
		return ErrValidation
	default:
		return ErrAPIRequest
	}
}

// ConflictError is returned when a request is rejected because of existing work.
//
// Err is one of the conflict sentinels and ActiveJobID names the blocking job, if any.
type ConflictError struct {
	Err         error
	ActiveJobID string
}

func (e *ConflictError) Error() string {
	if e.ActiveJobID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (job %s)", e.Err, e.ActiveJobID)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ActiveJobID extracts the blocking job id from a [ConflictError] anywhere in the chain.
func ActiveJobID(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.ActiveJobID
	}
	return ""
}
