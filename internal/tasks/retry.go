package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/ytlib/internal/services"
	"github.com/desertthunder/ytlib/internal/shared"
)

// RetryPolicy bounds retries of transient collaborator failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration // per attempt; zero means no limit
}

// RetryPolicyFrom builds a policy from config.
func RetryPolicyFrom(c shared.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff(),
		MaxBackoff:     c.MaxBackoff(),
		CallTimeout:    c.CallTimeout(),
	}
}

// Backoff returns the wait before the given retry (1-based), doubling from InitialBackoff up to MaxBackoff.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < retry && d < p.MaxBackoff; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// Do calls op until it succeeds, returns a non-transient error, or the attempts run out.
//
// An attempt that exceeds CallTimeout while ctx is still live counts as transient.
// onRetry, when set, is called before each backoff wait.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error, onRetry func(attempt int, err error)) error {
	attempts := max(p.MaxAttempts, 1)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.attempt(ctx, op)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !services.IsTransient(err) || attempt == attempts {
			return err
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (p RetryPolicy) attempt(ctx context.Context, op func(context.Context) error) error {
	if p.CallTimeout <= 0 {
		return op(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()

	err := op(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return services.Transient(shared.ErrTimeout)
	}
	return err
}
