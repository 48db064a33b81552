package automation

import (
	"context"
	"time"
)

// RetryPolicy bounds how often and how fast a task re-attempts its job.
type RetryPolicy struct {
	// MaxAttempts is the total number of job executions, at least 1.
	MaxAttempts int
	// Delay is the pause between a failed attempt and the next one.
	Delay time.Duration
}

// NewRetryPolicy converts a task's retries count into a policy allowing
// retries+1 attempts. Negative values are treated as zero.
func NewRetryPolicy(retries int, delay time.Duration) RetryPolicy {
	if retries < 0 {
		retries = 0
	}
	if delay < 0 {
		delay = 0
	}
	return RetryPolicy{MaxAttempts: retries + 1, Delay: delay}
}

// Attempts returns the total attempts allowed.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Retries returns the number of re-attempts after the first.
func (p RetryPolicy) Retries() int {
	return p.Attempts() - 1
}

// IsLast reports whether attempt (1-based) is the final one.
func (p RetryPolicy) IsLast(attempt int) bool {
	return attempt >= p.Attempts()
}

// Wait pauses for Delay. It returns the context's cause if ctx is done
// first, and nil otherwise.
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}

	timer := time.NewTimer(p.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
