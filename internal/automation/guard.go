package automation

import (
	"context"
	"errors"
	"time"
)

// GuardJob runs op under ctx on behalf of the named unit of work.
//
// Cancellation before start yields `"<name>" was aborted before execution`;
// cancellation while op runs yields `"<name>" was aborted`. When timeout is
// positive, op races a timer and loses with `"<name>" timed out after N ms`.
// op receives a context that is cancelled in both cases and is expected to
// unwind promptly.
func GuardJob(ctx context.Context, name string, timeout time.Duration, op func(ctx context.Context) error) error {
	_, err := guard(ctx, name, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// GuardProbe is GuardJob for operations returning a boolean.
func GuardProbe(ctx context.Context, name string, timeout time.Duration, op func(ctx context.Context) (bool, error)) (bool, error) {
	return guard(ctx, name, timeout, op)
}

type outcome[T any] struct {
	val T
	err error
}

func guard[T any](ctx context.Context, name string, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, abortedBefore(name, context.Cause(ctx))
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(opCtx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil && !errors.Is(res.err, ErrAborted) {
			return zero, abortedDuring(name, context.Cause(ctx))
		}
		return res.val, res.err
	case <-ctx.Done():
		return zero, abortedDuring(name, context.Cause(ctx))
	case <-timer:
		return zero, NewTimeoutError(name, timeout)
	}
}
