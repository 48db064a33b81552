package automation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuardJob_Outcomes(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name    string
		ctx     func() context.Context
		timeout time.Duration
		op      func(ctx context.Context) error
		wantIs  error
		wantMsg string
	}{
		{
			name:    "success",
			ctx:     context.Background,
			op:      func(context.Context) error { return nil },
			wantIs:  nil,
			wantMsg: "",
		},
		{
			name:    "op error passes through",
			ctx:     context.Background,
			op:      func(context.Context) error { return boom },
			wantIs:  boom,
			wantMsg: "boom",
		},
		{
			name: "cancelled before start",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			op:      func(context.Context) error { return nil },
			wantIs:  ErrAborted,
			wantMsg: `"job" was aborted before execution`,
		},
		{
			name:    "watcher elapses",
			ctx:     context.Background,
			timeout: 20 * time.Millisecond,
			op: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
			wantIs:  ErrTimeout,
			wantMsg: `"job" timed out after 20 ms`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := GuardJob(tt.ctx(), "job", tt.timeout, tt.op)
			if tt.wantIs == nil {
				if err != nil {
					t.Fatalf("GuardJob() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantIs) {
				t.Fatalf("GuardJob() error = %v, want errors.Is %v", err, tt.wantIs)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("GuardJob() message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestGuardJob_AbortedDuring(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	reason := errors.New("operator stop")

	started := make(chan struct{})
	go func() {
		<-started
		cancel(reason)
	}()

	err := GuardJob(ctx, "blinds", 0, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	if !IsAbort(err) {
		t.Fatalf("GuardJob() error = %v, want abort", err)
	}
	if err.Error() != `"blinds" was aborted` {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, reason) {
		t.Error("abort error should unwrap to the cancellation cause")
	}
}

func TestGuardProbe_ReturnsValue(t *testing.T) {
	ok, err := GuardProbe(context.Background(), "probe", time.Second, func(context.Context) (bool, error) {
		return true, nil
	})
	if err != nil || !ok {
		t.Errorf("GuardProbe() = %v, %v; want true, nil", ok, err)
	}
}

// ─── Retry Policy ──────────────────────────────────────────────────

func TestNewRetryPolicy(t *testing.T) {
	tests := []struct {
		retries      int
		wantAttempts int
	}{
		{retries: -3, wantAttempts: 1},
		{retries: 0, wantAttempts: 1},
		{retries: 4, wantAttempts: 5},
	}
	for _, tt := range tests {
		p := NewRetryPolicy(tt.retries, -time.Second)
		if p.Attempts() != tt.wantAttempts {
			t.Errorf("retries=%d: Attempts() = %d, want %d", tt.retries, p.Attempts(), tt.wantAttempts)
		}
		if p.Delay != 0 {
			t.Errorf("retries=%d: negative delay should clamp to 0, got %v", tt.retries, p.Delay)
		}
		if !p.IsLast(tt.wantAttempts) || (tt.wantAttempts > 1 && p.IsLast(1)) {
			t.Errorf("retries=%d: IsLast misreports", tt.retries)
		}
	}
}

func TestRetryPolicy_WaitCancelled(t *testing.T) {
	p := NewRetryPolicy(1, time.Hour)
	ctx, cancel := context.WithCancelCause(context.Background())
	reason := errors.New("stop")
	cancel(reason)

	start := time.Now()
	if err := p.Wait(ctx); !errors.Is(err, reason) {
		t.Errorf("Wait() = %v, want cause %v", err, reason)
	}
	if time.Since(start) > time.Second {
		t.Error("Wait() should return promptly on cancellation")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if IsRetryable(NewValidationError("bad")) {
		t.Error("validation errors are never retried")
	}
	if IsRetryable(abortedDuring("x", nil)) {
		t.Error("aborts are never retried")
	}
	if !IsRetryable(NewTransportError("refused", errors.New("econnrefused"))) {
		t.Error("transport errors should be retryable")
	}
	if !IsRetryable(ErrConditionNotMet) {
		t.Error("unmet conditions should be retryable")
	}
}
