package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/runctx"
)

// TaskState is a state of the task state machine.
type TaskState string

// Task states.
const (
	TaskIdle      TaskState = "idle"
	TaskRunning   TaskState = "running"
	TaskPreCheck  TaskState = "pre_check"
	TaskExecuting TaskState = "executing"
	TaskPostCheck TaskState = "post_check"
	TaskRetrying  TaskState = "retrying"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskAborted   TaskState = "aborted"
)

// ErrTaskBusy is returned when a task instance is asked to run twice at once.
var ErrTaskBusy = errors.New("task: already running")

// TaskConfig describes a task.
type TaskConfig struct {
	ID                            string
	Name                          string
	Job                           Job
	Condition                     Condition
	Retries                       int
	WaitBeforeRetry               time.Duration
	ContinueOnError               bool
	CheckConditionBeforeExecution bool
}

// Task runs one job, optionally gated by a condition, under a retry policy.
type Task struct {
	cfg   TaskConfig
	retry RetryPolicy
	bus   Publisher

	mu      sync.Mutex
	state   TaskState
	busy    bool
	failed  bool
	aborted bool
	lastErr error
}

// NewTask validates cfg and builds a task.
func NewTask(cfg TaskConfig, bus Publisher) (*Task, error) {
	if cfg.ID == "" {
		return nil, NewValidationError("task id is required")
	}
	if cfg.Job == nil {
		return nil, NewValidationError("task %q has no job", cfg.Name)
	}
	if cfg.Retries < 0 {
		return nil, NewValidationError("task %q: retries must be >= 0", cfg.Name)
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return &Task{
		cfg:   cfg,
		retry: NewRetryPolicy(cfg.Retries, cfg.WaitBeforeRetry),
		bus:   publisherOrNoop(bus),
		state: TaskIdle,
	}, nil
}

// ID returns the task id.
func (t *Task) ID() string { return t.cfg.ID }

// Name returns the task name.
func (t *Task) Name() string { return t.cfg.Name }

// Job returns the task's job.
func (t *Task) Job() Job { return t.cfg.Job }

// Condition returns the task's condition, or nil.
func (t *Task) Condition() Condition { return t.cfg.Condition }

// ContinueOnError reports whether a routine should carry on past this
// task's failure.
func (t *Task) ContinueOnError() bool { return t.cfg.ContinueOnError }

// RetryPolicy returns the policy derived from retries and waitBeforeRetry.
func (t *Task) RetryPolicy() RetryPolicy { return t.retry }

// State returns the current state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Failed reports whether the last run ended in failure.
func (t *Task) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// Aborted reports whether the last run was cancelled.
func (t *Task) Aborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// LastError returns the error that ended the last run, if any.
func (t *Task) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// RunOption adjusts a single task run.
type RunOption func(*runOptions)

type runOptions struct {
	payload            map[string]any
	conditionSatisfied bool
}

// WithPayload passes the firing stimulus' payload to the job.
func WithPayload(p map[string]any) RunOption {
	return func(o *runOptions) { o.payload = p }
}

// WithConditionSatisfied marks the condition as already met by a recent
// routine auto-check, so the run finishes without executing the job.
func WithConditionSatisfied() RunOption {
	return func(o *runOptions) { o.conditionSatisfied = true }
}

// Run executes the task state machine. It returns nil on completion, an
// AbortError when cancelled, and the last attempt error otherwise. A nil
// parent gets a fresh execution log root.
func (t *Task) Run(ctx context.Context, parent *runctx.Node, opts ...RunOption) error {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		return ErrTaskBusy
	}
	t.busy = true
	t.failed, t.aborted, t.lastErr = false, false, nil
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.busy = false
		t.mu.Unlock()
	}()

	var node *runctx.Node
	if parent == nil {
		node = runctx.NewRoot(t.cfg.ID, "task", t.cfg.Name)
	} else {
		node = parent.Child(t.cfg.ID, "task", t.cfg.Name)
	}
	started := time.Now()

	if ctx.Err() != nil {
		return t.settleCancelled(ctx, node, 0, started)
	}

	t.setState(TaskRunning)
	t.emit(eventbus.TaskRunning, node, map[string]any{"max_attempts": t.retry.Attempts()})
	node.Info("task started", "max_attempts", t.retry.Attempts())

	cond := t.cfg.Condition
	if cond != nil && o.conditionSatisfied {
		node.Info("condition already met by auto-check, finishing execution")
		return t.complete(node, 0, started)
	}

	if cond != nil && t.cfg.CheckConditionBeforeExecution {
		t.setState(TaskPreCheck)
		met, err := t.evaluate(ctx, node, "pre-check")
		if ctx.Err() != nil {
			return t.settleCancelled(ctx, node, 0, started)
		}
		if err == nil && met {
			node.Info("condition already met, finishing execution")
			return t.complete(node, 0, started)
		}
	}

	var lastErr error
	attempt := 0
	for attempt = 1; attempt <= t.retry.Attempts(); attempt++ {
		t.setState(TaskExecuting)
		err := t.attempt(ctx, node, attempt, o.payload)
		if err == nil {
			return t.complete(node, attempt, started)
		}
		if ctx.Err() != nil {
			return t.settleCancelled(ctx, node, attempt, started)
		}

		lastErr = err
		if errors.Is(err, ErrTimeout) {
			t.emit(eventbus.TaskTimeout, node, map[string]any{"attempt": attempt, "error": err.Error()})
		}
		if errors.Is(err, ErrValidation) {
			node.Error("invalid parameters, not retrying", "error", err)
			break
		}
		if t.retry.IsLast(attempt) {
			break
		}

		t.setState(TaskRetrying)
		node.Warn("attempt failed, retrying",
			"attempt", attempt, "next_attempt", attempt+1, "delay_ms", t.retry.Delay.Milliseconds(), "error", err)
		t.emit(eventbus.TaskRetrying, node, map[string]any{
			"attempt":      attempt,
			"next_attempt": attempt + 1,
			"delay_ms":     t.retry.Delay.Milliseconds(),
			"error":        err.Error(),
		})

		if t.retry.Wait(ctx) != nil {
			return t.settleCancelled(ctx, node, attempt, started)
		}
	}

	if attempt > t.retry.Attempts() {
		attempt = t.retry.Attempts()
	}
	return t.fail(node, attempt, started, lastErr)
}

// attempt executes the job once and, when configured, post-checks the condition.
func (t *Task) attempt(ctx context.Context, node *runctx.Node, attempt int, payload map[string]any) error {
	job := t.cfg.Job
	jobNode := node.Child(job.ID(), "job", job.Name())
	jobNode.Info("executing job", "type", job.Type(), "attempt", attempt)

	if err := job.Execute(ctx, ExecuteRequest{Payload: payload, Log: jobNode}); err != nil {
		if IsAbort(err) {
			jobNode.Warn("job aborted", "error", err)
		} else {
			jobNode.Error("job failed", "error", err)
		}
		return err
	}
	jobNode.Info("job finished")

	if t.cfg.Condition == nil {
		return nil
	}

	t.setState(TaskPostCheck)
	met, err := t.evaluate(ctx, node, "post-check")
	if err != nil {
		if IsAbort(err) {
			return err
		}
		return fmt.Errorf("condition evaluation failed: %w", err)
	}
	if !met {
		return ErrConditionNotMet
	}
	return nil
}

// evaluate runs the condition and logs the three possible outcomes distinctly.
func (t *Task) evaluate(ctx context.Context, node *runctx.Node, phase string) (bool, error) {
	cond := t.cfg.Condition
	condNode := node.Child(cond.ID(), "condition", cond.Name())
	condNode.Debug("evaluating condition", "phase", phase, "type", cond.Type(),
		"timeout_ms", cond.TimeoutValue().Milliseconds())

	met, err := cond.Evaluate(ctx, EvaluateRequest{Log: condNode})
	data := map[string]any{"phase": phase, "condition_id": cond.ID(), "met": met}

	switch {
	case err != nil && IsAbort(err):
		condNode.Warn("condition evaluation aborted", "phase", phase)
	case err != nil:
		condNode.Warn("condition evaluation failed", "phase", phase, "error", err)
		data["error"] = err.Error()
	case met:
		condNode.Info("condition met", "phase", phase)
	default:
		condNode.Info("condition not met", "phase", phase)
	}

	t.emit(eventbus.TaskConditionChecked, node, data)
	return met && err == nil, err
}

func (t *Task) complete(node *runctx.Node, attempts int, started time.Time) error {
	t.mu.Lock()
	t.state = TaskCompleted
	t.mu.Unlock()

	node.Info("task completed", "attempts", attempts)
	t.emit(eventbus.TaskCompleted, node, map[string]any{
		"attempts":    attempts,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

func (t *Task) fail(node *runctx.Node, attempts int, started time.Time, err error) error {
	if err == nil {
		err = ErrConditionNotMet
	}

	t.mu.Lock()
	t.state = TaskFailed
	t.failed = true
	t.lastErr = err
	t.mu.Unlock()

	node.Error("task failed", "attempts", attempts, "error", err)
	t.emit(eventbus.TaskFailed, node, map[string]any{
		"attempts":    attempts,
		"error":       err.Error(),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return err
}

// settleCancelled ends a run whose context is done. A cancellation caused
// by the routine's taskTimeout is a failure; every other cause is an abort.
func (t *Task) settleCancelled(ctx context.Context, node *runctx.Node, attempts int, started time.Time) error {
	cause := context.Cause(ctx)

	if errors.Is(cause, ErrTaskTimeout) {
		t.emit(eventbus.TaskTimeout, node, map[string]any{"attempt": attempts, "error": cause.Error()})
		return t.fail(node, attempts, started, cause)
	}

	abortErr := &AbortError{Msg: fmt.Sprintf("Task %q aborted", t.cfg.Name), Cause: cause}

	t.mu.Lock()
	t.state = TaskAborted
	t.aborted = true
	t.failed = false
	t.lastErr = abortErr
	t.mu.Unlock()

	node.Warn("task aborted", "attempts", attempts, "cause", causeText(cause))
	t.emit(eventbus.TaskAborted, node, map[string]any{
		"attempts": attempts,
		"cause":    causeText(cause),
	})
	return abortErr
}

func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) emit(kind eventbus.Kind, node *runctx.Node, data map[string]any) {
	t.bus.Publish(eventbus.Event{
		Kind:       kind,
		EntityType: eventbus.EntityTask,
		EntityID:   t.cfg.ID,
		Name:       t.cfg.Name,
		RunID:      node.RunID(),
		Data:       data,
	})
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
