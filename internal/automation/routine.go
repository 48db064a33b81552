package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/runctx"
)

// RunStatus is the terminal status of a routine run.
type RunStatus string

// Routine run statuses.
const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	// StatusPartial is a settled run in which at least one task failed but
	// the failure policy let the rest continue.
	StatusPartial  RunStatus = "partial"
	StatusFailed   RunStatus = "failed"
	StatusAborted  RunStatus = "aborted"
	StatusTimedOut RunStatus = "timed_out"
)

// RoutineConfig describes a routine.
type RoutineConfig struct {
	ID              string
	Name            string
	Tasks           []*Task
	TriggerIDs      []string
	RunInSync       bool
	ContinueOnError bool
	// TaskTimeout bounds each task's whole run. Zero disables it.
	TaskTimeout time.Duration
	// Timeout bounds the whole routine run. Zero disables it.
	Timeout time.Duration
	Enabled bool
	// AutoCheckConditionEvery enables periodic condition pre-evaluation.
	AutoCheckConditionEvery time.Duration
}

// TaskOutcome is a task's result within one routine run.
type TaskOutcome struct {
	TaskID string    `json:"task_id"`
	Name   string    `json:"name"`
	State  TaskState `json:"state"`
	Error  string    `json:"error,omitempty"`
}

// RunResult summarises a routine run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	RoutineID  string        `json:"routine_id"`
	Status     RunStatus     `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Fulfilled  []string      `json:"fulfilled"`
	Rejected   []TaskOutcome `json:"rejected"`
	Aborted    []string      `json:"aborted"`
	Skipped    []string      `json:"skipped"`
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Routine runs a set of tasks sequentially or concurrently.
type Routine struct {
	cfg    RoutineConfig
	bus    Publisher
	logger Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelCauseFunc
	last    *RunResult

	autoMu    sync.Mutex
	satisfied map[string]time.Time
	checkedAt time.Time
}

// NewRoutine validates cfg and builds a routine.
//
// Parameters:
//   - cfg: Routine definition; each task may appear only once
//   - bus: Event publisher for routine lifecycle events (may be nil)
//   - logger: Logger for auto-check diagnostics (may be nil)
//
// Returns a ValidationError for a missing id, a nil or duplicate task, or
// a negative duration.
func NewRoutine(cfg RoutineConfig, bus Publisher, logger Logger) (*Routine, error) {
	if cfg.ID == "" {
		return nil, NewValidationError("routine id is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	if cfg.TaskTimeout < 0 || cfg.Timeout < 0 || cfg.AutoCheckConditionEvery < 0 {
		return nil, NewValidationError("routine %q: durations must not be negative", cfg.Name)
	}
	seen := make(map[*Task]bool, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		if task == nil {
			return nil, NewValidationError("routine %q: nil task", cfg.Name)
		}
		if seen[task] {
			return nil, NewValidationError("routine %q: task %q listed twice", cfg.Name, task.ID())
		}
		seen[task] = true
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Routine{
		cfg:       cfg,
		bus:       publisherOrNoop(bus),
		logger:    logger,
		satisfied: make(map[string]time.Time),
	}, nil
}

// ID returns the routine id.
func (r *Routine) ID() string { return r.cfg.ID }

// Name returns the routine name.
func (r *Routine) Name() string { return r.cfg.Name }

// Config returns a copy of the routine configuration.
func (r *Routine) Config() RoutineConfig { return r.cfg }

// Tasks returns the routine's tasks in declared order.
func (r *Routine) Tasks() []*Task {
	out := make([]*Task, len(r.cfg.Tasks))
	copy(out, r.cfg.Tasks)
	return out
}

// TriggerIDs returns the ids of the triggers bound to the routine.
func (r *Routine) TriggerIDs() []string { return r.cfg.TriggerIDs }

// Enabled reports whether the routine accepts runs.
func (r *Routine) Enabled() bool { return r.cfg.Enabled }

// IsRunning reports whether a run is in progress.
func (r *Routine) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastResult returns the result of the most recent settled run.
func (r *Routine) LastResult() *RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Abort cancels the current run with cause. Every in-flight task observes
// the cancellation and the run settles as aborted.
func (r *Routine) Abort(cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.cancel == nil {
		return ErrRoutineNotRunning
	}
	if cause == nil {
		cause = errors.New("routine aborted")
	}
	r.cancel(cause)
	return nil
}

// Run executes the routine once. It returns ErrRoutineRunning while another
// run is in progress. The returned error is nil for completed and partial
// runs; otherwise it describes the failure, abort or timeout. A nil root
// gets a fresh execution log tree.
func (r *Routine) Run(ctx context.Context, root *runctx.Node, payload map[string]any) (*RunResult, error) {
	runCtx, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return r.run(runCtx, root, payload)
}

// acquire marks the routine running and returns the context of the new run.
// A successful acquire must be followed by run, which releases it.
func (r *Routine) acquire(ctx context.Context) (context.Context, error) {
	if !r.cfg.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrRoutineDisabled, r.cfg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil, ErrRoutineRunning
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	r.running = true
	r.cancel = cancel
	return runCtx, nil
}

func (r *Routine) run(runCtx context.Context, root *runctx.Node, payload map[string]any) (*RunResult, error) {
	if r.cfg.Timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(runCtx, r.cfg.Timeout,
			fmt.Errorf("%w: %w", ErrRoutineTimeout, NewTimeoutError(r.cfg.Name, r.cfg.Timeout)))
		defer stop()
	}

	if root == nil {
		root = runctx.NewRoot("", "routine", r.cfg.Name)
	}

	res := &RunResult{
		RunID:     root.RunID(),
		RoutineID: r.cfg.ID,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	// The terminal event goes out after release so listeners that react to
	// it, including triggers bound to this routine, see it idle.
	release := sync.OnceFunc(func() {
		r.mu.Lock()
		if r.cancel != nil {
			r.cancel(nil)
		}
		r.running = false
		r.cancel = nil
		r.last = res
		r.mu.Unlock()
	})
	defer release()

	mode := "parallel"
	if r.cfg.RunInSync {
		mode = "sequential"
	}
	root.Info("routine started", "mode", mode, "continue_on_error", r.cfg.ContinueOnError, "tasks", len(r.cfg.Tasks))
	r.emit(eventbus.RoutineRunning, root, map[string]any{"mode": mode, "tasks": len(r.cfg.Tasks)})

	agg := &aggregate{res: res}
	var failErr error
	switch {
	case r.cfg.RunInSync:
		failErr = r.runSequential(runCtx, root, payload, agg)
	case r.cfg.ContinueOnError:
		r.runSettleAll(runCtx, root, payload, agg)
	default:
		failErr = r.runFailFast(runCtx, root, payload, agg)
	}

	res.FinishedAt = time.Now()
	kind, err := r.settle(runCtx, root, res, failErr)
	release()
	r.emit(kind, root, map[string]any{
		"status":      string(res.Status),
		"fulfilled":   res.Fulfilled,
		"rejected":    res.Rejected,
		"aborted":     res.Aborted,
		"skipped":     res.Skipped,
		"duration_ms": res.Duration().Milliseconds(),
	})
	return res, err
}

// settle picks the terminal status and the event announcing it.
// Cancellation is checked before failure.
func (r *Routine) settle(runCtx context.Context, root *runctx.Node, res *RunResult, failErr error) (eventbus.Kind, error) {
	if runCtx.Err() != nil {
		cause := context.Cause(runCtx)
		if errors.Is(cause, ErrRoutineTimeout) {
			res.Status = StatusTimedOut
			root.Warn("routine timed out", "timeout_ms", r.cfg.Timeout.Milliseconds())
			return eventbus.RoutineTimedOut, NewTimeoutError(r.cfg.Name, r.cfg.Timeout)
		}
		res.Status = StatusAborted
		root.Warn("routine aborted", "cause", causeText(cause))
		return eventbus.RoutineAborted, &AbortError{Msg: fmt.Sprintf("Routine %q aborted", r.cfg.Name), Cause: cause}
	}

	if failErr != nil {
		res.Status = StatusFailed
		root.Error("routine failed", "error", failErr)
		return eventbus.RoutineFailed, fmt.Errorf("routine %q failed: %w", r.cfg.Name, failErr)
	}

	if len(res.Rejected) > 0 {
		res.Status = StatusPartial
		for _, o := range res.Rejected {
			root.Warn("task failed during run", "task_id", o.TaskID, "error", o.Error)
		}
		root.Info("routine completed with failures", "failed_tasks", len(res.Rejected))
	} else {
		res.Status = StatusCompleted
		root.Info("routine completed")
	}
	return eventbus.RoutineCompleted, nil
}

// aggregate collects task outcomes from concurrent goroutines.
type aggregate struct {
	mu  sync.Mutex
	res *RunResult
}

func (a *aggregate) record(task *Task, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case err == nil:
		a.res.Fulfilled = append(a.res.Fulfilled, task.ID())
	case IsAbort(err):
		a.res.Aborted = append(a.res.Aborted, task.ID())
	default:
		a.res.Rejected = append(a.res.Rejected, TaskOutcome{
			TaskID: task.ID(), Name: task.Name(), State: TaskFailed, Error: err.Error(),
		})
	}
}

func (a *aggregate) skip(tasks []*Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range tasks {
		a.res.Skipped = append(a.res.Skipped, t.ID())
	}
}

// tolerates reports whether the routine carries on after task fails.
func (r *Routine) tolerates(task *Task) bool {
	return r.cfg.ContinueOnError || task.ContinueOnError()
}

func (r *Routine) runSequential(ctx context.Context, root *runctx.Node, payload map[string]any, agg *aggregate) error {
	for i, task := range r.cfg.Tasks {
		if ctx.Err() != nil {
			agg.skip(r.cfg.Tasks[i:])
			return nil
		}

		err := r.runTask(ctx, root, task, payload)
		agg.record(task, err)

		switch {
		case err == nil:
		case IsAbort(err):
			agg.skip(r.cfg.Tasks[i+1:])
			return nil
		case r.tolerates(task):
			root.Warn("task failed, continuing with next task", "task_id", task.ID(), "error", err)
		default:
			root.Error("task failed, aborting remaining tasks", "task_id", task.ID(), "remaining", len(r.cfg.Tasks)-i-1)
			agg.skip(r.cfg.Tasks[i+1:])
			return err
		}
	}
	return nil
}

func (r *Routine) runSettleAll(ctx context.Context, root *runctx.Node, payload map[string]any, agg *aggregate) {
	var wg sync.WaitGroup
	for _, task := range r.cfg.Tasks {
		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			agg.record(task, r.runTask(ctx, root, task, payload))
		}(task)
	}
	wg.Wait()
}

// runFailFast launches every task; the first intolerable failure cancels
// the siblings through the group context.
func (r *Routine) runFailFast(ctx context.Context, root *runctx.Node, payload map[string]any, agg *aggregate) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range r.cfg.Tasks {
		g.Go(func() error {
			err := r.runTask(gctx, root, task, payload)
			agg.record(task, err)
			if err == nil || IsAbort(err) {
				return nil
			}
			if r.tolerates(task) {
				root.Warn("task failed, siblings continue", "task_id", task.ID(), "error", err)
				return nil
			}
			return fmt.Errorf("task %q: %w", task.Name(), err)
		})
	}
	return g.Wait()
}

// runTask applies the per-task timeout and any auto-check short-circuit.
func (r *Routine) runTask(ctx context.Context, root *runctx.Node, task *Task, payload map[string]any) error {
	if r.cfg.TaskTimeout > 0 {
		cause := fmt.Errorf("%w: %w", ErrTaskTimeout, &TimeoutError{
			Msg:   fmt.Sprintf("Task %q timed out after %d ms", task.Name(), r.cfg.TaskTimeout.Milliseconds()),
			After: r.cfg.TaskTimeout,
		})
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, r.cfg.TaskTimeout, cause)
		defer cancel()
	}

	opts := []RunOption{WithPayload(payload)}
	if r.recentlySatisfied(task.ID()) {
		opts = append(opts, WithConditionSatisfied())
	}
	return task.Run(ctx, root, opts...)
}

func (r *Routine) emit(kind eventbus.Kind, root *runctx.Node, data map[string]any) {
	r.bus.Publish(eventbus.Event{
		Kind:       kind,
		EntityType: eventbus.EntityRoutine,
		EntityID:   r.cfg.ID,
		Name:       r.cfg.Name,
		RunID:      root.RunID(),
		Data:       data,
	})
}
