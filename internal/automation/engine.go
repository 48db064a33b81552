package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/runctx"
)

// Run sources recorded with each execution.
const (
	SourceTrigger = "trigger"
	SourceAPI     = "api"
	SourceCLI     = "cli"
)

// persistTimeout bounds history writes so a slow disk cannot hold a run open.
const persistTimeout = 5 * time.Second

var errEngineStopping = errors.New("engine stopping")

// RunRecord is the persisted form of one routine execution.
type RunRecord struct {
	ID          string
	RoutineID   string
	RoutineName string
	TriggerID   string
	Source      string
	Status      RunStatus
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Log         runctx.ExecutionLog
}

// RunStore persists execution records. The audit package implements it.
type RunStore interface {
	CreateRun(ctx context.Context, rec *RunRecord) error
	UpdateRun(ctx context.Context, rec *RunRecord) error
}

// RunRequest identifies who asked for a run.
type RunRequest struct {
	Source    string
	TriggerID string
	Payload   map[string]any
}

// Engine owns a loaded project: it binds triggers to routines, starts the
// trigger stimuli, creates an execution log per run and persists it.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Engine struct {
	registry *Registry
	bus      Publisher
	store    RunStore
	logger   Logger

	mu      sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	started bool
	stops   []func()
	runs    sync.WaitGroup
}

// NewEngine creates an engine and installs itself as the fire handler of
// every trigger in the registry.
//
// Parameters:
//   - registry: Routines and triggers of the loaded project
//   - bus: Event publisher for execution events (may be nil)
//   - store: Execution history; nil disables persistence
//   - logger: Logger instance (may be nil)
func NewEngine(registry *Registry, bus Publisher, store RunStore, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	e := &Engine{
		registry: registry,
		bus:      publisherOrNoop(bus),
		store:    store,
		logger:   logger,
		baseCtx:  context.Background(),
	}
	for _, t := range registry.Triggers() {
		t.SetHandler(e.dispatch)
	}
	return e
}

// Registry returns the engine's project index.
func (e *Engine) Registry() *Registry { return e.registry }

// Start starts every trigger source and routine auto-check. Routine runs
// started by triggers inherit ctx; cancelling it aborts them.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.baseCtx, e.cancel = context.WithCancel(ctx)
	e.started = true
	base := e.baseCtx
	e.mu.Unlock()

	for _, rt := range e.registry.Routines() {
		if rt.Enabled() {
			e.stops = append(e.stops, rt.StartAutoCheck(base))
		}
	}

	var errs []error
	for _, t := range e.registry.Triggers() {
		if err := t.Start(base); err != nil {
			errs = append(errs, fmt.Errorf("starting trigger %q: %w", t.ID(), err))
			continue
		}
		e.logger.Debug("trigger started", "trigger_id", t.ID(), "type", t.Type(), "armed", t.Armed())
	}
	e.logger.Info("automation engine started",
		"routines", len(e.registry.Routines()), "triggers", len(e.registry.Triggers()))
	return errors.Join(errs...)
}

// Stop stops trigger sources, aborts running routines and waits for them
// to settle or for ctx to expire.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	cancel := e.cancel
	e.baseCtx = context.Background()
	stops := e.stops
	e.stops = nil
	e.mu.Unlock()

	var errs []error
	for _, t := range e.registry.Triggers() {
		if err := t.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping trigger %q: %w", t.ID(), err))
		}
	}
	for _, stop := range stops {
		stop()
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for routines: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// RunRoutine runs a routine synchronously and returns its result. The run
// counts towards Stop, which aborts it along with trigger-started runs.
func (e *Engine) RunRoutine(ctx context.Context, id string, req RunRequest) (*RunResult, error) {
	rt, err := e.registry.Routine(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	base := e.baseCtx
	e.runs.Add(1)
	e.mu.Unlock()
	defer e.runs.Done()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(base, func() { cancel(errEngineStopping) })
	defer stop()

	return e.execute(ctx, rt, req)
}

// StartRoutine runs a routine in the background on the engine's context
// and returns immediately.
func (e *Engine) StartRoutine(id string, req RunRequest) error {
	rt, err := e.registry.Routine(id)
	if err != nil {
		return err
	}
	if !rt.Enabled() {
		return fmt.Errorf("%w: %s", ErrRoutineDisabled, id)
	}
	if rt.IsRunning() {
		return ErrRoutineRunning
	}
	e.launch(rt, req)
	return nil
}

// TaskStatus is a snapshot of one task.
type TaskStatus struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	JobType string    `json:"job_type"`
	State   TaskState `json:"state"`
	Failed  bool      `json:"failed"`
	Aborted bool      `json:"aborted"`
}

// RoutineStatus is a snapshot of a routine and its tasks.
type RoutineStatus struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Enabled         bool         `json:"enabled"`
	Running         bool         `json:"running"`
	RunInSync       bool         `json:"run_in_sync"`
	ContinueOnError bool         `json:"continue_on_error"`
	Triggers        []string     `json:"triggers"`
	Tasks           []TaskStatus `json:"tasks"`
	LastAutoCheck   *time.Time   `json:"last_auto_check,omitempty"`
	LastResult      *RunResult   `json:"last_result,omitempty"`
}

// RoutineStatus returns a snapshot of the routine.
func (e *Engine) RoutineStatus(id string) (*RoutineStatus, error) {
	rt, err := e.registry.Routine(id)
	if err != nil {
		return nil, err
	}
	return statusOf(rt), nil
}

// RoutineStatuses returns a snapshot of every routine, sorted by id.
func (e *Engine) RoutineStatuses() []*RoutineStatus {
	routines := e.registry.Routines()
	out := make([]*RoutineStatus, 0, len(routines))
	for _, rt := range routines {
		out = append(out, statusOf(rt))
	}
	return out
}

func statusOf(rt *Routine) *RoutineStatus {
	cfg := rt.Config()
	st := &RoutineStatus{
		ID:              rt.ID(),
		Name:            rt.Name(),
		Enabled:         rt.Enabled(),
		Running:         rt.IsRunning(),
		RunInSync:       cfg.RunInSync,
		ContinueOnError: cfg.ContinueOnError,
		Triggers:        append([]string(nil), cfg.TriggerIDs...),
		LastResult:      rt.LastResult(),
	}
	if at := rt.LastAutoCheck(); !at.IsZero() {
		st.LastAutoCheck = &at
	}
	for _, t := range rt.Tasks() {
		st.Tasks = append(st.Tasks, TaskStatus{
			ID:      t.ID(),
			Name:    t.Name(),
			JobType: t.Job().Type(),
			State:   t.State(),
			Failed:  t.Failed(),
			Aborted: t.Aborted(),
		})
	}
	return st
}

// TriggerStatus is a snapshot of a trigger.
type TriggerStatus struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Armed          bool       `json:"armed"`
	Triggered      bool       `json:"triggered"`
	ReArmOnTrigger bool       `json:"rearm_on_trigger"`
	Fired          int        `json:"fired"`
	LastFired      *time.Time `json:"last_fired,omitempty"`
	Routines       []string   `json:"routines"`
}

// TriggerStatus returns a snapshot of the trigger.
func (e *Engine) TriggerStatus(id string) (*TriggerStatus, error) {
	t, err := e.registry.Trigger(id)
	if err != nil {
		return nil, err
	}
	return e.triggerStatusOf(t), nil
}

// TriggerStatuses returns a snapshot of every trigger, sorted by id.
func (e *Engine) TriggerStatuses() []*TriggerStatus {
	triggers := e.registry.Triggers()
	out := make([]*TriggerStatus, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, e.triggerStatusOf(t))
	}
	return out
}

func (e *Engine) triggerStatusOf(t *Trigger) *TriggerStatus {
	fired, last := t.Stats()
	st := &TriggerStatus{
		ID:             t.ID(),
		Name:           t.Name(),
		Type:           t.Type(),
		Armed:          t.Armed(),
		Triggered:      t.Triggered(),
		ReArmOnTrigger: t.ReArmOnTrigger(),
		Fired:          fired,
		Routines:       []string{},
	}
	if !last.IsZero() {
		st.LastFired = &last
	}
	for _, rt := range e.registry.BoundRoutines(t.ID()) {
		st.Routines = append(st.Routines, rt.ID())
	}
	return st
}

// AbortRoutine cancels the routine's current run.
func (e *Engine) AbortRoutine(id, reason string) error {
	rt, err := e.registry.Routine(id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "aborted by request"
	}
	return rt.Abort(errors.New(reason))
}

// ArmTrigger arms a trigger.
func (e *Engine) ArmTrigger(id string) error {
	t, err := e.registry.Trigger(id)
	if err != nil {
		return err
	}
	t.Arm()
	return nil
}

// DisarmTrigger disarms a trigger.
func (e *Engine) DisarmTrigger(id string) error {
	t, err := e.registry.Trigger(id)
	if err != nil {
		return err
	}
	t.Disarm()
	return nil
}

// FireTrigger fires any trigger as if its stimulus had occurred.
func (e *Engine) FireTrigger(ctx context.Context, id string, payload map[string]any) error {
	t, err := e.registry.Trigger(id)
	if err != nil {
		return err
	}
	return t.Fire(ctx, payload)
}

// Hook fires an api trigger. Other trigger types are rejected so external
// callers cannot impersonate schedules or sockets.
func (e *Engine) Hook(ctx context.Context, id string, payload map[string]any) error {
	t, err := e.registry.Trigger(id)
	if err != nil {
		return err
	}
	if t.Type() != "api" {
		return fmt.Errorf("%w: %s is %q", ErrTriggerNotManual, id, t.Type())
	}
	return t.Fire(ctx, payload)
}

// dispatch is every trigger's fire handler.
func (e *Engine) dispatch(_ context.Context, t *Trigger, payload map[string]any) {
	routines := e.registry.BoundRoutines(t.ID())
	if len(routines) == 0 {
		e.logger.Warn("trigger fired with no bound routines", "trigger_id", t.ID())
		return
	}
	for _, rt := range routines {
		if !rt.Enabled() {
			e.logger.Debug("skipping disabled routine", "routine_id", rt.ID(), "trigger_id", t.ID())
			continue
		}
		if rt.IsRunning() {
			e.logger.Warn("routine already running, trigger ignored", "routine_id", rt.ID(), "trigger_id", t.ID())
			continue
		}
		e.launch(rt, RunRequest{Source: SourceTrigger, TriggerID: t.ID(), Payload: payload})
	}
}

func (e *Engine) launch(rt *Routine, req RunRequest) {
	e.mu.Lock()
	ctx := e.baseCtx
	e.runs.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.runs.Done()
		if _, err := e.execute(ctx, rt, req); err != nil && !errors.Is(err, ErrRoutineRunning) {
			e.logger.Debug("routine run ended with error", "routine_id", rt.ID(), "error", err)
		}
	}()
}

// execute runs a routine under a fresh execution log root and persists it.
func (e *Engine) execute(ctx context.Context, rt *Routine, req RunRequest) (*RunResult, error) {
	runID := uuid.NewString()
	root := runctx.NewRoot(runID, "routine", rt.Name(), runctx.WithLogger(e.logger))
	if req.Source == "" {
		req.Source = SourceAPI
	}
	root.Info("routine requested", "source", req.Source, "trigger_id", req.TriggerID)

	rec := &RunRecord{
		ID:          runID,
		RoutineID:   rt.ID(),
		RoutineName: rt.Name(),
		TriggerID:   req.TriggerID,
		Source:      req.Source,
		Status:      StatusRunning,
		StartedAt:   time.Now().UTC(),
	}

	// Nothing is recorded for a request that never starts.
	runCtx, err := rt.acquire(ctx)
	if err != nil {
		return nil, err
	}
	e.persist(rec, true)

	res, runErr := rt.run(runCtx, root, req.Payload)
	rec.Status = res.Status
	rec.FinishedAt = res.FinishedAt.UTC()
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	rec.Log = root.Tree().Export()
	e.persist(rec, false)

	switch res.Status {
	case StatusFailed:
		e.logger.Error("routine failed", "routine_id", rt.ID(), "run_id", runID, "error", runErr)
	case StatusAborted, StatusTimedOut, StatusPartial:
		e.logger.Warn("routine settled", "routine_id", rt.ID(), "run_id", runID, "status", res.Status)
	default:
		e.logger.Info("routine completed", "routine_id", rt.ID(), "run_id", runID,
			"duration_ms", res.Duration().Milliseconds())
	}
	return res, runErr
}

func (e *Engine) persist(rec *RunRecord, create bool) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	var err error
	if create {
		err = e.store.CreateRun(ctx, rec)
	} else {
		err = e.store.UpdateRun(ctx, rec)
	}
	if err != nil {
		e.logger.Error("failed to persist run record", "run_id", rec.ID, "error", err)
		return
	}
	if !create {
		e.bus.Publish(eventbus.Event{
			Kind:       eventbus.ExecutionPersisted,
			EntityType: eventbus.EntityExecution,
			EntityID:   rec.ID,
			Name:       rec.RoutineName,
			RunID:      rec.ID,
			Data:       map[string]any{"routine_id": rec.RoutineID, "status": string(rec.Status)},
		})
	}
}
