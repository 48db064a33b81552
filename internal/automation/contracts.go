package automation

import (
	"context"
	"maps"
	"sync/atomic"
	"time"

	"github.com/nerrad567/showrunner/internal/runctx"
)

// ─── Jobs ──────────────────────────────────────────────────────────

// ExecuteRequest carries the per-call inputs of a job.
type ExecuteRequest struct {
	// Payload comes from the stimulus that fired the routine. Keys present
	// in both Payload and the job's params take the payload value.
	Payload map[string]any

	// Log is the job's node in the run's execution log. May be nil.
	Log *runctx.Node
}

// Job is a leaf unit of work such as sending a packet.
//
// Execute validates its parameters before any I/O and returns a
// ValidationError if they are unusable. Cancellation of ctx yields an
// AbortError, an elapsed watcher a TimeoutError, and network failures a
// TransportError.
type Job interface {
	// ID returns the job's project-unique identifier.
	ID() string

	// Name returns the display name used in logs and error messages.
	Name() string

	// Type returns the discriminant the job was built from, e.g. "wol".
	Type() string

	// Execute performs the job once. The task owning the job decides
	// whether a failure is retried.
	Execute(ctx context.Context, req ExecuteRequest) error
}

// JobSpec holds the fields shared by every job.
type JobSpec struct {
	ID                   string
	Name                 string
	Description          string
	Type                 string
	Params               map[string]any
	Timeout              time.Duration
	EnableTimeoutWatcher bool
}

// BaseJob implements the identity half of Job. Variants embed it.
type BaseJob struct {
	Spec JobSpec
}

// ID returns the job id.
func (b *BaseJob) ID() string { return b.Spec.ID }

// Name returns the job name.
func (b *BaseJob) Name() string { return b.Spec.Name }

// Type returns the job type discriminant.
func (b *BaseJob) Type() string { return b.Spec.Type }

// WatcherTimeout returns the watcher duration, or 0 when disabled.
func (b *BaseJob) WatcherTimeout() time.Duration {
	if !b.Spec.EnableTimeoutWatcher || b.Spec.Timeout <= 0 {
		return 0
	}
	return b.Spec.Timeout
}

// Params returns the static params overlaid with the request payload.
func (b *BaseJob) Params(req ExecuteRequest) map[string]any {
	if len(req.Payload) == 0 {
		return b.Spec.Params
	}
	merged := make(map[string]any, len(b.Spec.Params)+len(req.Payload))
	maps.Copy(merged, b.Spec.Params)
	maps.Copy(merged, req.Payload)
	return merged
}

// Guard runs op for the named job, classifying the outcome.
func (b *BaseJob) Guard(ctx context.Context, op func(ctx context.Context) error) error {
	return GuardJob(ctx, b.Spec.Name, b.WatcherTimeout(), op)
}

// ─── Conditions ────────────────────────────────────────────────────

// EvaluateRequest carries the per-call inputs of a condition.
type EvaluateRequest struct {
	Log *runctx.Node
}

// Condition is a boolean probe. A negative result is (false, nil); errors
// are reserved for bad parameters, cancellation and probe failures.
type Condition interface {
	// ID returns the condition's project-unique identifier.
	ID() string

	// Name returns the display name used in logs and error messages.
	Name() string

	// Type returns the discriminant the condition was built from.
	Type() string

	// Evaluate probes once and reports whether the condition holds.
	Evaluate(ctx context.Context, req EvaluateRequest) (bool, error)

	// SetTimeoutValue overrides the probe window.
	SetTimeoutValue(d time.Duration)

	// TimeoutValue returns the current probe window.
	TimeoutValue() time.Duration
}

// ConditionSpec holds the fields shared by every condition.
type ConditionSpec struct {
	ID           string
	Name         string
	Type         string
	Params       map[string]any
	TimeoutValue time.Duration
}

// DefaultConditionTimeout is used when a condition has no timeoutValue.
const DefaultConditionTimeout = 5 * time.Second

// BaseCondition implements the identity and timeout half of Condition.
type BaseCondition struct {
	Spec    ConditionSpec
	timeout atomic.Int64
}

// Init sets the spec and the initial timeout. Variants call it from their
// constructor.
func (b *BaseCondition) Init(spec ConditionSpec) {
	b.Spec = spec
	b.SetTimeoutValue(spec.TimeoutValue)
}

// ID returns the condition id.
func (b *BaseCondition) ID() string { return b.Spec.ID }

// Name returns the condition name.
func (b *BaseCondition) Name() string { return b.Spec.Name }

// Type returns the condition type discriminant.
func (b *BaseCondition) Type() string { return b.Spec.Type }

// SetTimeoutValue overrides the probe window. Non-positive values restore
// the default.
func (b *BaseCondition) SetTimeoutValue(d time.Duration) {
	if d <= 0 {
		d = DefaultConditionTimeout
	}
	b.timeout.Store(int64(d))
}

// TimeoutValue returns the probe window.
func (b *BaseCondition) TimeoutValue() time.Duration {
	d := time.Duration(b.timeout.Load())
	if d <= 0 {
		return DefaultConditionTimeout
	}
	return d
}

// Guard runs op for the named condition, classifying cancellation.
func (b *BaseCondition) Guard(ctx context.Context, op func(ctx context.Context) (bool, error)) (bool, error) {
	return GuardProbe(ctx, b.Spec.Name, 0, op)
}
