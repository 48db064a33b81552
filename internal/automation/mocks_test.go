package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

// ─── Mock Job ──────────────────────────────────────────────────────

// mockJob runs fn on each Execute, or succeeds immediately when fn is nil.
type mockJob struct {
	BaseJob
	calls atomic.Int32
	fn    func(ctx context.Context, attempt int) error
}

func newMockJob(id string, fn func(ctx context.Context, attempt int) error) *mockJob {
	return &mockJob{
		BaseJob: BaseJob{Spec: JobSpec{ID: id, Name: id, Type: "mock"}},
		fn:      fn,
	}
}

func (m *mockJob) Execute(ctx context.Context, _ ExecuteRequest) error {
	attempt := int(m.calls.Add(1))
	if m.fn == nil {
		return nil
	}
	return m.Guard(ctx, func(ctx context.Context) error {
		return m.fn(ctx, attempt)
	})
}

// blockingJob waits until ctx is done.
func blockingJob(id string) *mockJob {
	return newMockJob(id, func(ctx context.Context, _ int) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

// failingJob always fails with err.
func failingJob(id string, err error) *mockJob {
	return newMockJob(id, func(context.Context, int) error { return err })
}

// ─── Mock Condition ────────────────────────────────────────────────

// mockCondition returns results[i] on the i-th evaluation, repeating the
// last entry once exhausted.
type mockCondition struct {
	BaseCondition
	mu      sync.Mutex
	results []bool
	err     error
	calls   int
}

func newMockCondition(id string, results ...bool) *mockCondition {
	c := &mockCondition{results: results}
	c.Init(ConditionSpec{ID: id, Name: id, Type: "mock", TimeoutValue: time.Second})
	return c
}

func (c *mockCondition) Evaluate(ctx context.Context, _ EvaluateRequest) (bool, error) {
	return c.Guard(ctx, func(context.Context) (bool, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		i := c.calls
		c.calls++
		if c.err != nil {
			return false, c.err
		}
		if len(c.results) == 0 {
			return false, nil
		}
		if i >= len(c.results) {
			i = len(c.results) - 1
		}
		return c.results[i], nil
	})
}

func (c *mockCondition) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// ─── Recording Publisher ───────────────────────────────────────────

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) Publish(e eventbus.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// kinds returns the kinds published for one entity, in order.
func (r *recorder) kinds(entityID string) []eventbus.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.Kind
	for _, e := range r.events {
		if e.EntityID == entityID {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (r *recorder) count(kind eventbus.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// ─── Helpers ───────────────────────────────────────────────────────

func mustTask(t testing.TB, cfg TaskConfig, bus Publisher) *Task {
	t.Helper()
	task, err := NewTask(cfg, bus)
	if err != nil {
		t.Fatalf("NewTask(%s) error = %v", cfg.ID, err)
	}
	return task
}

func hasKind(kinds []eventbus.Kind, want eventbus.Kind) bool {
	for _, k := range kinds {
		if k == want {
			return true
		}
	}
	return false
}
