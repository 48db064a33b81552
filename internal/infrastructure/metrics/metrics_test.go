package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

func TestRecorder_RoutineLifecycle(t *testing.T) {
	r := New()
	bus := eventbus.New()
	detach := r.Attach(bus)
	defer detach()

	bus.Publish(eventbus.Event{Kind: eventbus.RoutineRunning, EntityType: eventbus.EntityRoutine, EntityID: "opening"})
	if got := testutil.ToFloat64(r.RoutinesRunning.WithLabelValues("opening")); got != 1 {
		t.Errorf("routines_running = %v, want 1", got)
	}

	bus.Publish(eventbus.Event{
		Kind: eventbus.RoutineCompleted, EntityType: eventbus.EntityRoutine, EntityID: "opening",
		Data: map[string]any{"status": "partial", "duration_ms": int64(1200)},
	})
	if got := testutil.ToFloat64(r.RoutinesRunning.WithLabelValues("opening")); got != 0 {
		t.Errorf("routines_running = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.RoutineRuns.WithLabelValues("opening", "partial")); got != 1 {
		t.Errorf("routine_runs_total{partial} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.RoutineDuration); n != 1 {
		t.Errorf("routine_duration series = %d, want 1", n)
	}
}

func TestRecorder_TaskAndTrigger(t *testing.T) {
	r := New()
	events := []eventbus.Event{
		{Kind: eventbus.TaskRetrying, EntityID: "wake"},
		{Kind: eventbus.TaskRetrying, EntityID: "wake"},
		{Kind: eventbus.TaskCompleted, EntityID: "wake", Data: map[string]any{"duration_ms": int64(40)}},
		{Kind: eventbus.TaskFailed, EntityID: "projector"},
		{Kind: eventbus.TaskAborted, EntityID: "lights"},
		{Kind: eventbus.TriggerTriggered, EntityID: "doors"},
	}
	for _, e := range events {
		r.Observe(e)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"retries", testutil.ToFloat64(r.TaskRetries.WithLabelValues("wake")), 2},
		{"completed", testutil.ToFloat64(r.TaskOutcomes.WithLabelValues("wake", "completed")), 1},
		{"failed", testutil.ToFloat64(r.TaskOutcomes.WithLabelValues("projector", "failed")), 1},
		{"aborted", testutil.ToFloat64(r.TaskOutcomes.WithLabelValues("lights", "aborted")), 1},
		{"firings", testutil.ToFloat64(r.TriggerFirings.WithLabelValues("doors")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveHTTP("/api/v1/routines", http.MethodGet, http.StatusOK)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`showrunner_http_requests_total{code="200",method="GET",route="/api/v1/routines"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
