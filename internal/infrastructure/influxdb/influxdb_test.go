package influxdb

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/infrastructure/config"
)

// ─── OutcomeSink ────────────────────────────────────────────────────

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

type fakeWriter struct {
	points []point
}

func (w *fakeWriter) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	w.points = append(w.points, point{measurement, tags, fields, ts})
}

func TestOutcomeSink(t *testing.T) {
	at := time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		event       eventbus.Event
		measurement string
		tags        map[string]string
		fields      map[string]any
	}{
		{
			name: "routine settled",
			event: eventbus.Event{
				Kind: eventbus.RoutineCompleted, EntityType: eventbus.EntityRoutine, EntityID: "opening",
				RunID: "run-1", Time: at,
				Data: map[string]any{"status": "completed", "duration_ms": int64(1200), "fulfilled": 3, "rejected": 0},
			},
			measurement: MeasurementRoutineRuns,
			tags:        map[string]string{"routine_id": "opening", "status": "completed"},
			fields:      map[string]any{"run_id": "run-1", "duration_ms": int64(1200), "fulfilled": int64(3), "rejected": int64(0)},
		},
		{
			name: "routine timed out without status",
			event: eventbus.Event{
				Kind: eventbus.RoutineTimedOut, EntityType: eventbus.EntityRoutine, EntityID: "closing",
				RunID: "run-2", Time: at,
			},
			measurement: MeasurementRoutineRuns,
			tags:        map[string]string{"routine_id": "closing", "status": "timedOut"},
			fields:      map[string]any{"run_id": "run-2"},
		},
		{
			name: "task failed",
			event: eventbus.Event{
				Kind: eventbus.TaskFailed, EntityType: eventbus.EntityTask, EntityID: "projector-on",
				RunID: "run-3", Time: at,
				Data: map[string]any{"attempts": 4, "duration_ms": float64(900), "error": "refused"},
			},
			measurement: MeasurementTaskOutcomes,
			tags:        map[string]string{"task_id": "projector-on", "outcome": "failed"},
			fields:      map[string]any{"run_id": "run-3", "attempts": int64(4), "duration_ms": int64(900)},
		},
		{
			name: "trigger fired",
			event: eventbus.Event{
				Kind: eventbus.TriggerTriggered, EntityType: eventbus.EntityTrigger, EntityID: "door", Time: at,
			},
			measurement: MeasurementTriggerFirings,
			tags:        map[string]string{"trigger_id": "door"},
			fields:      map[string]any{"count": int64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			NewOutcomeSink(w).Deliver(tt.event)

			if len(w.points) != 1 {
				t.Fatalf("wrote %d points, want 1", len(w.points))
			}
			p := w.points[0]
			if p.measurement != tt.measurement {
				t.Errorf("measurement = %q, want %q", p.measurement, tt.measurement)
			}
			if !p.ts.Equal(at) {
				t.Errorf("ts = %v, want %v", p.ts, at)
			}
			for k, v := range tt.tags {
				if p.tags[k] != v {
					t.Errorf("tag %s = %q, want %q", k, p.tags[k], v)
				}
			}
			if len(p.fields) != len(tt.fields) {
				t.Errorf("fields = %v, want %v", p.fields, tt.fields)
			}
			for k, v := range tt.fields {
				if p.fields[k] != v {
					t.Errorf("field %s = %v (%T), want %v (%T)", k, p.fields[k], p.fields[k], v, v)
				}
			}
		})
	}
}

func TestOutcomeSink_IgnoresProgressEvents(t *testing.T) {
	w := &fakeWriter{}
	sink := NewOutcomeSink(w)

	for _, k := range []eventbus.Kind{eventbus.TaskRunning, eventbus.TaskRetrying, eventbus.RoutineRunning, eventbus.TriggerArmed} {
		sink.Deliver(eventbus.Event{Kind: k, EntityID: "x"})
	}
	if len(w.points) != 0 {
		t.Errorf("wrote %d points for progress events, want 0", len(w.points))
	}
}

// ─── Client ─────────────────────────────────────────────────────────

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: srv.URL, Org: "o", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClient_ZeroValueIsInert(t *testing.T) {
	c := &Client{}
	c.WritePoint(MeasurementTriggerFirings, nil, map[string]any{"count": int64(1)}, time.Time{})
	c.Flush()
	if err := c.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() = %v, want ErrNotConnected", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func TestClient_WritesLineProtocol(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := Connect(config.InfluxDBConfig{
		Enabled: true, URL: srv.URL, Token: "t", Org: "venue", Bucket: "show", BatchSize: 1, FlushInterval: 1,
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() = %v", err)
	}

	NewOutcomeSink(client).Deliver(eventbus.Event{
		Kind: eventbus.RoutineCompleted, EntityID: "opening", RunID: "run-1",
		Data: map[string]any{"status": "completed", "duration_ms": int64(12)},
	})
	client.Flush()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, line := range fake.received() {
			if strings.HasPrefix(line, "routine_runs,routine_id=opening,status=completed ") &&
				strings.Contains(line, "duration_ms=12i") {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("line not received, got %v", fake.received())
}
