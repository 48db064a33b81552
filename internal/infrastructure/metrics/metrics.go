package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

const namespace = "showrunner"

// Recorder owns the automation metrics.
type Recorder struct {
	registry *prometheus.Registry

	RoutineRuns     *prometheus.CounterVec
	RoutineDuration *prometheus.HistogramVec
	RoutinesRunning *prometheus.GaugeVec
	TaskOutcomes    *prometheus.CounterVec
	TaskRetries     *prometheus.CounterVec
	TaskDuration    *prometheus.HistogramVec
	TriggerFirings  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
}

// New registers every metric on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		RoutineRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routine_runs_total",
			Help:      "Routine runs by terminal status.",
		}, []string{"routine", "status"}),
		RoutineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "routine_duration_seconds",
			Help:      "Wall time of settled routine runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		}, []string{"routine"}),
		RoutinesRunning: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "routines_running",
			Help:      "1 while a routine has a run in progress.",
		}, []string{"routine"}),
		TaskOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Settled task runs by outcome.",
		}, []string{"task", "outcome"}),
		TaskRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_retries_total",
			Help:      "Task attempts that were retried.",
		}, []string{"task"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Wall time of completed or failed task runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		TriggerFirings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_firings_total",
			Help:      "Honoured trigger firings.",
		}, []string{"trigger"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the API.",
		}, []string{"route", "method", "code"}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveHTTP counts one request.
func (r *Recorder) ObserveHTTP(route, method string, code int) {
	r.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

// Observe updates metrics from one domain event. It is an eventbus.Handler.
func (r *Recorder) Observe(e eventbus.Event) {
	switch e.Kind {
	case eventbus.RoutineRunning:
		r.RoutinesRunning.WithLabelValues(e.EntityID).Set(1)

	case eventbus.RoutineCompleted, eventbus.RoutineFailed, eventbus.RoutineAborted, eventbus.RoutineTimedOut:
		r.RoutinesRunning.WithLabelValues(e.EntityID).Set(0)
		status, _ := e.Data["status"].(string)
		if status == "" {
			status = string(e.Kind)
		}
		r.RoutineRuns.WithLabelValues(e.EntityID, status).Inc()
		if d, ok := millis(e.Data["duration_ms"]); ok {
			r.RoutineDuration.WithLabelValues(e.EntityID).Observe(d.Seconds())
		}

	case eventbus.TaskCompleted, eventbus.TaskFailed:
		outcome := "completed"
		if e.Kind == eventbus.TaskFailed {
			outcome = "failed"
		}
		r.TaskOutcomes.WithLabelValues(e.EntityID, outcome).Inc()
		if d, ok := millis(e.Data["duration_ms"]); ok {
			r.TaskDuration.WithLabelValues(e.EntityID).Observe(d.Seconds())
		}

	case eventbus.TaskAborted:
		r.TaskOutcomes.WithLabelValues(e.EntityID, "aborted").Inc()

	case eventbus.TaskRetrying:
		r.TaskRetries.WithLabelValues(e.EntityID).Inc()

	case eventbus.TriggerTriggered:
		r.TriggerFirings.WithLabelValues(e.EntityID).Inc()
	}
}

// Attach subscribes the recorder to every event on bus.
func (r *Recorder) Attach(bus *eventbus.Bus) (detach func()) {
	return bus.SubscribeAll(r.Observe)
}

func millis(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case int64:
		return time.Duration(n) * time.Millisecond, true
	case int:
		return time.Duration(n) * time.Millisecond, true
	case float64:
		return time.Duration(n * float64(time.Millisecond)), true
	default:
		return 0, false
	}
}
