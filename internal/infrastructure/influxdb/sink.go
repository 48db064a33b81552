package influxdb

import (
	"strings"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

// PointWriter is the part of Client used by OutcomeSink.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// OutcomeSink records settled routine runs, task outcomes and trigger
// firings as time series. It implements eventbus.Sink; other events are
// ignored.
type OutcomeSink struct {
	w PointWriter
}

// NewOutcomeSink builds a sink writing to w.
func NewOutcomeSink(w PointWriter) *OutcomeSink {
	return &OutcomeSink{w: w}
}

// Deliver converts e to a point when it is an outcome.
func (s *OutcomeSink) Deliver(e eventbus.Event) {
	switch e.Kind {
	case eventbus.RoutineCompleted, eventbus.RoutineFailed, eventbus.RoutineAborted, eventbus.RoutineTimedOut:
		fields := map[string]any{"run_id": e.RunID}
		copyInts(fields, e.Data, "duration_ms", "fulfilled", "rejected", "aborted", "skipped")
		s.w.WritePoint(MeasurementRoutineRuns, map[string]string{
			"routine_id": e.EntityID,
			"status":     statusOf(e),
		}, fields, e.Time)

	case eventbus.TaskCompleted, eventbus.TaskFailed, eventbus.TaskAborted:
		fields := map[string]any{"run_id": e.RunID}
		copyInts(fields, e.Data, "duration_ms", "attempts")
		s.w.WritePoint(MeasurementTaskOutcomes, map[string]string{
			"task_id": e.EntityID,
			"outcome": actionOf(e.Kind),
		}, fields, e.Time)

	case eventbus.TriggerTriggered:
		s.w.WritePoint(MeasurementTriggerFirings, map[string]string{
			"trigger_id": e.EntityID,
		}, map[string]any{"count": int64(1)}, e.Time)
	}
}

func statusOf(e eventbus.Event) string {
	if st, ok := e.Data["status"].(string); ok && st != "" {
		return st
	}
	return actionOf(e.Kind)
}

func actionOf(k eventbus.Kind) string {
	s := string(k)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// copyInts copies numeric values, normalised to int64, from src.
func copyInts(dst, src map[string]any, keys ...string) {
	for _, k := range keys {
		switch v := src[k].(type) {
		case int:
			dst[k] = int64(v)
		case int64:
			dst[k] = v
		case float64:
			dst[k] = int64(v)
		}
	}
}
