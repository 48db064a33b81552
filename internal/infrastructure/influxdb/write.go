package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by Showrunner.
const (
	MeasurementRoutineRuns    = "routine_runs"
	MeasurementTaskOutcomes   = "task_outcomes"
	MeasurementTriggerFirings = "trigger_firings"
)

// WritePoint queues one point. Tags should stay low-cardinality; run ids
// belong in fields. A zero ts means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
