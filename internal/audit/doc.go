// Package audit stores the history of routine executions in SQLite.
//
// Each run is one row in routine_runs, created when the run starts and
// updated when it settles. The exported execution log tree is kept as JSON
// so a run can be inspected after the process that produced it is gone.
package audit
