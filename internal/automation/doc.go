// Package automation provides the routine engine for Showrunner.
//
// A routine is a set of tasks started by triggers. Each task runs one job
// (send a packet, wait, wake a machine) and may be gated by a condition
// that is checked before and/or after the job, with retries in between.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│                    Engine (engine.go)                     │
//	│  Binds triggers to routines, creates one execution log   │
//	│  per run and persists it through a RunStore              │
//	│  ┌────────────┐     ┌────────────┐     ┌──────────────┐  │
//	│  │  Trigger   │────▶│  Routine   │────▶│     Task     │  │
//	│  │(trigger.go)│     │(routine.go)│     │  (task.go)   │  │
//	│  └────────────┘     └────────────┘     └──────────────┘  │
//	│        ▲                  │                │      │      │
//	│     Source          errgroup / wg         Job  Condition │
//	└──────────────────────────────────────────────────────────┘
//
// # Cancellation
//
// Every blocking operation takes a context.Context. Aborting a routine
// cancels its context with a cause; tasks observe it and settle as
// aborted, never as failed. The routine's taskTimeout is applied with
// context.WithTimeoutCause(ErrTaskTimeout), which tasks report as a
// failure instead.
//
// # Events
//
// Tasks, routines and triggers publish lifecycle events (task:running,
// routine:completed, trigger:armed, ...) through a Publisher, normally
// an *eventbus.Bus.
//
// # Variants
//
// Concrete jobs, conditions and trigger sources live in the jobs,
// conditions and triggers subpackages. They embed BaseJob and
// BaseCondition and use GuardJob/GuardProbe for abort and timeout
// classification.
//
// # Thread Safety
//
// Task, Routine, Trigger, Registry and Engine are safe for concurrent use.
// A single Task instance runs at most once at a time.
package automation
