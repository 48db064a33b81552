package automation

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrAborted) {
//	    // cancellation, not a failure
//	}
var (
	// ErrValidation matches every ValidationError.
	ErrValidation = errors.New("automation: invalid parameters")

	// ErrAborted matches every AbortError.
	ErrAborted = errors.New("automation: aborted")

	// ErrTimeout matches every TimeoutError.
	ErrTimeout = errors.New("automation: timed out")

	// ErrTransport matches every TransportError.
	ErrTransport = errors.New("automation: transport failure")

	// ErrConditionNotMet drives the task retry loop when a post-check is false.
	ErrConditionNotMet = errors.New("condition not met")

	// ErrRoutineRunning is returned by Routine.Run while a run is in progress.
	ErrRoutineRunning = errors.New("routine: already running")

	// ErrRoutineDisabled is returned when running a disabled routine.
	ErrRoutineDisabled = errors.New("routine: disabled")

	// ErrRoutineNotFound is returned when a routine ID does not exist.
	ErrRoutineNotFound = errors.New("routine: not found")

	// ErrRoutineNotRunning is returned when aborting an idle routine.
	ErrRoutineNotRunning = errors.New("routine: not running")

	// ErrTriggerNotFound is returned when a trigger ID does not exist.
	ErrTriggerNotFound = errors.New("trigger: not found")

	// ErrTriggerDisarmed is returned when firing a disarmed trigger.
	ErrTriggerDisarmed = errors.New("trigger: disarmed")

	// ErrTriggerNotManual is returned when firing a trigger through the API
	// hook that is not an api trigger.
	ErrTriggerNotManual = errors.New("trigger: not an api trigger")

	// ErrTaskTimeout is the cancellation cause used by a routine's taskTimeout.
	ErrTaskTimeout = errors.New("task: exceeded routine task timeout")

	// ErrRoutineTimeout is the cancellation cause used by a routine's overall timeout.
	ErrRoutineTimeout = errors.New("routine: exceeded run timeout")
)

// ValidationError reports missing or malformed parameters. It is never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AbortError reports cancellation. It is a terminal outcome, never a failure.
type AbortError struct {
	Msg   string
	Cause error
}

func (e *AbortError) Error() string { return e.Msg }

// Is makes errors.Is(err, ErrAborted) true.
func (e *AbortError) Is(target error) bool { return target == ErrAborted }

// Unwrap exposes the cancellation cause.
func (e *AbortError) Unwrap() error { return e.Cause }

// TimeoutError reports that an operation exceeded its time budget.
type TimeoutError struct {
	Msg   string
	After time.Duration
}

func (e *TimeoutError) Error() string { return e.Msg }

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// NewTimeoutError builds the `"<name>" timed out after N ms` error.
func NewTimeoutError(name string, after time.Duration) error {
	return &TimeoutError{
		Msg:   fmt.Sprintf("%q timed out after %d ms", name, after.Milliseconds()),
		After: after,
	}
}

// TransportError reports a network failure such as a refused connection.
type TransportError struct {
	Msg string
	Err error
}

func (e *TransportError) Error() string { return e.Msg }

// Is makes errors.Is(err, ErrTransport) true.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Unwrap exposes the underlying network error.
func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with a message.
func NewTransportError(msg string, err error) error {
	return &TransportError{Msg: msg, Err: err}
}

// abortedBefore builds the error for work cancelled before it started.
func abortedBefore(name string, cause error) error {
	return &AbortError{Msg: fmt.Sprintf("%q was aborted before execution", name), Cause: cause}
}

// abortedDuring builds the error for work cancelled in flight.
func abortedDuring(name string, cause error) error {
	return &AbortError{Msg: fmt.Sprintf("%q was aborted", name), Cause: cause}
}

// IsAbort reports whether err is a cancellation.
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted)
}

// IsRetryable reports whether a task may retry after err.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrValidation) && !errors.Is(err, ErrAborted)
}
