package eventbus

// Kind identifies an event. Values are the wire names seen by external
// listeners.
type Kind string

// Task lifecycle.
const (
	TaskRunning   Kind = "task:running"
	TaskCompleted Kind = "task:completed"
	TaskFailed    Kind = "task:failed"
	TaskRetrying  Kind = "task:retrying"
	TaskTimeout   Kind = "task:timeout"
	TaskAborted   Kind = "task:aborted"

	// TaskConditionChecked reports each condition evaluation. Internal.
	TaskConditionChecked Kind = "task:conditionChecked"
)

// Routine lifecycle.
const (
	RoutineRunning                Kind = "routine:running"
	RoutineCompleted              Kind = "routine:completed"
	RoutineFailed                 Kind = "routine:failed"
	RoutineAborted                Kind = "routine:aborted"
	RoutineTimedOut               Kind = "routine:timedOut"
	RoutineAutoCheckingConditions Kind = "routine:autoCheckingConditions"
)

// Trigger lifecycle.
const (
	TriggerArmed     Kind = "trigger:armed"
	TriggerTriggered Kind = "trigger:triggered"
	TriggerRearmed   Kind = "trigger:rearmed"
	TriggerDisarmed  Kind = "trigger:disarmed"
)

// ExecutionPersisted is published after a run's log tree is stored. Internal.
const ExecutionPersisted Kind = "execution:persisted"

// Entity types carried in Event.EntityType.
const (
	EntityTask      = "task"
	EntityRoutine   = "routine"
	EntityTrigger   = "trigger"
	EntityExecution = "execution"
)

// RoutineSettledKinds are the terminal routine events.
var RoutineSettledKinds = []Kind{RoutineCompleted, RoutineFailed, RoutineAborted, RoutineTimedOut}

// defaultInternal lists kinds that never leave the process.
var defaultInternal = []Kind{TaskConditionChecked, ExecutionPersisted}
