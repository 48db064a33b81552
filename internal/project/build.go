package project

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/conditions"
	"github.com/nerrad567/showrunner/internal/automation/jobs"
	"github.com/nerrad567/showrunner/internal/automation/triggers"
)

// Deps are the collaborators shared by everything a project builds.
type Deps struct {
	Bus        automation.Publisher
	Logger     automation.Logger
	Jobs       jobs.Deps
	Conditions conditions.Deps
	Triggers   triggers.Deps
	// MinAutoCheck clamps routine auto-check intervals.
	MinAutoCheck time.Duration
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Build constructs every trigger, job, condition, task and routine and
// returns them bound in a registry. Static job params that fail their check
// are logged rather than rejected, since a trigger payload may supply them.
func Build(p *Project, deps Deps) (*automation.Registry, error) {
	if deps.Logger == nil {
		deps.Logger = automation.NopLogger()
	}
	var errs []error

	trigs := make([]*automation.Trigger, 0, len(p.Triggers))
	for _, def := range p.Triggers {
		t, err := triggers.New(automation.TriggerConfig{
			ID:             def.ID,
			Name:           def.Name,
			Type:           def.Type,
			Armed:          def.Armed,
			ReArmOnTrigger: def.ReArmOnTrigger,
			Params:         def.Params,
		}, deps.Bus, deps.Triggers)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trigs = append(trigs, t)
	}

	routines := make([]*automation.Routine, 0, len(p.Routines))
	for _, def := range p.Routines {
		rt, err := buildRoutine(def, deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		routines = append(routines, rt)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("building project: %w", err)
	}
	return automation.NewRegistry(routines, trigs)
}

func buildRoutine(def RoutineDef, deps Deps) (*automation.Routine, error) {
	tasks := make([]*automation.Task, 0, len(def.Tasks))
	for _, td := range def.Tasks {
		task, err := buildTask(td, deps)
		if err != nil {
			return nil, fmt.Errorf("routine %q: %w", def.ID, err)
		}
		tasks = append(tasks, task)
	}

	every := ms(def.AutoCheckConditionEvery)
	if every > 0 && every < deps.MinAutoCheck {
		deps.Logger.Warn("auto-check interval raised to minimum",
			"routine_id", def.ID, "requested_ms", def.AutoCheckConditionEvery, "minimum_ms", deps.MinAutoCheck.Milliseconds())
		every = deps.MinAutoCheck
	}

	return automation.NewRoutine(automation.RoutineConfig{
		ID:                      def.ID,
		Name:                    def.Name,
		Tasks:                   tasks,
		TriggerIDs:              def.Triggers,
		RunInSync:               def.RunInSync,
		ContinueOnError:         def.ContinueOnError,
		TaskTimeout:             ms(def.TaskTimeout),
		Timeout:                 ms(def.Timeout),
		Enabled:                 def.IsEnabled(),
		AutoCheckConditionEvery: every,
	}, deps.Bus, deps.Logger)
}

func buildTask(def TaskDef, deps Deps) (*automation.Task, error) {
	job, err := jobs.New(automation.JobSpec{
		ID:                   def.Job.ID,
		Name:                 def.Job.Name,
		Description:          def.Job.Description,
		Type:                 def.Job.Type,
		Params:               def.Job.Params,
		Timeout:              ms(def.Job.Timeout),
		EnableTimeoutWatcher: def.Job.EnableTimeoutWatcher,
	}, deps.Jobs)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", def.ID, err)
	}
	if c, ok := job.(jobs.Checker); ok {
		if err := c.Check(); err != nil {
			deps.Logger.Warn("job params incomplete without a payload",
				"task_id", def.ID, "job_id", def.Job.ID, "error", err)
		}
	}

	var cond automation.Condition
	if def.Condition != nil {
		cond, err = conditions.New(automation.ConditionSpec{
			ID:           def.Condition.ID,
			Name:         def.Condition.Name,
			Type:         def.Condition.Type,
			Params:       def.Condition.Params,
			TimeoutValue: ms(def.Condition.TimeoutValue),
		}, deps.Conditions)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", def.ID, err)
		}
	}

	return automation.NewTask(automation.TaskConfig{
		ID:                            def.ID,
		Name:                          def.Name,
		Job:                           job,
		Condition:                     cond,
		Retries:                       def.Retries,
		WaitBeforeRetry:               ms(def.WaitBeforeRetry),
		ContinueOnError:               def.ContinueOnError,
		CheckConditionBeforeExecution: def.CheckConditionBeforeExecution,
	}, deps.Bus)
}
