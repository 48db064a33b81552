package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/nerrad567/showrunner/internal/automation/conditions"
	"github.com/nerrad567/showrunner/internal/automation/jobs"
	"github.com/nerrad567/showrunner/internal/automation/triggers"
)

// Project is the root of a project file.
type Project struct {
	Name     string       `yaml:"name"`
	Triggers []TriggerDef `yaml:"triggers" validate:"dive"`
	Routines []RoutineDef `yaml:"routines" validate:"dive"`
}

// TriggerDef declares a trigger.
type TriggerDef struct {
	ID             string         `yaml:"id" validate:"required"`
	Name           string         `yaml:"name"`
	Type           string         `yaml:"type" validate:"required"`
	Armed          bool           `yaml:"armed"`
	ReArmOnTrigger bool           `yaml:"reArmOnTrigger"`
	Params         map[string]any `yaml:"params"`
}

// RoutineDef declares a routine. Durations are milliseconds.
type RoutineDef struct {
	ID                      string    `yaml:"id" validate:"required"`
	Name                    string    `yaml:"name"`
	Enabled                 *bool     `yaml:"enabled"`
	RunInSync               bool      `yaml:"runInSync"`
	ContinueOnError         bool      `yaml:"continueOnError"`
	TaskTimeout             int       `yaml:"taskTimeout" validate:"gte=0"`
	Timeout                 int       `yaml:"timeout" validate:"gte=0"`
	AutoCheckConditionEvery int       `yaml:"autoCheckConditionEvery" validate:"gte=0"`
	Triggers                []string  `yaml:"triggers"`
	Tasks                   []TaskDef `yaml:"tasks" validate:"required,min=1,dive"`
}

// IsEnabled defaults to true when enabled is omitted.
func (r RoutineDef) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// TaskDef declares a task with its job and optional condition.
type TaskDef struct {
	ID                            string        `yaml:"id" validate:"required"`
	Name                          string        `yaml:"name"`
	Retries                       int           `yaml:"retries" validate:"gte=0"`
	WaitBeforeRetry               int           `yaml:"waitBeforeRetry" validate:"gte=0"`
	ContinueOnError               bool          `yaml:"continueOnError"`
	CheckConditionBeforeExecution bool          `yaml:"checkConditionBeforeExecution"`
	Job                           JobDef        `yaml:"job" validate:"required"`
	Condition                     *ConditionDef `yaml:"condition" validate:"omitempty"`
}

// JobDef declares a job.
type JobDef struct {
	ID                   string         `yaml:"id" validate:"required"`
	Name                 string         `yaml:"name"`
	Description          string         `yaml:"description"`
	Type                 string         `yaml:"type" validate:"required"`
	Timeout              int            `yaml:"timeout" validate:"gte=0"`
	EnableTimeoutWatcher bool           `yaml:"enableTimeoutWatcher"`
	Params               map[string]any `yaml:"params"`
}

// ConditionDef declares a condition.
type ConditionDef struct {
	ID           string         `yaml:"id" validate:"required"`
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type" validate:"required"`
	TimeoutValue int            `yaml:"timeoutValue" validate:"gte=0"`
	Params       map[string]any `yaml:"params"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the project at path.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a project document. Unknown keys are errors.
func Parse(data []byte) (*Project, error) {
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing project file: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks field constraints, id uniqueness, trigger references and
// that every type names a registered variant. All problems are reported.
func (p *Project) Validate() error {
	var errs []string

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidProject, err)
		}
		for _, fe := range verrs {
			errs = append(errs, describe(fe))
		}
	}

	known := func(types []string) map[string]bool {
		m := make(map[string]bool, len(types))
		for _, t := range types {
			m[t] = true
		}
		return m
	}
	jobTypes, condTypes, trigTypes := known(jobs.Types()), known(conditions.Types()), known(triggers.Types())

	triggerIDs := make(map[string]bool, len(p.Triggers))
	for _, t := range p.Triggers {
		if triggerIDs[t.ID] {
			errs = append(errs, fmt.Sprintf("trigger %q is declared twice", t.ID))
		}
		triggerIDs[t.ID] = true
		if t.Type != "" && !trigTypes[t.Type] {
			errs = append(errs, fmt.Sprintf("trigger %q: unknown type %q", t.ID, t.Type))
		}
	}

	routineIDs := make(map[string]bool, len(p.Routines))
	taskIDs := make(map[string]bool)
	for _, r := range p.Routines {
		if routineIDs[r.ID] {
			errs = append(errs, fmt.Sprintf("routine %q is declared twice", r.ID))
		}
		routineIDs[r.ID] = true
		for _, ref := range r.Triggers {
			if !triggerIDs[ref] {
				errs = append(errs, fmt.Sprintf("routine %q: trigger %q is not declared", r.ID, ref))
			}
		}
		for _, t := range r.Tasks {
			if taskIDs[t.ID] {
				errs = append(errs, fmt.Sprintf("task %q is declared twice", t.ID))
			}
			taskIDs[t.ID] = true
			if t.Job.Type != "" && !jobTypes[t.Job.Type] {
				errs = append(errs, fmt.Sprintf("task %q: unknown job type %q", t.ID, t.Job.Type))
			}
			if c := t.Condition; c != nil && c.Type != "" && !condTypes[c.Type] {
				errs = append(errs, fmt.Sprintf("task %q: unknown condition type %q", t.ID, c.Type))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidProject, strings.Join(errs, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Project.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
