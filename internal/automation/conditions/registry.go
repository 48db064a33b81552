package conditions

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
)

// Deps are the shared collaborators handed to condition constructors.
type Deps struct {
	// Location is the project timezone used by dayTime.
	Location *time.Location
	// Now replaces time.Now in tests.
	Now func() time.Time
	// PJLinkPort is used when a pjlinkStatus condition names no port.
	PJLinkPort int
}

func (d Deps) withDefaults() Deps {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PJLinkPort == 0 {
		d.PJLinkPort = 4352
	}
	return d
}

// Factory builds a condition from its spec.
type Factory func(spec automation.ConditionSpec, deps Deps) (automation.Condition, error)

var factories = map[string]Factory{
	TypeDayTime:      newDayTime,
	TypePing:         newPing,
	TypeTCPAnswer:    newTCPAnswer,
	TypeUDPAnswer:    newUDPAnswer,
	TypePJLinkStatus: newPJLinkStatus,
}

// New builds the condition named by spec.Type.
func New(spec automation.ConditionSpec, deps Deps) (automation.Condition, error) {
	f, ok := factories[spec.Type]
	if !ok {
		return nil, automation.NewValidationError("unknown condition type %q", spec.Type)
	}
	if spec.ID == "" {
		return nil, automation.NewValidationError("condition id is required")
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	c, err := f(spec, deps.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", spec.ID, err)
	}
	return c, nil
}

// Types lists the registered condition types.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
