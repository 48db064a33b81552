package triggers

import (
	"context"
	"strings"
	"sync"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
	"github.com/nerrad567/showrunner/internal/eventbus"
)

var routineEventKinds = map[string]eventbus.Kind{
	"running":   eventbus.RoutineRunning,
	"completed": eventbus.RoutineCompleted,
	"failed":    eventbus.RoutineFailed,
	"aborted":   eventbus.RoutineAborted,
	"timedout":  eventbus.RoutineTimedOut,
}

// routineEventSource fires when another routine emits one of the listed
// lifecycle events. Events defaults to completed.
type routineEventSource struct {
	events    Events
	routineID string
	kinds     []eventbus.Kind
	logger    automation.Logger

	mu    sync.Mutex
	unsub []func()
}

func newRoutineEventSource(cfg automation.TriggerConfig, deps Deps) (automation.Source, error) {
	if deps.Events == nil {
		return nil, automation.NewValidationError("routineEvent triggers need an event bus")
	}
	p := params.Map(cfg.Params)
	id, err := params.String(p, "routineId")
	if err != nil {
		return nil, err
	}
	names := params.Strings(p, "events")
	if len(names) == 0 {
		names = []string{"completed"}
	}
	kinds := make([]eventbus.Kind, 0, len(names))
	for _, n := range names {
		k, ok := routineEventKinds[strings.ToLower(n)]
		if !ok {
			return nil, automation.NewValidationError("events: %q is not a routine event", n)
		}
		kinds = append(kinds, k)
	}
	return &routineEventSource{events: deps.Events, routineID: id, kinds: kinds, logger: deps.Logger}, nil
}

func (s *routineEventSource) Start(ctx context.Context, t *automation.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsub != nil {
		return nil
	}
	for _, k := range s.kinds {
		s.unsub = append(s.unsub, s.events.Subscribe(k, func(e eventbus.Event) {
			if e.EntityType != eventbus.EntityRoutine || e.EntityID != s.routineID {
				return
			}
			fire(ctx, t, s.logger, map[string]any{
				"routineId": e.EntityID,
				"event":     string(e.Kind),
				"runId":     e.RunID,
			})
		}))
	}
	return nil
}

func (s *routineEventSource) Stop() error {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.mu.Unlock()
	for _, u := range unsub {
		u()
	}
	return nil
}
