package automation

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

// TriggerConfig describes a trigger.
type TriggerConfig struct {
	ID             string
	Name           string
	Type           string
	Armed          bool
	ReArmOnTrigger bool
	Params         map[string]any
}

// Source produces the stimulus of a trigger variant.
type Source interface {
	// Start begins watching, for example listening on a socket or
	// subscribing to a topic, and calls t.Fire for each stimulus. A second
	// Start while running is a no-op.
	Start(ctx context.Context, t *Trigger) error

	// Stop releases everything Start acquired. It is safe to call when the
	// source was never started.
	Stop() error
}

// FireHandler is invoked by a trigger for each honoured firing. It must not
// block; the engine's handler starts routine runs in their own goroutines.
type FireHandler func(ctx context.Context, t *Trigger, payload map[string]any)

// Trigger is an armable stimulus that starts routines.
//
// States: disarmed → armed → triggered → armed | disarmed.
type Trigger struct {
	cfg    TriggerConfig
	source Source
	bus    Publisher

	mu        sync.Mutex
	armed     bool
	triggered bool
	fired     int
	lastFired time.Time
	handler   FireHandler
}

// NewTrigger builds a trigger around a stimulus source.
//
// Parameters:
//   - cfg: Trigger definition; ID is required and Name defaults to it
//   - source: Stimulus watcher, or nil for triggers fired only through Fire (api hooks)
//   - bus: Event publisher for armed/triggered/rearmed events (may be nil)
//
// Returns a ValidationError when cfg is unusable.
func NewTrigger(cfg TriggerConfig, source Source, bus Publisher) (*Trigger, error) {
	if cfg.ID == "" {
		return nil, NewValidationError("trigger id is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return &Trigger{
		cfg:    cfg,
		source: source,
		bus:    publisherOrNoop(bus),
		armed:  cfg.Armed,
	}, nil
}

// ID returns the trigger id.
func (t *Trigger) ID() string { return t.cfg.ID }

// Name returns the trigger name.
func (t *Trigger) Name() string { return t.cfg.Name }

// Type returns the trigger type discriminant.
func (t *Trigger) Type() string { return t.cfg.Type }

// Params returns the trigger's parameters.
func (t *Trigger) Params() map[string]any { return t.cfg.Params }

// ReArmOnTrigger reports whether the trigger stays armed after firing.
func (t *Trigger) ReArmOnTrigger() bool { return t.cfg.ReArmOnTrigger }

// Source returns the stimulus source, or nil.
func (t *Trigger) Source() Source { return t.source }

// SetHandler installs the fire handler.
func (t *Trigger) SetHandler(h FireHandler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// Armed reports whether firing is currently honoured.
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Triggered reports whether a firing is being dispatched right now.
func (t *Trigger) Triggered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggered
}

// Stats returns how often the trigger fired and when it last did.
func (t *Trigger) Stats() (fired int, last time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired, t.lastFired
}

// Arm enables firing.
func (t *Trigger) Arm() {
	t.mu.Lock()
	changed := !t.armed
	t.armed = true
	t.mu.Unlock()
	if changed {
		t.emit(eventbus.TriggerArmed, nil)
	}
}

// Disarm disables firing until Arm is called.
func (t *Trigger) Disarm() {
	t.mu.Lock()
	changed := t.armed
	t.armed = false
	t.mu.Unlock()
	if changed {
		t.emit(eventbus.TriggerDisarmed, nil)
	}
}

// Fire dispatches the trigger if it is armed. A trigger without
// reArmOnTrigger is disarmed atomically with the check, so two concurrent
// stimuli can never both fire it.
func (t *Trigger) Fire(ctx context.Context, payload map[string]any) error {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return ErrTriggerDisarmed
	}
	if !t.cfg.ReArmOnTrigger {
		t.armed = false
	}
	t.triggered = true
	t.fired++
	t.lastFired = time.Now()
	handler := t.handler
	t.mu.Unlock()

	t.emit(eventbus.TriggerTriggered, payload)
	if handler != nil {
		handler(ctx, t, payload)
	}

	t.mu.Lock()
	t.triggered = false
	t.mu.Unlock()

	if t.cfg.ReArmOnTrigger {
		t.emit(eventbus.TriggerRearmed, nil)
	} else {
		t.emit(eventbus.TriggerDisarmed, nil)
	}
	return nil
}

// Start begins watching for the trigger's stimulus.
func (t *Trigger) Start(ctx context.Context) error {
	if t.source == nil {
		return nil
	}
	return t.source.Start(ctx, t)
}

// Stop stops watching for the stimulus.
func (t *Trigger) Stop() error {
	if t.source == nil {
		return nil
	}
	return t.source.Stop()
}

func (t *Trigger) emit(kind eventbus.Kind, payload map[string]any) {
	data := map[string]any{
		"type":  t.cfg.Type,
		"armed": t.Armed(),
	}
	if len(payload) > 0 {
		data["payload"] = payload
	}
	t.bus.Publish(eventbus.Event{
		Kind:       kind,
		EntityType: eventbus.EntityTrigger,
		EntityID:   t.cfg.ID,
		Name:       t.cfg.Name,
		Data:       data,
	})
}
