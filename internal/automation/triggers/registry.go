package triggers

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/infrastructure/mqtt"
)

// Trigger types.
const (
	TypeCron         = "cron"
	TypeCronExpr     = "cronExpr"
	TypeTCP          = "tcp"
	TypeUDP          = "udp"
	TypeAPI          = "api"
	TypeStartup      = "startup"
	TypeRoutineEvent = "routineEvent"
	TypeMQTT         = "mqtt"
)

// Events is the part of the event bus a routineEvent trigger listens on.
type Events interface {
	Subscribe(kind eventbus.Kind, h eventbus.Handler) (unsubscribe func())
}

// Subscriber is the part of the MQTT client an mqtt trigger needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Deps are the shared collaborators handed to trigger sources.
type Deps struct {
	// Location is the project timezone for cron schedules.
	Location *time.Location
	// Events feeds routineEvent triggers.
	Events Events
	// MQTT feeds mqtt triggers. nil rejects mqtt triggers at build time.
	MQTT Subscriber
	// Logger receives source-level diagnostics.
	Logger automation.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Logger == nil {
		d.Logger = automation.NopLogger()
	}
	return d
}

// SourceFactory builds the stimulus source for one trigger variant. A nil
// source means the trigger is only fired through Engine.FireTrigger.
type SourceFactory func(cfg automation.TriggerConfig, deps Deps) (automation.Source, error)

var factories = map[string]SourceFactory{
	TypeCron:         newCronSource,
	TypeCronExpr:     newCronExprSource,
	TypeTCP:          newTCPSource,
	TypeUDP:          newUDPSource,
	TypeAPI:          func(automation.TriggerConfig, Deps) (automation.Source, error) { return nil, nil },
	TypeStartup:      newStartupSource,
	TypeRoutineEvent: newRoutineEventSource,
	TypeMQTT:         newMQTTSource,
}

// New builds the trigger named by cfg.Type.
func New(cfg automation.TriggerConfig, bus automation.Publisher, deps Deps) (*automation.Trigger, error) {
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, automation.NewValidationError("unknown trigger type %q", cfg.Type)
	}
	src, err := f(cfg, deps.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("trigger %q: %w", cfg.ID, err)
	}
	return automation.NewTrigger(cfg, src, bus)
}

// Types lists the registered trigger types.
func Types() []string {
	out := make([]string, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
