package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// DefaultTopic is the watermill topic carrying broadcast events.
const DefaultTopic = "automation.events"

// Metadata keys set on broadcast messages.
const (
	MetadataKind   = "kind"
	MetadataEntity = "entity_type"
)

// Event is a domain state transition.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Name       string         `json:"name"`
	RunID      string         `json:"run_id,omitempty"`
	Time       time.Time      `json:"ts"`
	Data       map[string]any `json:"data,omitempty"`
}

// Handler receives events. Handlers run in the publisher's goroutine and
// must not block; long work belongs in a goroutine started by the handler.
type Handler func(Event)

// Logger is the logging contract used by the bus.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Bus dispatches events to local subscribers and broadcasts external ones.
type Bus struct {
	mu       sync.RWMutex
	byKind   map[Kind]*Observers[Event]
	all      Observers[Event]
	internal map[Kind]bool

	publisher message.Publisher
	topic     string
	logger    Logger
	now       func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithPublisher enables broadcasting of external events onto topic.
func WithPublisher(pub message.Publisher, topic string) Option {
	return func(b *Bus) {
		b.publisher = pub
		if topic != "" {
			b.topic = topic
		}
	}
}

// WithInternal marks additional kinds as process-internal.
func WithInternal(kinds ...Kind) Option {
	return func(b *Bus) {
		for _, k := range kinds {
			b.internal[k] = true
		}
	}
}

// WithLogger sets the logger used for broadcast failures.
func WithLogger(l Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		byKind:   make(map[Kind]*Observers[Event]),
		internal: make(map[Kind]bool),
		topic:    DefaultTopic,
		logger:   noopLogger{},
		now:      time.Now,
	}
	for _, k := range defaultInternal {
		b.internal[k] = true
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers h for one kind.
func (b *Bus) Subscribe(kind Kind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	obs, ok := b.byKind[kind]
	if !ok {
		obs = &Observers[Event]{}
		b.byKind[kind] = obs
	}
	b.mu.Unlock()
	return obs.Subscribe(h)
}

// SubscribeAll registers h for every kind.
func (b *Bus) SubscribeAll(h Handler) (unsubscribe func()) {
	return b.all.Subscribe(h)
}

// IsInternal reports whether events of kind stay inside the process.
func (b *Bus) IsInternal(kind Kind) bool {
	return b.internal[kind]
}

// Topic returns the broadcast topic.
func (b *Bus) Topic() string {
	return b.topic
}

// Publish stamps e with an id and time if missing, delivers it to local
// subscribers and, unless its kind is internal, broadcasts it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.ID == "" {
		e.ID = watermill.NewULID()
	}
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	obs := b.byKind[e.Kind]
	b.mu.RUnlock()
	if obs != nil {
		obs.Notify(e)
	}
	b.all.Notify(e)

	if b.publisher == nil || b.internal[e.Kind] {
		return
	}
	b.broadcast(e)
}

func (b *Bus) broadcast(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Warn("encoding event for broadcast", "kind", e.Kind, "error", err)
		return
	}

	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set(MetadataKind, string(e.Kind))
	msg.Metadata.Set(MetadataEntity, e.EntityType)

	if err := b.publisher.Publish(b.topic, msg); err != nil {
		b.logger.Warn("broadcasting event", "kind", e.Kind, "error", err)
		return
	}
	b.logger.Debug("event broadcast", "kind", e.Kind, "entity_id", e.EntityID)
}
