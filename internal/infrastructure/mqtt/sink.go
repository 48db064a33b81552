package mqtt

import (
	"encoding/json"

	"github.com/nerrad567/showrunner/internal/eventbus"
)

// Publisher is the part of Client used by EventSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventSink republishes domain events as JSON, one topic per event.
// It implements eventbus.Sink.
type EventSink struct {
	pub    Publisher
	topics Topics
	qos    byte
	logger Logger
}

// NewEventSink builds a sink publishing under prefix at qos.
func NewEventSink(pub Publisher, prefix string, qos byte) *EventSink {
	return &EventSink{pub: pub, topics: Topics{Prefix: prefix}, qos: qos}
}

// SetLogger sets the logger for publish failures.
func (s *EventSink) SetLogger(l Logger) { s.logger = l }

// Deliver publishes e. Failures are logged and dropped.
func (s *EventSink) Deliver(e eventbus.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logError("encoding event for MQTT failed", err, e)
		return
	}
	topic := s.topics.Event(e.EntityType, e.EntityID, string(e.Kind))
	if err := s.pub.Publish(topic, payload, s.qos, false); err != nil {
		s.logError("publishing event to MQTT failed", err, e)
	}
}

func (s *EventSink) logError(msg string, err error, e eventbus.Event) {
	if s.logger == nil {
		return
	}
	s.logger.Error(msg, "error", err, "kind", string(e.Kind), "entity_id", e.EntityID)
}
