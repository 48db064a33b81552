package triggers

import (
	"context"
	"sync"

	"github.com/nerrad567/showrunner/internal/automation"
	"github.com/nerrad567/showrunner/internal/automation/params"
)

// mqttSource fires on messages published to a topic.
type mqttSource struct {
	client Subscriber
	topic  string
	qos    byte
	match  matcher
	logger automation.Logger

	mu         sync.Mutex
	subscribed bool
}

func newMQTTSource(cfg automation.TriggerConfig, deps Deps) (automation.Source, error) {
	if deps.MQTT == nil {
		return nil, automation.NewValidationError("mqtt triggers need mqtt to be enabled")
	}
	p := params.Map(cfg.Params)
	topic, err := params.String(p, "topic")
	if err != nil {
		return nil, err
	}
	qos, err := params.IntOr(p, "qos", "qos", 0, 2, 1)
	if err != nil {
		return nil, err
	}
	m, err := newMatcher(p)
	if err != nil {
		return nil, err
	}
	return &mqttSource{client: deps.MQTT, topic: topic, qos: byte(qos), match: m, logger: deps.Logger}, nil
}

func (s *mqttSource) Start(ctx context.Context, t *automation.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribed {
		return nil
	}
	err := s.client.Subscribe(s.topic, s.qos, func(topic string, payload []byte) error {
		msg := string(payload)
		if !s.match.match(msg) {
			return nil
		}
		fire(ctx, t, s.logger, map[string]any{"topic": topic, "message": msg})
		return nil
	})
	if err != nil {
		return automation.NewTransportError("subscribing to "+s.topic, err)
	}
	s.subscribed = true
	return nil
}

func (s *mqttSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.subscribed {
		return nil
	}
	s.subscribed = false
	return s.client.Unsubscribe(s.topic)
}
