package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Sink receives broadcast events.
type Sink interface {
	Deliver(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Deliver calls f(e).
func (f SinkFunc) Deliver(e Event) { f(e) }

// Broadcaster matches the WebSocket hub's channel fan-out.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// BroadcasterSink forwards each event to b on a channel named after the
// event's entity type.
func BroadcasterSink(b Broadcaster) Sink {
	return SinkFunc(func(e Event) {
		b.Broadcast(e.EntityType, e)
	})
}

// NewGoChannel creates the in-process watermill pub/sub used between the bus
// and the relay. Publish returns once every subscriber has acked, so sinks
// see events in the order the bus published them.
func NewGoChannel(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
}

// Relay consumes the broadcast topic and fans events out to sinks.
type Relay struct {
	subscriber message.Subscriber
	topic      string
	sinks      []Sink
	logger     Logger
}

// NewRelay creates a relay reading topic from sub.
func NewRelay(sub message.Subscriber, topic string, logger Logger, sinks ...Sink) *Relay {
	if logger == nil {
		logger = noopLogger{}
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Relay{subscriber: sub, topic: topic, sinks: sinks, logger: logger}
}

// Subscribe attaches to the topic and returns the message channel. Run
// must be called with it; splitting the two lets callers make sure the
// subscription exists before the first event is published.
func (r *Relay) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	msgs, err := r.subscriber.Subscribe(ctx, r.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", r.topic, err)
	}
	return msgs, nil
}

// Run delivers messages until ctx is cancelled or the channel closes.
func (r *Relay) Run(ctx context.Context, msgs <-chan *message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handle(msg)
		}
	}
}

func (r *Relay) handle(msg *message.Message) {
	defer msg.Ack()

	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		r.logger.Warn("dropping undecodable event", "message_uuid", msg.UUID, "error", err)
		return
	}
	for _, sink := range r.sinks {
		r.deliver(sink, e)
	}
}

func (r *Relay) deliver(sink Sink, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("event sink panicked", "kind", e.Kind, "panic", fmt.Sprint(rec))
		}
	}()
	sink.Deliver(e)
}
