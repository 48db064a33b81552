package automation

import "github.com/nerrad567/showrunner/internal/eventbus"

// Publisher is the part of the event bus the domain objects need.
type Publisher interface {
	Publish(e eventbus.Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(eventbus.Event) {}

func publisherOrNoop(p Publisher) Publisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}
