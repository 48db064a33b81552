// Package eventbus connects automation state transitions to their observers.
//
// A single Bus is created at process start and handed to every component
// that publishes or listens. Local subscribers are called synchronously in
// the publisher's goroutine, so the events of one task or routine reach
// them in emission order. Events whose kind is not marked internal are
// additionally encoded onto a watermill topic, from which a Relay forwards
// them to external sinks such as the WebSocket hub and MQTT.
package eventbus
