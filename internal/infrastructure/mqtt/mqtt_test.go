package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/showrunner/internal/eventbus"
	"github.com/nerrad567/showrunner/internal/infrastructure/config"
)

// ─── Topics ─────────────────────────────────────────────────────────

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status default prefix", Topics{}.Status(), "showrunner/status"},
		{"status custom prefix", Topics{Prefix: "venue/"}.Status(), "venue/status"},
		{"routine event", Topics{}.Event("routine", "opening", "routine:completed"), "showrunner/events/routine/opening/completed"},
		{"timed out keeps casing", Topics{}.Event("routine", "r1", "routine:timedOut"), "showrunner/events/routine/r1/timedOut"},
		{"kind without prefix", Topics{}.Event("task", "t1", "custom"), "showrunner/events/task/t1/custom"},
		{"wildcards in id", Topics{}.Event("task", "a/b+#", "task:failed"), "showrunner/events/task/a_b__/failed"},
		{"empty id", Topics{}.Event("execution", "", "execution:persisted"), "showrunner/events/execution/_/persisted"},
		{"all events", Topics{Prefix: "x"}.AllEvents(), "x/events/#"},
		{"entity events", Topics{}.EntityEvents("trigger", "door"), "showrunner/events/trigger/door/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// ─── Options ────────────────────────────────────────────────────────

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "broker.local", Port: 8883, TLS: true, ClientID: "show-1"},
		Auth:   config.MQTTAuthConfig{Username: "user", Password: "pass"},
		QoS:    1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.local:8883" {
		t.Errorf("Servers = %v, want ssl://broker.local:8883", opts.Servers)
	}
	if opts.ClientID != "show-1" {
		t.Errorf("ClientID = %q, want show-1", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q, want user/pass", opts.Username, opts.Password)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS should be configured with the minimum version")
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("AutoReconnect and CleanSession should be enabled")
	}
}

func TestBuildClientOptions_PlainTCPWithoutAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = false
	cfg.Auth = config.MQTTAuthConfig{}

	opts := buildClientOptions(cfg)

	if opts.Servers[0].Scheme != "tcp" {
		t.Errorf("scheme = %q, want tcp", opts.Servers[0].Scheme)
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion == tlsMinVersion {
		t.Error("TLS should not be configured")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "venue"}.Status(), "show-1")

	if !opts.WillEnabled || opts.WillTopic != "venue/status" {
		t.Fatalf("will = %v %q, want enabled on venue/status", opts.WillEnabled, opts.WillTopic)
	}
	if opts.WillQos != 1 || !opts.WillRetained {
		t.Errorf("will qos=%d retained=%v, want 1 true", opts.WillQos, opts.WillRetained)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != "offline" || p.ClientID != "show-1" || p.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestStatusPayloads(t *testing.T) {
	var online, offline statusPayload
	if err := json.Unmarshal(buildOnlinePayload("c"), &online); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(buildOfflinePayload("c"), &offline); err != nil {
		t.Fatal(err)
	}
	if online.Status != "online" || online.Reason != "" {
		t.Errorf("online = %+v", online)
	}
	if offline.Status != "offline" || offline.Reason != "graceful_shutdown" {
		t.Errorf("offline = %+v", offline)
	}
}

// ─── Disconnected client ────────────────────────────────────────────

func TestClient_ValidationBeforeConnection(t *testing.T) {
	c := &Client{}
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", nil, 0, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("a", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("a", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("a", []byte("x"), 1, false), ErrNotConnected},
		{"subscribe empty topic", c.Subscribe("", 0, noop), ErrInvalidTopic},
		{"subscribe bad qos", c.Subscribe("a", 5, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("a", 0, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("a", 0, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("a"), ErrNotConnected},
		{"health check", c.HealthCheck(t.Context()), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 || c.HasSubscription("a") {
		t.Error("failed subscriptions must not be tracked")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client = %v", err)
	}
}

// ─── Handler wrapping ───────────────────────────────────────────────

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestWrapHandler(t *testing.T) {
	c := &Client{}
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})(nil, fakeMessage{topic: "door/1", payload: []byte("open")})
	if got != "door/1=open" {
		t.Errorf("handler saw %q", got)
	}

	c.wrapHandler(func(string, []byte) error { return errors.New("boom") })(nil, fakeMessage{topic: "a"})
	c.wrapHandler(func(string, []byte) error { panic("bad") })(nil, fakeMessage{topic: "a"})

	if len(logger.warns) != 1 || len(logger.errors) != 1 {
		t.Errorf("warns=%v errors=%v, want one of each", logger.warns, logger.errors)
	}
}

// ─── EventSink ──────────────────────────────────────────────────────

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic, payload, qos, retained})
	return nil
}

func TestEventSink_Deliver(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, "venue", 1)

	var _ eventbus.Sink = sink

	sink.Deliver(eventbus.Event{
		ID:         "e1",
		Kind:       eventbus.RoutineCompleted,
		EntityType: eventbus.EntityRoutine,
		EntityID:   "opening",
		RunID:      "run-1",
		Data:       map[string]any{"status": "completed"},
	})

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	m := pub.msgs[0]
	if m.topic != "venue/events/routine/opening/completed" {
		t.Errorf("topic = %q", m.topic)
	}
	if m.qos != 1 || m.retained {
		t.Errorf("qos=%d retained=%v, want 1 false", m.qos, m.retained)
	}

	var e eventbus.Event
	if err := json.Unmarshal(m.payload, &e); err != nil {
		t.Fatalf("payload is not an event: %v", err)
	}
	if e.RunID != "run-1" || e.Data["status"] != "completed" {
		t.Errorf("decoded event = %+v", e)
	}
}

func TestEventSink_PublishFailureIsLogged(t *testing.T) {
	pub := &fakePublisher{err: ErrNotConnected}
	logger := &recordingLogger{}
	sink := NewEventSink(pub, "", 0)
	sink.SetLogger(logger)

	sink.Deliver(eventbus.Event{Kind: eventbus.TaskFailed, EntityType: eventbus.EntityTask, EntityID: "t"})

	if len(logger.errors) != 1 || !strings.Contains(logger.errors[0], "MQTT") {
		t.Errorf("errors = %v, want one publish failure", logger.errors)
	}
}
