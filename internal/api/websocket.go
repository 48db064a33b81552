package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/showrunner/internal/infrastructure/config"
	"github.com/nerrad567/showrunner/internal/infrastructure/logging"
)

// Frame types exchanged with WebSocket clients.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll matches every channel.
	WSChannelAll = "*"

	wsQueueLen = 256
)

// WSMessage is a frame sent to a client. Clients send the same shape.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists channels for subscribe and unsubscribe frames.
// Channels are entity types (routine, task, trigger, execution) or "*".
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// inboundFrame defers payload decoding until the type is known.
type inboundFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func newFrame(typ, id, eventType string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      typ,
		ID:        id,
		EventType: eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
}

// Hub tracks connected clients and fans events out by channel.
type Hub struct {
	logger    *logging.Logger
	readLimit int64
	pingEvery time.Duration
	writeWait time.Duration

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a hub. Zero limits and intervals fall back to defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return &Hub{
		logger:    logger,
		readLimit: int64(cfg.MaxMessageSize),
		pingEvery: time.Duration(cfg.PingInterval) * time.Second,
		writeWait: time.Duration(cfg.PongTimeout) * time.Second,
		clients:   make(map[*WSClient]struct{}),
	}
}

// readWait is how long a client may stay silent before it is dropped.
func (h *Hub) readWait() time.Duration { return h.pingEvery + h.writeWait }

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

func (h *Hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "subject", c.subject, "clients", n)
}

func (h *Hub) remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "subject", c.subject, "clients", n)
}

// Broadcast queues payload for every client subscribed to channel.
// Clients whose queue is full miss the frame.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := newFrame(WSTypeEvent, "", channel, payload)
	if err != nil {
		h.logger.Error("failed to encode websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		if c.channels.matches(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, c := range targets {
		if !c.enqueue(frame) {
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("websocket clients lagging", "channel", channel, "dropped", dropped)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// channelSet is a client's subscription set.
type channelSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

func (s *channelSet) add(chs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		s.set = make(map[string]struct{}, len(chs))
	}
	for _, ch := range chs {
		s.set[ch] = struct{}{}
	}
}

func (s *channelSet) remove(chs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chs {
		delete(s.set, ch)
	}
}

func (s *channelSet) matches(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.set[channel]; ok {
		return true
	}
	_, all := s.set[WSChannelAll]
	return all
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	subject  string
	channels channelSet

	mu     sync.Mutex
	queue  chan []byte
	closed bool
}

// enqueue reports false when the frame was dropped.
func (c *WSClient) enqueue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.queue <- frame:
		return true
	default:
		return false
	}
}

// shutdown closes the queue once; the writer then sends a close frame.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection. With JWT enabled the token
// travels in the "token" query parameter; "channel" parameters subscribe
// up front.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var subject string
	if s.secCfg.JWT.Enabled {
		token := q.Get("token")
		if token == "" {
			writeUnauthorized(w, "token query parameter is required")
			return
		}
		claims, err := ParseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			writeUnauthorized(w, "invalid or expired token")
			return
		}
		subject = claims.Subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:     s.hub,
		conn:    conn,
		subject: subject,
		queue:   make(chan []byte, wsQueueLen),
	}
	c.channels.add(q["channel"]...)

	s.hub.add(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	wait := c.hub.readWait()
	c.conn.SetReadLimit(c.hub.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "subject", c.subject, "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts as alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(wait)) //nolint:errcheck // read error surfaces above
		c.dispatch(data)
	}
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(c.hub.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind = websocket.TextMessage
			data []byte
		)
		select {
		case frame, ok := <-c.queue:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // peer may be gone
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(c.hub.writeWait))
				return
			}
			data = frame
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.writeWait)) //nolint:errcheck // write error surfaces below
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

// dispatch handles one client frame.
func (c *WSClient) dispatch(data []byte) {
	var in inboundFrame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(WSTypeError, "", map[string]string{"message": "invalid JSON message"})
		return
	}

	switch in.Type {
	case WSTypePing:
		c.reply(WSTypePong, in.ID, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if len(in.Payload) == 0 || json.Unmarshal(in.Payload, &sub) != nil {
			c.reply(WSTypeError, in.ID, map[string]string{"message": "invalid " + in.Type + " payload"})
			return
		}
		if in.Type == WSTypeSubscribe {
			c.channels.add(sub.Channels...)
			c.reply(WSTypeResponse, in.ID, map[string]any{"subscribed": sub.Channels})
		} else {
			c.channels.remove(sub.Channels...)
			c.reply(WSTypeResponse, in.ID, map[string]any{"unsubscribed": sub.Channels})
		}
		c.hub.logger.Debug("websocket subscriptions changed", "subject", c.subject, "op", in.Type, "channels", sub.Channels)
	default:
		c.reply(WSTypeError, in.ID, map[string]string{"message": "unknown message type: " + in.Type})
	}
}

func (c *WSClient) reply(typ, id string, payload any) {
	frame, err := newFrame(typ, id, "", payload)
	if err != nil {
		return
	}
	c.enqueue(frame)
}
