// Package ws bridges the broadcast sink and the signal bus to browser
// WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"derivflow/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// defaultChannels are the channels every client starts subscribed to. They
// mirror the kinds the broadcast sink publishes.
var defaultChannels = []string{
	"ch:tick:*",
	"ch:signal",
	"ch:trade",
	"ch:balance",
	"ch:contract",
	"ch:status",
}

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed channels
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to manage subscriptions:
// {"subscribe": ["ch:trade"]} or {"unsubscribe": ["ch:tick:*"]}.
type subscribeMsg struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// Hub manages the connected WebSocket clients and routes published messages
// to everyone subscribed to the message's channel. Messages arrive either
// locally through Publish or from other processes through the signal bus.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus // nil when running without Redis
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	symbols    []string
	startedAt  time.Time
}

// broadcastMsg carries a message along with its source channel so the hub
// can route it only to clients subscribed to that channel.
type broadcastMsg struct {
	channel string
	data    []byte
}

// Config captures runtime metadata reported in the status snapshot sent to
// clients on connect.
type Config struct {
	Mode      string
	Symbols   []string
	StartedAt time.Time
}

// NewHub creates a hub. bus may be nil; then only locally published messages
// are delivered.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		symbols:    cfg.Symbols,
		startedAt:  startedAt,
	}
}

// Publish injects a message into the hub from inside the process.
func (h *Hub) Publish(channel string, data []byte) {
	select {
	case h.broadcast <- broadcastMsg{channel: channel, data: data}:
	default:
		h.logger.Warn("hub broadcast buffer full, dropping message",
			slog.String("channel", channel),
		)
	}
}

// SinkChannel adapts the hub into a broadcast sink target. The sink's kind
// becomes the hub channel, prefixed "ch:".
type SinkChannel struct {
	hub *Hub
}

// Channel returns a sink target feeding this hub.
func (h *Hub) Channel() *SinkChannel { return &SinkChannel{hub: h} }

// Name identifies the hub in broadcast logs.
func (sc *SinkChannel) Name() string { return "ws_hub" }

// Send delivers the payload to hub clients subscribed to the kind's channel.
// Tick envelopes carry the symbol in the channel name so clients can follow
// a single instrument.
func (sc *SinkChannel) Send(ctx context.Context, subscriberKey string, payload []byte) error {
	sc.hub.Publish(envelopeChannel(payload), payload)
	return nil
}

// envelopeChannel derives the hub channel from a broadcast envelope.
func envelopeChannel(payload []byte) string {
	env := struct {
		Type    string `json:"type"`
		Payload struct {
			Symbol string `json:"symbol"`
		} `json:"payload"`
	}{}
	if err := json.Unmarshal(payload, &env); err != nil || env.Type == "" {
		return "ch:status"
	}
	channel := "ch:" + env.Type
	if env.Type == "tick" && env.Payload.Symbol != "" {
		channel += ":" + env.Payload.Symbol
	}
	return channel
}

// Run starts the hub's main event loop. It should be called in a goroutine
// and exits when the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range defaultChannels {
			go h.subscribeToChannel(ctx, ch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", slog.Int("total_clients", h.clientCount()))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.Int("total_clients", h.clientCount()))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if c.isSubscribed(msg.channel) {
					select {
					case c.send <- msg.data:
					default:
						// Client's send buffer is full; drop the message.
						h.logger.Warn("dropping message for slow client")
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeToChannel follows one signal-bus channel and forwards received
// messages into the hub's broadcast loop.
func (h *Hub) subscribeToChannel(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("subscribed to bus channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("bus subscription closed", slog.String("channel", channel))
				return
			}
			h.broadcast <- broadcastMsg{channel: channel, data: data}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, ch := range defaultChannels {
		c.subs[ch] = true
	}

	h.register <- c
	c.sendInitialStatus()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads subscription management frames from the client until the
// connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil &&
			(len(sub.Subscribe) > 0 || len(sub.Unsubscribe) > 0) {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range msg.Subscribe {
		c.subs[ch] = true
	}
	for _, ch := range msg.Unsubscribe {
		delete(c.subs, ch)
	}
}

// sendInitialStatus pushes a small JSON envelope so clients can immediately
// mark the connection as healthy even when no market events are flowing yet.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"symbols":        c.hub.symbols,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// isSubscribed checks whether the client is subscribed to the given channel,
// honoring trailing-* wildcards like "ch:tick:*".
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if strings.HasSuffix(sub, "*") && strings.HasPrefix(channel, strings.TrimSuffix(sub, "*")) {
			return true
		}
	}
	return false
}

// writePump pumps messages from the hub to the WebSocket connection as JSON
// text frames, with periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
