package venue

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"derivflow/internal/domain"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// handshakeWait bounds the authorize round trip during Connect.
	handshakeWait = 15 * time.Second

	// defaultBackoffBase is the first reconnect delay.
	defaultBackoffBase = 3 * time.Second

	// defaultBackoffCap bounds the exponential reconnect backoff.
	defaultBackoffCap = 300 * time.Second
)

// State is the connection state of a Link. Transitions are owned exclusively
// by the Link itself.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthorized
	StateReconnecting
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthorized:
		return "authorized"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Credentials authenticates a link against the venue. An empty Token marks a
// public (unauthenticated) feed.
type Credentials struct {
	Token string
	AppID string
}

// Fingerprint returns a stable hash of the credentials, used by the pool to
// detect credential changes without retaining the token.
func (c Credentials) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.AppID + "\x00" + c.Token))
	return hex.EncodeToString(sum[:])
}

// Callback receives every canonical event decoded from the link. It is
// invoked strictly sequentially; a slow callback backpressures the link's
// receive loop, never reorders it.
type Callback func(domain.Event)

// conn is the subset of *websocket.Conn the link uses. Tests substitute a
// scripted implementation.
type conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a transport connection to the venue.
type DialFunc func(ctx context.Context, url string) (conn, error)

func gorillaDial(ctx context.Context, url string) (conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// LinkConfig carries per-link tunables. Zero values select the defaults.
type LinkConfig struct {
	URL                  string
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	MaxReconnectAttempts int // 0 = retry forever
	Dial                 DialFunc
}

// Link is one physical WebSocket connection to the venue. It owns the
// authorization handshake, a FIFO pending queue for frames sent before
// authorization, the set of active subscriptions (replayed after every
// reconnect), and reconnect-with-backoff. A link is never shared across
// pool keys.
type Link struct {
	key    string
	cfg    LinkConfig
	creds  Credentials
	norm   *Normalizer
	logger *slog.Logger

	mu       sync.Mutex
	conn     conn
	state    State
	pending  [][]byte
	subs     [][]byte
	callback Callback
	backoff  time.Duration
	attempts int
	done     chan struct{}
	closed   bool
}

// NewLink creates a Link for the given pool key. The link starts
// Disconnected; Connect must be called before any frames flow.
func NewLink(key string, creds Credentials, norm *Normalizer, cfg LinkConfig, logger *slog.Logger) *Link {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.Dial == nil {
		cfg.Dial = gorillaDial
	}
	return &Link{
		key:     key,
		cfg:     cfg,
		creds:   creds,
		norm:    norm,
		logger:  logger.With(slog.String("component", "venue_link"), slog.String("key", key)),
		state:   StateDisconnected,
		backoff: cfg.BackoffBase,
		done:    make(chan struct{}),
	}
}

// State returns the current connection state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Healthy reports whether the link is usable for sends without queueing
// indefinitely.
func (l *Link) Healthy() bool {
	s := l.State()
	return s == StateConnected || s == StateAuthorized
}

// OnEvent registers the single inbound callback. At most one callback is
// registered; a later call replaces the earlier one.
func (l *Link) OnEvent(cb Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callback = cb
}

// Connect opens the transport and, when credentials are present, performs the
// authorization handshake. It blocks for at most the single handshake round
// trip; all further I/O happens on the background receive loop. A failed
// authorization is reported but leaves the link on the same reconnect path as
// a network failure.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("venue: connect %s: %w", l.key, domain.ErrLinkClosed)
	}
	if l.state == StateFailed {
		l.mu.Unlock()
		return fmt.Errorf("venue: connect %s: %w", l.key, domain.ErrLinkFailed)
	}
	l.state = StateConnecting
	l.mu.Unlock()

	c, err := l.cfg.Dial(ctx, l.cfg.URL)
	if err != nil {
		l.mu.Lock()
		l.state = StateDisconnected
		l.mu.Unlock()
		return fmt.Errorf("venue: connect %s: %w", l.key, err)
	}

	// The link stays Connecting until the pending queue is flushed below, so
	// concurrent Sends keep queueing instead of racing ahead of older frames.
	l.mu.Lock()
	l.conn = c
	l.mu.Unlock()

	if l.creds.Token != "" {
		if err := l.handshake(c); err != nil {
			// Authorization failure is not fatal: close the transport and
			// let the caller (or the reconnect loop) retry on the backoff
			// path.
			_ = c.Close()
			l.mu.Lock()
			l.conn = nil
			l.state = StateDisconnected
			l.mu.Unlock()
			return fmt.Errorf("venue: connect %s: %w", l.key, err)
		}
	}

	// Flush the pending queue as one in-order burst, replay the active
	// subscriptions, then mark the link ready. Holding the lock keeps
	// concurrent Sends from interleaving with the burst.
	l.mu.Lock()
	flush := l.pending
	l.pending = nil
	for i, frame := range flush {
		if err := l.writeFrame(c, frame); err != nil {
			// Keep the unflushed tail queued for the next authorization.
			l.pending = append(l.pending, flush[i:]...)
			l.logger.Warn("pending flush failed",
				slog.Int("flushed", i),
				slog.Int("queued", len(flush)),
				slog.String("error", err.Error()),
			)
			break
		}
	}
	for _, frame := range l.subs {
		if err := l.writeFrame(c, frame); err != nil {
			// The subscription set is retained; the next connect replays it.
			l.logger.Warn("subscription replay failed", slog.String("error", err.Error()))
			break
		}
	}
	if l.creds.Token != "" {
		l.state = StateAuthorized
	} else {
		l.state = StateConnected
	}
	l.attempts = 0
	l.backoff = l.cfg.BackoffBase
	l.mu.Unlock()

	go l.receiveLoop(c)

	l.logger.Info("link connected", slog.String("state", l.State().String()))
	return nil
}

// handshake sends the authorize frame and reads frames until the venue
// acknowledges or rejects the authorization.
func (l *Link) handshake(c conn) error {
	frame, err := json.Marshal(authorizeFrame{Authorize: l.creds.Token})
	if err != nil {
		return fmt.Errorf("marshal authorize: %w", err)
	}
	if err := l.writeFrame(c, frame); err != nil {
		return fmt.Errorf("send authorize: %w", err)
	}

	_ = c.SetReadDeadline(time.Now().Add(handshakeWait))
	defer c.SetReadDeadline(time.Time{})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return fmt.Errorf("authorize read: %w", err)
		}
		ev, ok := l.norm.Normalize(context.Background(), raw)
		if !ok {
			continue
		}
		switch ev.Type {
		case domain.EventAuthorize:
			return nil
		case domain.EventError:
			return fmt.Errorf("%w: %s (%s)", domain.ErrAuthorizeRejected, ev.Err.Message, ev.Err.Code)
		default:
			// The venue may interleave unrelated frames; keep reading.
		}
	}
}

// Authorize re-sends the authorization frame with a new token. The link must
// be at least Connected.
func (l *Link) Authorize(token string) error {
	l.mu.Lock()
	c := l.conn
	l.creds.Token = token
	l.mu.Unlock()
	if c == nil {
		return fmt.Errorf("venue: authorize %s: %w", l.key, domain.ErrWSDisconnect)
	}
	frame, err := json.Marshal(authorizeFrame{Authorize: token})
	if err != nil {
		return fmt.Errorf("venue: authorize %s: %w", l.key, err)
	}
	return l.writeFrame(c, frame)
}

// Send transmits a frame when the link is authorized (or public and
// connected); otherwise the frame joins the FIFO pending queue and is
// delivered in order after the next successful authorization. Frames are
// never dropped by Send.
func (l *Link) Send(frame []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("venue: send %s: %w", l.key, domain.ErrLinkClosed)
	}
	ready := l.state == StateAuthorized || (l.state == StateConnected && l.creds.Token == "")
	c := l.conn
	if !ready || c == nil {
		l.pending = append(l.pending, frame)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.writeFrame(c, frame)
}

// SendJSON marshals v and sends it as one text frame.
func (l *Link) SendJSON(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("venue: marshal frame: %w", err)
	}
	return l.Send(frame)
}

// subscribe records frame in the link's subscription set and, when the
// transport is ready, sends it immediately. The set is replayed after every
// successful connect, so streams survive a reconnect. Recording the same
// frame twice is a no-op.
func (l *Link) subscribe(frame []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fmt.Errorf("venue: subscribe %s: %w", l.key, domain.ErrLinkClosed)
	}
	tracked := false
	for _, f := range l.subs {
		if bytes.Equal(f, frame) {
			tracked = true
			break
		}
	}
	if !tracked {
		l.subs = append(l.subs, frame)
	}
	ready := l.state == StateAuthorized || (l.state == StateConnected && l.creds.Token == "")
	c := l.conn
	l.mu.Unlock()
	if !ready || c == nil {
		// Connect delivers the frame when it replays the subscription set.
		return nil
	}
	return l.writeFrame(c, frame)
}

// SubscribeTicks subscribes the link to the tick stream for symbol. The
// subscription is re-established automatically after a reconnect.
func (l *Link) SubscribeTicks(symbol string) error {
	frame, err := json.Marshal(subscribeFrame{Channel: "ticks", Symbol: symbol})
	if err != nil {
		return fmt.Errorf("venue: marshal frame: %w", err)
	}
	return l.subscribe(frame)
}

// SubscribeCandles requests a candle snapshot and live OHLC updates for
// symbol at the given granularity in seconds. The subscription is
// re-established automatically after a reconnect.
func (l *Link) SubscribeCandles(symbol string, granularity, count int) error {
	frame, err := json.Marshal(candlesFrame{
		TicksHistory: symbol,
		Style:        "candles",
		Granularity:  granularity,
		Count:        count,
		End:          "latest",
		Subscribe:    1,
	})
	if err != nil {
		return fmt.Errorf("venue: marshal frame: %w", err)
	}
	return l.subscribe(frame)
}

// RequestProposal asks the venue to quote a contract.
func (l *Link) RequestProposal(symbol, contractType, amount, currency string, duration int, durationUnit string) error {
	return l.SendJSON(proposalFrame{
		Proposal:     1,
		Amount:       amount,
		Basis:        "stake",
		ContractType: contractType,
		Currency:     currency,
		Duration:     duration,
		DurationUnit: durationUnit,
		Symbol:       symbol,
	})
}

// Buy places a contract against a quoted proposal ID at the given price.
func (l *Link) Buy(proposalID, price string) error {
	return l.SendJSON(buyFrame{Buy: proposalID, Price: price})
}

// Disconnect tears the link down. It is idempotent and safe to call from any
// state, including while the receive loop is in flight; in-flight sends are
// abandoned, not retried.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.state = StateDisconnected
	close(l.done)
	c := l.conn
	l.conn = nil
	l.mu.Unlock()

	if c != nil {
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return c.Close()
	}
	return nil
}

// receiveLoop reads frames until the connection drops or the link is closed.
// Each decoded frame is handed to the registered callback in arrival order.
// Malformed frames are skipped; a closed connection triggers the reconnect
// procedure exactly once per loop exit.
func (l *Link) receiveLoop(c conn) {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		_, raw, err := c.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			l.logger.Warn("receive loop ended", slog.String("error", err.Error()))
			l.reconnect()
			return
		}

		ev, ok := l.norm.Normalize(context.Background(), raw)
		if !ok {
			continue
		}

		l.mu.Lock()
		cb := l.callback
		l.mu.Unlock()
		if cb != nil {
			cb(ev)
		}
	}
}

// reconnect retries Connect with exponential backoff. The delay starts at the
// configured base, doubles per failed attempt up to the cap, and resets to
// base inside Connect on the next successful authorization. When a positive
// attempt limit is exhausted the link transitions to Failed, which is
// terminal until the pool recreates it.
func (l *Link) reconnect() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.state = StateReconnecting
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
	l.mu.Unlock()

	for {
		l.mu.Lock()
		delay := l.backoff
		l.backoff *= 2
		if l.backoff > l.cfg.BackoffCap {
			l.backoff = l.cfg.BackoffCap
		}
		l.attempts++
		attempts := l.attempts
		l.mu.Unlock()

		if l.cfg.MaxReconnectAttempts > 0 && attempts > l.cfg.MaxReconnectAttempts {
			l.mu.Lock()
			l.state = StateFailed
			l.mu.Unlock()
			l.logger.Error("reconnect attempts exhausted", slog.Int("attempts", attempts-1))
			return
		}

		select {
		case <-l.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), handshakeWait)
		err := l.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		l.mu.Lock()
		if !l.closed && l.state != StateFailed {
			l.state = StateReconnecting
		}
		l.mu.Unlock()
		l.logger.Warn("reconnect attempt failed",
			slog.Int("attempt", attempts),
			slog.Duration("next_delay", delay*2),
			slog.String("error", err.Error()),
		)
	}
}

// writeFrame writes one text frame under the write deadline.
func (l *Link) writeFrame(c conn, frame []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("venue: write %s: %w", l.key, err)
	}
	return nil
}

// fingerprint returns the credential fingerprint this link was built with.
func (l *Link) fingerprint() string {
	return l.creds.Fingerprint()
}
