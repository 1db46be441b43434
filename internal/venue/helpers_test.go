package venue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"derivflow/internal/broadcast"
)

// captureSink records the envelope kinds published through a broadcast sink.
type captureSink struct {
	*broadcast.Sink
	mu   sync.Mutex
	seen []string
}

func newCaptureSink(t *testing.T) *captureSink {
	t.Helper()
	cs := &captureSink{Sink: broadcast.NewSink(slog.New(slog.DiscardHandler))}
	cs.Register("capture", captureChannel{cs})
	return cs
}

func (cs *captureSink) kinds() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.seen...)
}

type captureChannel struct {
	cs *captureSink
}

func (c captureChannel) Name() string { return "capture" }

func (c captureChannel) Send(_ context.Context, _ string, payload []byte) error {
	env := struct {
		Type string `json:"type"`
	}{}
	if err := json.Unmarshal(payload, &env); err != nil {
		return err
	}
	c.cs.mu.Lock()
	c.cs.seen = append(c.cs.seen, env.Type)
	c.cs.mu.Unlock()
	return nil
}

// fakeConn is a scripted transport. Inbound frames are fed through the
// inbound channel; closing the conn unblocks pending reads.
type fakeConn struct {
	mu      sync.Mutex
	wrote   [][]byte
	inbound chan []byte
	once    sync.Once
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{inbound: make(chan []byte, 16)}
	for _, f := range frames {
		c.inbound <- []byte(f)
	}
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	raw, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("use of closed connection")
	}
	return websocket.TextMessage, raw, nil
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	c.mu.Lock()
	c.wrote = append(c.wrote, data)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.inbound) })
	return nil
}

// written returns a snapshot of the text frames sent so far.
func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.wrote))
	for i, f := range c.wrote {
		out[i] = string(f)
	}
	return out
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
