package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	mu       sync.Mutex
	name     string
	payloads [][]byte
	keys     []string
	err      error
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(_ context.Context, subscriberKey string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	r.keys = append(r.keys, subscriberKey)
	return nil
}

func (r *recordingChannel) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payloads)
}

func newTestSink() *Sink {
	return NewSink(slog.New(slog.DiscardHandler))
}

func TestPublishEventEnvelope(t *testing.T) {
	s := newTestSink()
	ch := &recordingChannel{name: "test"}
	s.Register("dash", ch)

	s.PublishEvent(context.Background(), "signal", map[string]any{"symbol": "R_100"})

	require.Equal(t, 1, ch.count())
	assert.Equal(t, []string{"dash"}, ch.keys)

	var env struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
		TS      string         `json:"ts"`
	}
	require.NoError(t, json.Unmarshal(ch.payloads[0], &env))
	assert.Equal(t, "signal", env.Type)
	assert.Equal(t, "R_100", env.Payload["symbol"])
	assert.NotEmpty(t, env.TS)
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	s := newTestSink()
	a := &recordingChannel{name: "a"}
	b := &recordingChannel{name: "b"}
	s.Register("a", a)
	s.Register("b", b)

	s.PublishEvent(context.Background(), "tick", map[string]any{"symbol": "R_100"})

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestFailingSubscriberDoesNotBlockOthers(t *testing.T) {
	s := newTestSink()
	bad := &recordingChannel{name: "bad", err: errors.New("send failed")}
	good := &recordingChannel{name: "good"}
	s.Register("bad", bad)
	s.Register("good", good)

	s.PublishEvent(context.Background(), "trade", map[string]any{"id": "t-1"})

	assert.Equal(t, 0, bad.count())
	assert.Equal(t, 1, good.count())
}

func TestRegisterReplacesAndUnregisterRemoves(t *testing.T) {
	s := newTestSink()
	first := &recordingChannel{name: "first"}
	second := &recordingChannel{name: "second"}

	s.Register("dash", first)
	s.Register("dash", second)
	s.PublishEvent(context.Background(), "status", map[string]any{})

	assert.Equal(t, 0, first.count(), "replaced channel must not receive")
	assert.Equal(t, 1, second.count())

	s.Unregister("dash")
	s.Unregister("dash") // unknown key is a no-op
	s.PublishEvent(context.Background(), "status", map[string]any{})
	assert.Equal(t, 1, second.count())
}

func TestUnmarshalablePayloadIsDropped(t *testing.T) {
	s := newTestSink()
	ch := &recordingChannel{name: "test"}
	s.Register("dash", ch)

	s.PublishEvent(context.Background(), "bad", map[string]any{"fn": func() {}})

	assert.Equal(t, 0, ch.count())
}
