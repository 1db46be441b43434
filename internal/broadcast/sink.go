// Package broadcast fans normalized events and trade-state changes out to
// subscribed presentation channels. Delivery is best effort: a failure to one
// subscriber is logged and never affects the others or the publisher.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Channel delivers a payload to one presentation subscriber.
type Channel interface {
	Send(ctx context.Context, subscriberKey string, payload []byte) error
	Name() string
}

// Sink is the fan-out point between the event pipeline and the presentation
// layer. Subscribers are keyed so they can be replaced or removed at runtime.
type Sink struct {
	mu          sync.RWMutex
	subscribers map[string]Channel
	logger      *slog.Logger
}

// NewSink creates an empty sink.
func NewSink(logger *slog.Logger) *Sink {
	return &Sink{
		subscribers: make(map[string]Channel),
		logger:      logger.With(slog.String("component", "broadcast")),
	}
}

// Register adds or replaces the subscriber under key.
func (s *Sink) Register(key string, ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[key] = ch
}

// Unregister removes the subscriber under key; unknown keys are a no-op.
func (s *Sink) Unregister(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, key)
}

// PublishEvent marshals payload into a typed envelope and delivers it to
// every subscriber. Per-subscriber failures are logged and swallowed.
func (s *Sink) PublishEvent(ctx context.Context, kind string, payload any) {
	msg, err := json.Marshal(map[string]any{
		"type":    kind,
		"payload": payload,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Warn("marshal broadcast payload failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return
	}
	s.publish(ctx, kind, msg)
}

func (s *Sink) publish(ctx context.Context, kind string, msg []byte) {
	s.mu.RLock()
	subs := make(map[string]Channel, len(s.subscribers))
	for k, ch := range s.subscribers {
		subs[k] = ch
	}
	s.mu.RUnlock()

	for key, ch := range subs {
		if err := ch.Send(ctx, key, msg); err != nil {
			s.logger.Warn("subscriber delivery failed",
				slog.String("subscriber", key),
				slog.String("channel", ch.Name()),
				slog.String("kind", kind),
				slog.String("error", err.Error()),
			)
		}
	}
}
