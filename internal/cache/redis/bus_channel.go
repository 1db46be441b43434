package redis

import (
	"context"
	"encoding/json"

	"derivflow/internal/domain"
)

// BusChannel adapts a SignalBus into a presentation channel, mirroring every
// broadcast onto a Redis Pub/Sub channel so monitor processes and external
// dashboards can follow the event stream without a socket to this process.
type BusChannel struct {
	bus    domain.SignalBus
	prefix string
}

// NewBusChannel creates a BusChannel publishing under the given channel
// prefix, typically "ch" to match the hub's channel names.
func NewBusChannel(bus domain.SignalBus, prefix string) *BusChannel {
	return &BusChannel{bus: bus, prefix: prefix}
}

// Name identifies the channel in broadcast logs.
func (bc *BusChannel) Name() string { return "redis:" + bc.prefix }

// Send publishes the payload. The Redis channel mirrors the hub layout:
// "<prefix>:<type>" with the symbol appended for tick envelopes, so a
// server-mode hub bridging the bus sees the same channels as a local sink.
func (bc *BusChannel) Send(ctx context.Context, subscriberKey string, payload []byte) error {
	env := struct {
		Type    string `json:"type"`
		Payload struct {
			Symbol string `json:"symbol"`
		} `json:"payload"`
	}{}
	channel := bc.prefix + ":status"
	if err := json.Unmarshal(payload, &env); err == nil && env.Type != "" {
		channel = bc.prefix + ":" + env.Type
		if env.Type == "tick" && env.Payload.Symbol != "" {
			channel += ":" + env.Payload.Symbol
		}
	}
	return bc.bus.Publish(ctx, channel, payload)
}
