package domain

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// AccountRepository reads account state needed for risk assessment.
type AccountRepository interface {
	// GetBalance returns the current balance for the account.
	GetBalance(ctx context.Context, accountKey string) (decimal.Decimal, error)
	// GetTradeHistory returns settled trades for the account whose ClosedAt
	// falls within the trailing window, newest first.
	GetTradeHistory(ctx context.Context, accountKey string, window time.Duration) ([]TradeRecord, error)
}

// BalanceWriter records balance changes streamed by the venue.
type BalanceWriter interface {
	UpsertBalance(ctx context.Context, accountKey string, balance decimal.Decimal, currency string) error
}

// TradePersistence records trades and their settlement.
type TradePersistence interface {
	// RecordTrade persists a newly opened trade and returns its ID.
	RecordTrade(ctx context.Context, trade Trade) (string, error)
	// UpdateTradeStatus settles a trade with its final payout and profit.
	UpdateTradeStatus(ctx context.Context, id string, status TradeStatus, payout, profit decimal.Decimal) error
}

// PresentationChannel delivers a payload to one presentation subscriber.
// Delivery is best effort; failures are logged per subscriber and never
// propagate to the publisher.
type PresentationChannel interface {
	Send(ctx context.Context, subscriberKey string, payload []byte) error
	Name() string
}

// TickCache stores the latest tick per symbol for dashboard reads.
type TickCache interface {
	SetTick(ctx context.Context, tick Tick) error
	GetTick(ctx context.Context, symbol string) (Tick, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	// Allow reports whether a request under key is permitted given the
	// limit per window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus is a lightweight pub/sub transport between processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel that emits payloads until ctx is cancelled,
	// at which point the channel is closed.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
