package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"derivflow/internal/domain"
)

// tickTTL bounds how long a stale tick survives; quiet symbols drop out of
// the cache rather than serving hours-old quotes.
const tickTTL = 5 * time.Minute

// TickCache implements domain.TickCache using Redis hashes. Each symbol's
// latest tick is stored at key "tick:{symbol}" with fields "quote", "bid",
// "ask" and "epoch" (Unix nanosecond timestamp).
type TickCache struct {
	rdb *redis.Client
}

// NewTickCache creates a TickCache backed by the given Client.
func NewTickCache(c *Client) *TickCache {
	return &TickCache{rdb: c.Underlying()}
}

func tickKey(symbol string) string {
	return "tick:" + symbol
}

// SetTick stores the latest tick for a symbol.
func (tc *TickCache) SetTick(ctx context.Context, tick domain.Tick) error {
	key := tickKey(tick.Symbol)
	fields := map[string]interface{}{
		"quote": strconv.FormatFloat(tick.Quote, 'f', -1, 64),
		"bid":   strconv.FormatFloat(tick.Bid, 'f', -1, 64),
		"ask":   strconv.FormatFloat(tick.Ask, 'f', -1, 64),
		"epoch": strconv.FormatInt(tick.Epoch.UnixNano(), 10),
	}
	pipe := tc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, tickTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", tick.Symbol, err)
	}
	return nil
}

// GetTick retrieves the latest tick for a symbol. It returns
// domain.ErrNotFound when the symbol has no cached tick.
func (tc *TickCache) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	vals, err := tc.rdb.HGetAll(ctx, tickKey(symbol)).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}

	tick := domain.Tick{Symbol: symbol}
	if tick.Quote, err = strconv.ParseFloat(vals["quote"], 64); err != nil {
		return domain.Tick{}, fmt.Errorf("redis: parse quote %s: %w", symbol, err)
	}
	if v, ok := vals["bid"]; ok {
		tick.Bid, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["ask"]; ok {
		tick.Ask, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["epoch"]; ok {
		nano, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return domain.Tick{}, fmt.Errorf("redis: parse epoch %s: %w", symbol, err)
		}
		tick.Epoch = time.Unix(0, nano)
	}
	return tick, nil
}
