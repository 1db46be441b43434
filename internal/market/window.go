// Package market holds the in-process market-data cache: a bounded window of
// recent ticks and candles per symbol. The cache has exactly one writer (the
// event pipeline) and many readers (strategy passes); readers always get a
// copied snapshot so a window never mutates mid-analysis.
package market

import (
	"sync"

	"derivflow/internal/domain"
)

// WindowCap is the maximum retained ticks and candles per symbol.
const WindowCap = 600

// Snapshot is a consistent, caller-owned copy of one symbol's window,
// ordered oldest first.
type Snapshot struct {
	Symbol  string
	Ticks   []domain.Tick
	Candles []domain.Candle
}

// Cache is the per-symbol market window store.
type Cache struct {
	mu      sync.RWMutex
	cap     int
	ticks   map[string][]domain.Tick
	candles map[string][]domain.Candle
}

// NewCache creates a Cache with the default window cap.
func NewCache() *Cache {
	return &Cache{
		cap:     WindowCap,
		ticks:   make(map[string][]domain.Tick),
		candles: make(map[string][]domain.Candle),
	}
}

// AppendTick appends a tick to the symbol's window, trimming from the head
// beyond the cap.
func (c *Cache) AppendTick(t domain.Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := append(c.ticks[t.Symbol], t)
	if over := len(w) - c.cap; over > 0 {
		w = append([]domain.Tick(nil), w[over:]...)
	}
	c.ticks[t.Symbol] = w
}

// UpsertCandle appends a candle, or replaces the most recent one when the
// epoch matches — the venue streams in-progress updates for the current bar.
func (c *Cache) UpsertCandle(cd domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.candles[cd.Symbol]
	if n := len(w); n > 0 && w[n-1].Epoch.Equal(cd.Epoch) {
		w[n-1] = cd
		c.candles[cd.Symbol] = w
		return
	}
	w = append(w, cd)
	if over := len(w) - c.cap; over > 0 {
		w = append([]domain.Candle(nil), w[over:]...)
	}
	c.candles[cd.Symbol] = w
}

// SetCandles replaces the symbol's candle window with a snapshot from the
// venue, trimmed to the cap from the head.
func (c *Cache) SetCandles(symbol string, candles []domain.Candle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := append([]domain.Candle(nil), candles...)
	if over := len(w) - c.cap; over > 0 {
		w = append([]domain.Candle(nil), w[over:]...)
	}
	for i := range w {
		if w[i].Symbol == "" {
			w[i].Symbol = symbol
		}
	}
	c.candles[symbol] = w
}

// Snapshot returns a copy of the symbol's current window.
func (c *Cache) Snapshot(symbol string) Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Symbol:  symbol,
		Ticks:   append([]domain.Tick(nil), c.ticks[symbol]...),
		Candles: append([]domain.Candle(nil), c.candles[symbol]...),
	}
}

// Symbols returns every symbol with at least one observation.
func (c *Cache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{}, len(c.ticks)+len(c.candles))
	out := make([]string, 0, len(seen))
	for s := range c.ticks {
		seen[s] = struct{}{}
	}
	for s := range c.candles {
		seen[s] = struct{}{}
	}
	for s := range seen {
		out = append(out, s)
	}
	return out
}
