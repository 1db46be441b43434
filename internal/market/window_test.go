package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivflow/internal/domain"
)

func tick(symbol string, quote float64, epoch int64) domain.Tick {
	return domain.Tick{Symbol: symbol, Quote: quote, Epoch: time.Unix(epoch, 0).UTC()}
}

func candle(symbol string, close float64, epoch int64) domain.Candle {
	return domain.Candle{Symbol: symbol, Close: close, Epoch: time.Unix(epoch, 0).UTC()}
}

func TestAppendTickTrimsToCap(t *testing.T) {
	c := NewCache()
	for i := 0; i < WindowCap+25; i++ {
		c.AppendTick(tick("R_100", float64(i), int64(i)))
	}

	snap := c.Snapshot("R_100")
	require.Len(t, snap.Ticks, WindowCap)
	// Oldest entries are dropped from the head; order is preserved.
	assert.Equal(t, float64(25), snap.Ticks[0].Quote)
	assert.Equal(t, float64(WindowCap+24), snap.Ticks[len(snap.Ticks)-1].Quote)
}

func TestUpsertCandleReplacesInProgressBar(t *testing.T) {
	c := NewCache()
	c.UpsertCandle(candle("R_100", 100.0, 60))
	c.UpsertCandle(candle("R_100", 100.5, 120))
	// Updates for the bar in progress replace it instead of appending.
	c.UpsertCandle(candle("R_100", 101.2, 120))

	snap := c.Snapshot("R_100")
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, 100.0, snap.Candles[0].Close)
	assert.Equal(t, 101.2, snap.Candles[1].Close)
}

func TestUpsertCandleTrimsToCap(t *testing.T) {
	c := NewCache()
	for i := 0; i < WindowCap+10; i++ {
		c.UpsertCandle(candle("R_100", float64(i), int64(i*60)))
	}

	snap := c.Snapshot("R_100")
	require.Len(t, snap.Candles, WindowCap)
	assert.Equal(t, float64(10), snap.Candles[0].Close)
}

func TestSetCandlesReplacesWindowAndFillsSymbol(t *testing.T) {
	c := NewCache()
	c.UpsertCandle(candle("R_100", 99.0, 0))

	// Snapshot candles from the venue carry no per-bar symbol.
	c.SetCandles("R_100", []domain.Candle{
		{Close: 100.0, Epoch: time.Unix(60, 0).UTC()},
		{Close: 100.5, Epoch: time.Unix(120, 0).UTC()},
	})

	snap := c.Snapshot("R_100")
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, "R_100", snap.Candles[0].Symbol)
	assert.Equal(t, 100.0, snap.Candles[0].Close)
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCache()
	c.AppendTick(tick("R_100", 100.0, 1))

	snap := c.Snapshot("R_100")
	snap.Ticks[0].Quote = -1

	again := c.Snapshot("R_100")
	assert.Equal(t, 100.0, again.Ticks[0].Quote, "mutating a snapshot must not leak into the cache")
}

func TestSnapshotUnknownSymbolIsEmpty(t *testing.T) {
	c := NewCache()
	snap := c.Snapshot("R_25")
	assert.Empty(t, snap.Ticks)
	assert.Empty(t, snap.Candles)
	assert.Equal(t, "R_25", snap.Symbol)
}

func TestSymbols(t *testing.T) {
	c := NewCache()
	c.AppendTick(tick("R_100", 100.0, 1))
	c.UpsertCandle(candle("R_50", 50.0, 60))

	assert.ElementsMatch(t, []string{"R_100", "R_50"}, c.Symbols())
}
