package venue

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivflow/internal/domain"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(nil, slog.New(slog.DiscardHandler))
}

func TestNormalizeTick(t *testing.T) {
	n := newTestNormalizer()
	raw := []byte(`{"msg_type":"tick","tick":{"symbol":"R_100","quote":101.5,"bid":101.4,"ask":101.6,"epoch":1700000000}}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	require.Equal(t, domain.EventTick, ev.Type)
	require.NotNil(t, ev.Tick)
	assert.Equal(t, "R_100", ev.Tick.Symbol)
	assert.Equal(t, 101.5, ev.Tick.Quote)
	assert.Equal(t, 101.4, ev.Tick.Bid)
	assert.Equal(t, 101.6, ev.Tick.Ask)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Tick.Epoch)
	assert.False(t, ev.ReceivedAt.IsZero())
}

func TestNormalizeOHLC(t *testing.T) {
	n := newTestNormalizer()
	raw := []byte(`{"msg_type":"ohlc","ohlc":{"symbol":"R_50","open":"100.1","high":"100.9","low":"99.8","close":"100.4","open_time":1700000060,"granularity":60}}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	require.Equal(t, domain.EventCandle, ev.Type)
	require.NotNil(t, ev.Candle)
	assert.Equal(t, "R_50", ev.Candle.Symbol)
	assert.Equal(t, 100.1, ev.Candle.Open)
	assert.Equal(t, 100.4, ev.Candle.Close)
	assert.Equal(t, 60, ev.Candle.Granularity)
	assert.Equal(t, time.Unix(1700000060, 0).UTC(), ev.Candle.Epoch)
}

func TestNormalizeCandleSnapshotCarriesSymbol(t *testing.T) {
	n := newTestNormalizer()
	raw := []byte(`{"msg_type":"candles","echo_req":{"ticks_history":"R_100","style":"candles"},"candles":[{"open":"100","high":"101","low":"99","close":"100.5","epoch":1700000000},{"open":"100.5","high":"102","low":"100","close":"101.5","epoch":1700000060}]}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	require.Equal(t, domain.EventCandleSnapshot, ev.Type)
	require.Len(t, ev.Candles, 2)
	assert.Equal(t, "R_100", ev.Candles[0].Symbol)
	assert.Equal(t, "R_100", ev.Candles[1].Symbol)
	assert.Equal(t, 101.5, ev.Candles[1].Close)
}

func TestNormalizeBalance(t *testing.T) {
	n := newTestNormalizer()
	raw := []byte(`{"msg_type":"balance","balance":{"balance":1234.56,"currency":"USD","loginid":"CR90001"}}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	require.Equal(t, domain.EventBalance, ev.Type)
	require.NotNil(t, ev.Balance)
	assert.Equal(t, "CR90001", ev.Balance.AccountKey)
	assert.Equal(t, "1234.56", ev.Balance.Balance.String())
	assert.Equal(t, "USD", ev.Balance.Currency)
}

func TestNormalizeProposalAndBuy(t *testing.T) {
	n := newTestNormalizer()

	ev, ok := n.Normalize(context.Background(), []byte(`{"proposal":{"id":"abc-123","ask_price":5.21,"payout":10,"spot":101.2,"longcode":"Win payout if..."}}`))
	require.True(t, ok)
	require.Equal(t, domain.EventProposal, ev.Type)
	assert.Equal(t, "abc-123", ev.Proposal.ID)
	assert.Equal(t, "5.21", ev.Proposal.AskPrice.String())

	ev, ok = n.Normalize(context.Background(), []byte(`{"buy":{"contract_id":42,"transaction_id":99,"buy_price":5.21,"payout":10,"start_time":1700000000,"longcode":"Win payout if..."}}`))
	require.True(t, ok)
	require.Equal(t, domain.EventBuy, ev.Type)
	assert.Equal(t, int64(42), ev.Buy.ContractID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ev.Buy.StartTime)
}

func TestNormalizeContractSold(t *testing.T) {
	n := newTestNormalizer()
	raw := []byte(`{"proposal_open_contract":{"contract_id":42,"loginid":"CR90001","status":"won","profit":4.79,"payout":10,"entry_spot":101.2,"exit_tick":101.9,"is_sold":1,"sell_time":1700000300}}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	require.Equal(t, domain.EventContract, ev.Type)
	assert.True(t, ev.Contract.IsSold)
	assert.Equal(t, "4.79", ev.Contract.Profit.String())
	assert.Equal(t, time.Unix(1700000300, 0).UTC(), ev.Contract.SoldAt)
}

func TestNormalizeErrorFrame(t *testing.T) {
	n := newTestNormalizer()
	raw := []byte(`{"error":{"code":"InvalidToken","message":"The token is invalid."}}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	require.Equal(t, domain.EventError, ev.Type)
	assert.Equal(t, "InvalidToken", ev.Err.Code)
}

func TestNormalizeFirstKeyWins(t *testing.T) {
	// A frame carrying several known keys must classify by discriminator
	// order, so classification is stable regardless of map iteration.
	n := newTestNormalizer()
	raw := []byte(`{"tick":{"symbol":"R_100","quote":100,"epoch":1700000000},"error":{"code":"X","message":"ignored"}}`)

	ev, ok := n.Normalize(context.Background(), raw)
	require.True(t, ok)
	assert.Equal(t, domain.EventTick, ev.Type)
}

func TestNormalizeDropsUnknownAndMalformed(t *testing.T) {
	n := newTestNormalizer()

	_, ok := n.Normalize(context.Background(), []byte(`{"ping":1}`))
	assert.False(t, ok)

	_, ok = n.Normalize(context.Background(), []byte(`not json`))
	assert.False(t, ok)

	// Known key with a payload of the wrong shape is dropped, not an error.
	_, ok = n.Normalize(context.Background(), []byte(`{"tick":"nope"}`))
	assert.False(t, ok)

	// A known key explicitly null falls through to the next discriminator.
	ev, ok := n.Normalize(context.Background(), []byte(`{"tick":null,"balance":{"balance":1,"currency":"USD","loginid":"CR1"}}`))
	require.True(t, ok)
	assert.Equal(t, domain.EventBalance, ev.Type)
}

func TestNormalizeFansOutBalanceToSink(t *testing.T) {
	sink := newCaptureSink(t)
	n := NewNormalizer(sink.Sink, slog.New(slog.DiscardHandler))

	_, ok := n.Normalize(context.Background(), []byte(`{"balance":{"balance":50,"currency":"USD","loginid":"CR1"}}`))
	require.True(t, ok)
	assert.Equal(t, []string{"balance"}, sink.kinds())
}
