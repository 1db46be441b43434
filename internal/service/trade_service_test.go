package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"derivflow/internal/domain"
)

func newPendingTestService(t *testing.T, interval time.Duration) *TradeService {
	t.Helper()
	cfg := TradeConfig{
		AccountKey:       "acct",
		Symbols:          []string{"R_100"},
		Stake:            decimal.NewFromInt(10),
		AnalysisInterval: interval,
	}
	return NewTradeService(nil, nil, nil, nil, nil, nil, nil, nil, nil, cfg,
		slog.New(slog.DiscardHandler))
}

func TestPendingOrderBlocksNextPass(t *testing.T) {
	s := newPendingTestService(t, time.Minute)

	assert.False(t, s.pendingInFlight(context.Background()), "no order yet")

	s.mu.Lock()
	s.pending = &pendingOrder{
		symbol:      "R_100",
		result:      domain.ConsensusResult{Decision: domain.DecisionRise},
		stake:       decimal.NewFromInt(10),
		requestedAt: time.Now().UTC(),
	}
	s.mu.Unlock()

	assert.True(t, s.pendingInFlight(context.Background()))

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotNil(t, s.pending, "a fresh order must keep its slot")
}

func TestPendingOrderExpiresWithoutVenueReply(t *testing.T) {
	s := newPendingTestService(t, 50*time.Millisecond)

	s.mu.Lock()
	s.pending = &pendingOrder{
		symbol:      "R_100",
		result:      domain.ConsensusResult{Decision: domain.DecisionRise},
		stake:       decimal.NewFromInt(10),
		requestedAt: time.Now().UTC().Add(-time.Second),
	}
	s.mu.Unlock()

	assert.False(t, s.pendingInFlight(context.Background()),
		"a stale order must release the slot")

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.pending)
}
