package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivflow/internal/domain"
)

type fakeAccounts struct {
	balance decimal.Decimal
	history []domain.TradeRecord
}

func (f *fakeAccounts) GetBalance(ctx context.Context, accountKey string) (decimal.Decimal, error) {
	return f.balance, nil
}

func (f *fakeAccounts) GetTradeHistory(ctx context.Context, accountKey string, window time.Duration) ([]domain.TradeRecord, error) {
	return f.history, nil
}

func newGate(accounts domain.AccountRepository) *RiskGate {
	return NewRiskGate(accounts, DefaultRiskConfig(), slog.New(slog.DiscardHandler))
}

func lostTrade(stake, profit float64, closedAgo time.Duration) domain.TradeRecord {
	return domain.TradeRecord{
		Stake:    decimal.NewFromFloat(stake),
		Profit:   decimal.NewFromFloat(profit),
		Status:   domain.TradeLost,
		ClosedAt: time.Now().Add(-closedAgo),
	}
}

func TestAssessStakeExceedsBalance(t *testing.T) {
	gate := newGate(&fakeAccounts{balance: decimal.NewFromInt(100)})
	verdict, err := gate.Assess(context.Background(), "acct", decimal.NewFromInt(150))
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, domain.RiskCritical, verdict.Level)
	assert.Contains(t, verdict.Reasons, "stake 150 exceeds balance 100")
}

func TestAssessCleanAccountApproved(t *testing.T) {
	gate := newGate(&fakeAccounts{balance: decimal.NewFromInt(1000)})
	verdict, err := gate.Assess(context.Background(), "acct", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, verdict.Approved)
	assert.Equal(t, domain.RiskLow, verdict.Level)
	require.NotNil(t, verdict.Reasons)
	assert.Empty(t, verdict.Reasons)
}

func TestAssessEmptyBalance(t *testing.T) {
	gate := newGate(&fakeAccounts{balance: decimal.Zero})
	verdict, err := gate.Assess(context.Background(), "acct", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, domain.RiskCritical, verdict.Level)
}

func TestAssessStakeOutsideBounds(t *testing.T) {
	gate := newGate(&fakeAccounts{balance: decimal.NewFromInt(5000)})

	verdict, err := gate.Assess(context.Background(), "acct", decimal.NewFromFloat(0.1))
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, domain.RiskHigh, verdict.Level)

	verdict, err = gate.Assess(context.Background(), "acct", decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, domain.RiskHigh, verdict.Level)
}

func TestAssessDailyLossLimit(t *testing.T) {
	// Balance 1000, limit 10% = 100; 120 lost inside the window.
	accounts := &fakeAccounts{
		balance: decimal.NewFromInt(1000),
		history: []domain.TradeRecord{
			lostTrade(60, -60, 2*time.Hour),
			{Stake: decimal.NewFromInt(50), Profit: decimal.NewFromInt(40), Status: domain.TradeWon, ClosedAt: time.Now().Add(-3 * time.Hour)},
			lostTrade(60, -60, 4*time.Hour),
		},
	}
	verdict, err := newGate(accounts).Assess(context.Background(), "acct", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, domain.RiskCritical, verdict.Level)
}

func TestAssessConsecutiveLosses(t *testing.T) {
	history := make([]domain.TradeRecord, 0, 6)
	for i := 0; i < 5; i++ {
		history = append(history, lostTrade(5, -5, time.Duration(i+1)*time.Hour))
	}
	// An older win does not break the streak at the recent end.
	history = append(history, domain.TradeRecord{
		Stake: decimal.NewFromInt(5), Profit: decimal.NewFromInt(4),
		Status: domain.TradeWon, ClosedAt: time.Now().Add(-10 * time.Hour),
	})
	verdict, err := newGate(&fakeAccounts{balance: decimal.NewFromInt(10000), history: history}).
		Assess(context.Background(), "acct", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, verdict.Approved)
	assert.Equal(t, domain.RiskHigh, verdict.Level)
}

func TestAssessTradeFrequencyIsWarningOnly(t *testing.T) {
	history := make([]domain.TradeRecord, 0, 60)
	for i := 0; i < 60; i++ {
		history = append(history, domain.TradeRecord{
			Stake: decimal.NewFromInt(1), Profit: decimal.NewFromInt(1),
			Status: domain.TradeWon, ClosedAt: time.Now().Add(-time.Duration(i) * time.Minute / 2),
		})
	}
	verdict, err := newGate(&fakeAccounts{balance: decimal.NewFromInt(10000), history: history}).
		Assess(context.Background(), "acct", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, verdict.Approved, "Medium findings alone do not block")
	assert.Equal(t, domain.RiskMedium, verdict.Level)
	assert.Len(t, verdict.Reasons, 1)
}

func TestAssessReasonsKeepCheckOrder(t *testing.T) {
	// Zero balance with an oversized stake triggers checks 1, 2 and 3 in
	// that order.
	verdict, err := newGate(&fakeAccounts{balance: decimal.Zero}).
		Assess(context.Background(), "acct", decimal.NewFromInt(5000))
	require.NoError(t, err)
	require.Len(t, verdict.Reasons, 3)
	assert.Contains(t, verdict.Reasons[0], "balance")
	assert.Contains(t, verdict.Reasons[1], "outside allowed range")
	assert.Contains(t, verdict.Reasons[2], "exceeds balance")
}
