package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"derivflow/internal/domain"
)

// RiskConfig holds the tunable parameters for pre-trade risk checks.
type RiskConfig struct {
	MinStake decimal.Decimal
	MaxStake decimal.Decimal
	// MaxDailyLossPct is the trailing-24h realized loss, as a percentage
	// of the current balance, beyond which trading stops.
	MaxDailyLossPct    decimal.Decimal
	MaxConsecutiveLoss int
	MaxTradesPerHour   int
}

// DefaultRiskConfig returns the stock limits used when the config file
// leaves the risk section empty.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MinStake:           decimal.NewFromFloat(0.35),
		MaxStake:           decimal.NewFromInt(1000),
		MaxDailyLossPct:    decimal.NewFromInt(10),
		MaxConsecutiveLoss: 5,
		MaxTradesPerHour:   60,
	}
}

// RiskGate evaluates a proposed stake against the account's balance and its
// trailing trade history. The verdict is recomputed on every call and never
// cached.
type RiskGate struct {
	accounts domain.AccountRepository
	cfg      RiskConfig
	logger   *slog.Logger
}

// NewRiskGate creates a RiskGate with all required dependencies.
func NewRiskGate(accounts domain.AccountRepository, cfg RiskConfig, logger *slog.Logger) *RiskGate {
	return &RiskGate{
		accounts: accounts,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "risk_gate")),
	}
}

// Assess runs the full ordered check list for the given account and stake.
// The verdict carries every triggered issue, in check order, even when the
// trade is approved; an approved verdict has an empty (non-nil) reason list.
// The error return is reserved for repository failures.
func (g *RiskGate) Assess(ctx context.Context, accountKey string, stake decimal.Decimal) (domain.RiskVerdict, error) {
	balance, err := g.accounts.GetBalance(ctx, accountKey)
	if err != nil {
		return domain.RiskVerdict{}, fmt.Errorf("risk_gate: get balance: %w", err)
	}
	history, err := g.accounts.GetTradeHistory(ctx, accountKey, 24*time.Hour)
	if err != nil {
		return domain.RiskVerdict{}, fmt.Errorf("risk_gate: get trade history: %w", err)
	}

	verdict := domain.RiskVerdict{
		Level:   domain.RiskLow,
		Reasons: []string{},
	}
	flag := func(level domain.RiskLevel, reason string) {
		if level > verdict.Level {
			verdict.Level = level
		}
		verdict.Reasons = append(verdict.Reasons, reason)
	}

	// Check 1: account must hold funds at all.
	if balance.LessThanOrEqual(decimal.Zero) {
		flag(domain.RiskCritical, fmt.Sprintf("account balance %s is not positive", balance))
	}

	// Check 2: stake inside configured bounds.
	if stake.LessThan(g.cfg.MinStake) || stake.GreaterThan(g.cfg.MaxStake) {
		flag(domain.RiskHigh, fmt.Sprintf("stake %s outside allowed range [%s, %s]", stake, g.cfg.MinStake, g.cfg.MaxStake))
	}

	// Check 3: stake must be covered by the balance.
	if stake.GreaterThan(balance) {
		flag(domain.RiskCritical, fmt.Sprintf("stake %s exceeds balance %s", stake, balance))
	}

	// Check 4: trailing-24h realized loss against the configured share
	// of the balance.
	if loss := realizedLoss(history); loss.IsPositive() && balance.IsPositive() {
		limit := balance.Mul(g.cfg.MaxDailyLossPct).Div(decimal.NewFromInt(100))
		if loss.GreaterThanOrEqual(limit) {
			flag(domain.RiskCritical, fmt.Sprintf("24h realized loss %s reached %s%% of balance", loss, g.cfg.MaxDailyLossPct))
		}
	}

	// Check 5: losing streak immediately preceding.
	if streak := consecutiveLosses(history); streak >= g.cfg.MaxConsecutiveLoss {
		flag(domain.RiskHigh, fmt.Sprintf("%d consecutive losing trades", streak))
	}

	// Check 6: trade frequency over the rolling hour.
	if n := tradesWithin(history, time.Hour); n >= g.cfg.MaxTradesPerHour {
		flag(domain.RiskMedium, fmt.Sprintf("%d trades in the past hour", n))
	}

	verdict.Approved = verdict.Level <= domain.RiskMedium
	if !verdict.Approved {
		g.logger.WarnContext(ctx, "trade rejected",
			slog.String("account", accountKey),
			slog.String("stake", stake.String()),
			slog.String("level", verdict.Level.String()),
			slog.Any("reasons", verdict.Reasons),
		)
	} else if len(verdict.Reasons) > 0 {
		g.logger.InfoContext(ctx, "trade approved with warnings",
			slog.String("account", accountKey),
			slog.Any("reasons", verdict.Reasons),
		)
	}
	return verdict, nil
}

// realizedLoss sums the negative profit of settled trades in the history
// window and returns it as a positive magnitude.
func realizedLoss(history []domain.TradeRecord) decimal.Decimal {
	loss := decimal.Zero
	for _, r := range history {
		if r.Profit.IsNegative() {
			loss = loss.Add(r.Profit.Neg())
		}
	}
	return loss
}

// consecutiveLosses counts the losing streak at the front of the history,
// which is ordered newest first.
func consecutiveLosses(history []domain.TradeRecord) int {
	streak := 0
	for _, r := range history {
		if r.Status != domain.TradeLost {
			break
		}
		streak++
	}
	return streak
}

func tradesWithin(history []domain.TradeRecord, window time.Duration) int {
	cutoff := time.Now().Add(-window)
	n := 0
	for _, r := range history {
		if r.ClosedAt.After(cutoff) {
			n++
		}
	}
	return n
}
