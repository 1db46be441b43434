package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"derivflow/internal/domain"
)

// TradeStore implements domain.TradePersistence using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, account_key, symbol, contract_type, stake, payout,
	profit, status, decision, confidence, contract_id, opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var status string
		if err := rows.Scan(
			&t.ID, &t.AccountKey, &t.Symbol, &t.ContractType,
			&t.Stake, &t.Payout, &t.Profit, &status,
			&t.Decision, &t.Confidence, &t.ContractID,
			&t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RecordTrade persists a newly opened trade and returns its ID.
func (s *TradeStore) RecordTrade(ctx context.Context, trade domain.Trade) (string, error) {
	const query = `
		INSERT INTO trades (
			id, account_key, symbol, contract_type, stake, payout,
			profit, status, decision, confidence, contract_id, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		trade.ID, trade.AccountKey, trade.Symbol, trade.ContractType,
		trade.Stake, trade.Payout, trade.Profit, string(trade.Status),
		trade.Decision, trade.Confidence, trade.ContractID, trade.OpenedAt,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: record trade: %w", err)
	}
	return trade.ID, nil
}

// UpdateTradeStatus settles a trade with its final payout and profit.
func (s *TradeStore) UpdateTradeStatus(ctx context.Context, id string, status domain.TradeStatus, payout, profit decimal.Decimal) error {
	const query = `
		UPDATE trades
		SET status = $2, payout = $3, profit = $4, closed_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), payout, profit)
	if err != nil {
		return fmt.Errorf("postgres: update trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update trade %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListRecent returns the account's latest trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, accountKey string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE account_key = $1
		ORDER BY opened_at DESC
		LIMIT $2`, tradeSelectCols)

	rows, err := s.pool.Query(ctx, query, accountKey, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListOpen returns the account's unsettled trades, oldest first.
func (s *TradeStore) ListOpen(ctx context.Context, accountKey string) ([]domain.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE account_key = $1 AND closed_at IS NULL
		ORDER BY opened_at ASC`, tradeSelectCols)

	rows, err := s.pool.Query(ctx, query, accountKey)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListSettledSince returns trades settled on or after the cutoff, oldest
// first. The archiver uses it to build daily exports.
func (s *TradeStore) ListSettledSince(ctx context.Context, cutoff time.Time) ([]domain.Trade, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM trades
		WHERE closed_at IS NOT NULL AND closed_at >= $1
		ORDER BY closed_at ASC`, tradeSelectCols)

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}
