package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"derivflow/internal/domain"
)

// AccountStore implements domain.AccountRepository and domain.BalanceWriter
// using PostgreSQL. Balances arrive from the venue's balance stream and are
// upserted as they change.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates a new AccountStore backed by the given connection
// pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// GetBalance returns the last recorded balance for the account.
func (s *AccountStore) GetBalance(ctx context.Context, accountKey string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.pool.QueryRow(ctx,
		"SELECT balance FROM accounts WHERE account_key = $1",
		accountKey,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, fmt.Errorf("postgres: account %s: %w", accountKey, domain.ErrNotFound)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("postgres: get balance: %w", err)
	}
	return balance, nil
}

// GetTradeHistory returns the account's settled trades whose closed_at falls
// within the trailing window, newest first.
func (s *AccountStore) GetTradeHistory(ctx context.Context, accountKey string, window time.Duration) ([]domain.TradeRecord, error) {
	const query = `
		SELECT stake, profit, status, closed_at FROM trades
		WHERE account_key = $1 AND closed_at IS NOT NULL AND closed_at >= $2
		ORDER BY closed_at DESC`

	rows, err := s.pool.Query(ctx, query, accountKey, time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("postgres: get trade history: %w", err)
	}
	defer rows.Close()

	var records []domain.TradeRecord
	for rows.Next() {
		var r domain.TradeRecord
		var status string
		if err := rows.Scan(&r.Stake, &r.Profit, &status, &r.ClosedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade record: %w", err)
		}
		r.Status = domain.TradeStatus(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: trade history rows: %w", err)
	}
	return records, nil
}

// UpsertBalance records the account's current balance.
func (s *AccountStore) UpsertBalance(ctx context.Context, accountKey string, balance decimal.Decimal, currency string) error {
	const query = `
		INSERT INTO accounts (account_key, balance, currency, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account_key)
		DO UPDATE SET balance = $2, currency = $3, updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, accountKey, balance, currency); err != nil {
		return fmt.Errorf("postgres: upsert balance: %w", err)
	}
	return nil
}
