package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus tracks a contract through its lifecycle.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeWon    TradeStatus = "won"
	TradeLost   TradeStatus = "lost"
	TradeFailed TradeStatus = "failed"
)

// Trade is a placed contract and its settlement outcome.
type Trade struct {
	ID           string // UUID
	AccountKey   string
	Symbol       string
	ContractType string // "RISE", "FALL", "CALL", "PUT"
	Stake        decimal.Decimal
	Payout       decimal.Decimal
	Profit       decimal.Decimal
	Status       TradeStatus
	Decision     string
	Confidence   float64
	ContractID   int64
	OpenedAt     time.Time
	ClosedAt     *time.Time
}

// TradeRecord is the narrow view of a settled trade that the risk gate reads
// from trading history.
type TradeRecord struct {
	Stake    decimal.Decimal
	Profit   decimal.Decimal
	Status   TradeStatus
	ClosedAt time.Time
}
