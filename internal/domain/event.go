package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType identifies which variant of Event is populated.
type EventType string

const (
	EventTick           EventType = "tick"
	EventCandle         EventType = "candle"
	EventCandleSnapshot EventType = "candle_snapshot"
	EventBalance        EventType = "balance"
	EventProposal       EventType = "proposal"
	EventBuy            EventType = "buy"
	EventContract       EventType = "contract"
	EventAuthorize      EventType = "authorize"
	EventError          EventType = "error"
)

// Tick is a single price observation for a symbol.
type Tick struct {
	Symbol string
	Quote  float64
	Bid    float64
	Ask    float64
	Epoch  time.Time
}

// Candle is one OHLC bar. The venue streams updates for the bar in progress,
// so a Candle with an Epoch already seen replaces the previous observation.
type Candle struct {
	Symbol      string
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Epoch       time.Time
	Granularity int // seconds
}

// BalanceUpdate reports the current account balance.
type BalanceUpdate struct {
	AccountKey string
	Balance    decimal.Decimal
	Currency   string
}

// Proposal is the venue's price quote for a prospective contract.
type Proposal struct {
	ID       string
	AskPrice decimal.Decimal
	Payout   decimal.Decimal
	Spot     float64
	LongCode string
}

// BuyConfirmation acknowledges a placed contract.
type BuyConfirmation struct {
	ContractID    int64
	TransactionID int64
	BuyPrice      decimal.Decimal
	Payout        decimal.Decimal
	StartTime     time.Time
	LongCode      string
}

// ContractUpdate is a streamed status change for an open contract.
type ContractUpdate struct {
	ContractID int64
	AccountKey string
	Status     string
	Profit     decimal.Decimal
	Payout     decimal.Decimal
	EntrySpot  float64
	ExitSpot   float64
	IsSold     bool
	SoldAt     time.Time
}

// AuthorizeResult is the outcome of the authorization handshake.
type AuthorizeResult struct {
	AccountKey string
	Currency   string
	Balance    decimal.Decimal
	Scopes     []string
}

// VenueError is an application-level error frame from the venue.
type VenueError struct {
	Code    string
	Message string
}

// Event is the canonical, venue-agnostic form of an inbound frame. Exactly
// one variant pointer is non-nil, indicated by Type. ServerTime carries the
// venue timestamp where the frame provided one; ReceivedAt is local.
type Event struct {
	Type       EventType
	Tick       *Tick
	Candle     *Candle
	Candles    []Candle
	Balance    *BalanceUpdate
	Proposal   *Proposal
	Buy        *BuyConfirmation
	Contract   *ContractUpdate
	Authorize  *AuthorizeResult
	Err        *VenueError
	ServerTime time.Time
	ReceivedAt time.Time
}
