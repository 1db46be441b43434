// Package venue implements the WebSocket connection layer to the quote/order
// venue: the per-connection Link state machine, the per-key connection Pool,
// and the Normalizer that converts raw venue frames into canonical events.
package venue

import "encoding/json"

// Outbound frames. The venue speaks JSON text frames keyed by request type.

// authorizeFrame is the first frame sent on a credentialed connection.
type authorizeFrame struct {
	Authorize string `json:"authorize"`
}

// subscribeFrame subscribes a channel to a symbol, e.g. {"ticks": "R_100",
// "subscribe": 1}.
type subscribeFrame struct {
	Channel string
	Symbol  string
}

// MarshalJSON renders the dynamic channel key.
func (f subscribeFrame) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		f.Channel:   f.Symbol,
		"subscribe": 1,
	})
}

// candlesFrame requests a candle snapshot plus a live OHLC subscription.
type candlesFrame struct {
	TicksHistory string `json:"ticks_history"`
	Style        string `json:"style"`
	Granularity  int    `json:"granularity"`
	Count        int    `json:"count"`
	End          string `json:"end"`
	Subscribe    int    `json:"subscribe"`
}

// buyFrame places a contract against a previously quoted proposal.
type buyFrame struct {
	Buy   string `json:"buy"`
	Price string `json:"price"`
}

// proposalFrame requests a price quote for a prospective contract.
type proposalFrame struct {
	Proposal     int    `json:"proposal"`
	Amount       string `json:"amount"`
	Basis        string `json:"basis"`
	ContractType string `json:"contract_type"`
	Currency     string `json:"currency"`
	Duration     int    `json:"duration"`
	DurationUnit string `json:"duration_unit"`
	Symbol       string `json:"symbol"`
}

// Inbound payload containers, matching the venue's field layouts.

type rawTick struct {
	Symbol string  `json:"symbol"`
	Quote  float64 `json:"quote"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Epoch  int64   `json:"epoch"`
}

type rawOHLC struct {
	Symbol      string      `json:"symbol"`
	Open        json.Number `json:"open"`
	High        json.Number `json:"high"`
	Low         json.Number `json:"low"`
	Close       json.Number `json:"close"`
	OpenTime    int64       `json:"open_time"`
	Epoch       int64       `json:"epoch"`
	Granularity int         `json:"granularity"`
}

type rawCandle struct {
	Open  json.Number `json:"open"`
	High  json.Number `json:"high"`
	Low   json.Number `json:"low"`
	Close json.Number `json:"close"`
	Epoch int64       `json:"epoch"`
}

type rawBalance struct {
	Balance  json.Number `json:"balance"`
	Currency string      `json:"currency"`
	LoginID  string      `json:"loginid"`
}

type rawProposal struct {
	ID       string      `json:"id"`
	AskPrice json.Number `json:"ask_price"`
	Payout   json.Number `json:"payout"`
	Spot     float64     `json:"spot"`
	LongCode string      `json:"longcode"`
}

type rawBuy struct {
	ContractID    int64       `json:"contract_id"`
	TransactionID int64       `json:"transaction_id"`
	BuyPrice      json.Number `json:"buy_price"`
	Payout        json.Number `json:"payout"`
	StartTime     int64       `json:"start_time"`
	LongCode      string      `json:"longcode"`
}

type rawContract struct {
	ContractID int64       `json:"contract_id"`
	LoginID    string      `json:"loginid"`
	Status     string      `json:"status"`
	Profit     json.Number `json:"profit"`
	Payout     json.Number `json:"payout"`
	EntrySpot  float64     `json:"entry_spot"`
	ExitSpot   float64     `json:"exit_tick"`
	IsSold     int         `json:"is_sold"`
	SellTime   int64       `json:"sell_time"`
}

type rawAuthorize struct {
	LoginID  string      `json:"loginid"`
	Currency string      `json:"currency"`
	Balance  json.Number `json:"balance"`
	Scopes   []string    `json:"scopes"`
}

type rawError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
