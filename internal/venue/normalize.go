package venue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"derivflow/internal/broadcast"
	"derivflow/internal/domain"
)

// discriminator pairs a top-level frame key with the decoder for its payload.
// The list is evaluated in order and the first present key wins, so a frame
// that incidentally carries several known keys classifies the same way every
// time.
type discriminator struct {
	key    string
	decode func(payload json.RawMessage, env envelope) (domain.Event, error)
}

// envelope captures frame-level fields shared across variants. The venue
// echoes the request alongside the payload; candle snapshots carry their
// symbol only there.
type envelope struct {
	MsgType string `json:"msg_type"`
	Time    int64  `json:"time"`
	EchoReq struct {
		TicksHistory string `json:"ticks_history"`
	} `json:"echo_req"`
}

// Normalizer classifies inbound venue frames into canonical events. Balance
// and contract updates are additionally fanned out through the broadcast
// sink; that fan-out is fire and forget and never affects the return value.
type Normalizer struct {
	sink   *broadcast.Sink
	logger *slog.Logger
	order  []discriminator
}

// NewNormalizer creates a Normalizer. The sink may be nil, in which case
// balance and contract events are not broadcast.
func NewNormalizer(sink *broadcast.Sink, logger *slog.Logger) *Normalizer {
	n := &Normalizer{
		sink:   sink,
		logger: logger.With(slog.String("component", "normalizer")),
	}
	n.order = []discriminator{
		{"tick", n.decodeTick},
		{"ohlc", n.decodeOHLC},
		{"candles", n.decodeCandles},
		{"balance", n.decodeBalance},
		{"proposal", n.decodeProposal},
		{"buy", n.decodeBuy},
		{"proposal_open_contract", n.decodeContract},
		{"authorize", n.decodeAuthorize},
		{"error", n.decodeError},
	}
	return n
}

// Normalize converts a raw frame into a canonical event. The second return
// value is false when the frame is unrecognized or malformed; such frames
// are dropped with a debug trace, never an error.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte) (domain.Event, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		n.logger.DebugContext(ctx, "dropping unparseable frame", slog.String("error", err.Error()))
		return domain.Event{}, false
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)

	for _, d := range n.order {
		payload, ok := fields[d.key]
		if !ok || string(payload) == "null" {
			continue
		}
		ev, err := d.decode(payload, env)
		if err != nil {
			n.logger.DebugContext(ctx, "dropping malformed frame",
				slog.String("key", d.key),
				slog.String("error", err.Error()),
			)
			return domain.Event{}, false
		}
		ev.ReceivedAt = time.Now().UTC()
		if env.Time > 0 {
			ev.ServerTime = time.Unix(env.Time, 0).UTC()
		}
		n.fanOut(ctx, ev)
		return ev, true
	}

	n.logger.DebugContext(ctx, "dropping unrecognized frame", slog.Int("bytes", len(raw)))
	return domain.Event{}, false
}

// fanOut publishes balance and contract events to the presentation sink.
func (n *Normalizer) fanOut(ctx context.Context, ev domain.Event) {
	if n.sink == nil {
		return
	}
	switch ev.Type {
	case domain.EventBalance:
		n.sink.PublishEvent(ctx, "balance", ev.Balance)
	case domain.EventContract:
		n.sink.PublishEvent(ctx, "contract", ev.Contract)
	}
}

func (n *Normalizer) decodeTick(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var t rawTick
	if err := json.Unmarshal(payload, &t); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Type: domain.EventTick,
		Tick: &domain.Tick{
			Symbol: t.Symbol,
			Quote:  t.Quote,
			Bid:    t.Bid,
			Ask:    t.Ask,
			Epoch:  time.Unix(t.Epoch, 0).UTC(),
		},
	}, nil
}

func (n *Normalizer) decodeOHLC(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var o rawOHLC
	if err := json.Unmarshal(payload, &o); err != nil {
		return domain.Event{}, err
	}
	epoch := o.OpenTime
	if epoch == 0 {
		epoch = o.Epoch
	}
	return domain.Event{
		Type: domain.EventCandle,
		Candle: &domain.Candle{
			Symbol:      o.Symbol,
			Open:        num(o.Open),
			High:        num(o.High),
			Low:         num(o.Low),
			Close:       num(o.Close),
			Epoch:       time.Unix(epoch, 0).UTC(),
			Granularity: o.Granularity,
		},
	}, nil
}

func (n *Normalizer) decodeCandles(payload json.RawMessage, env envelope) (domain.Event, error) {
	var cs []rawCandle
	if err := json.Unmarshal(payload, &cs); err != nil {
		return domain.Event{}, err
	}
	out := make([]domain.Candle, 0, len(cs))
	for _, c := range cs {
		out = append(out, domain.Candle{
			Symbol: env.EchoReq.TicksHistory,
			Open:   num(c.Open),
			High:   num(c.High),
			Low:    num(c.Low),
			Close:  num(c.Close),
			Epoch:  time.Unix(c.Epoch, 0).UTC(),
		})
	}
	return domain.Event{Type: domain.EventCandleSnapshot, Candles: out}, nil
}

func (n *Normalizer) decodeBalance(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var b rawBalance
	if err := json.Unmarshal(payload, &b); err != nil {
		return domain.Event{}, err
	}
	bal, err := decimal.NewFromString(b.Balance.String())
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Type: domain.EventBalance,
		Balance: &domain.BalanceUpdate{
			AccountKey: b.LoginID,
			Balance:    bal,
			Currency:   b.Currency,
		},
	}, nil
}

func (n *Normalizer) decodeProposal(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var p rawProposal
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Type: domain.EventProposal,
		Proposal: &domain.Proposal{
			ID:       p.ID,
			AskPrice: dec(p.AskPrice),
			Payout:   dec(p.Payout),
			Spot:     p.Spot,
			LongCode: p.LongCode,
		},
	}, nil
}

func (n *Normalizer) decodeBuy(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var b rawBuy
	if err := json.Unmarshal(payload, &b); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Type: domain.EventBuy,
		Buy: &domain.BuyConfirmation{
			ContractID:    b.ContractID,
			TransactionID: b.TransactionID,
			BuyPrice:      dec(b.BuyPrice),
			Payout:        dec(b.Payout),
			StartTime:     time.Unix(b.StartTime, 0).UTC(),
			LongCode:      b.LongCode,
		},
	}, nil
}

func (n *Normalizer) decodeContract(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var c rawContract
	if err := json.Unmarshal(payload, &c); err != nil {
		return domain.Event{}, err
	}
	upd := &domain.ContractUpdate{
		ContractID: c.ContractID,
		AccountKey: c.LoginID,
		Status:     c.Status,
		Profit:     dec(c.Profit),
		Payout:     dec(c.Payout),
		EntrySpot:  c.EntrySpot,
		ExitSpot:   c.ExitSpot,
		IsSold:     c.IsSold == 1,
	}
	if c.SellTime > 0 {
		upd.SoldAt = time.Unix(c.SellTime, 0).UTC()
	}
	return domain.Event{Type: domain.EventContract, Contract: upd}, nil
}

func (n *Normalizer) decodeAuthorize(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var a rawAuthorize
	if err := json.Unmarshal(payload, &a); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Type: domain.EventAuthorize,
		Authorize: &domain.AuthorizeResult{
			AccountKey: a.LoginID,
			Currency:   a.Currency,
			Balance:    dec(a.Balance),
			Scopes:     a.Scopes,
		},
	}, nil
}

func (n *Normalizer) decodeError(payload json.RawMessage, _ envelope) (domain.Event, error) {
	var e rawError
	if err := json.Unmarshal(payload, &e); err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Type: domain.EventError,
		Err:  &domain.VenueError{Code: e.Code, Message: e.Message},
	}, nil
}

// num parses a JSON number leniently, returning 0 for absent values.
func num(n json.Number) float64 {
	f, _ := n.Float64()
	return f
}

// dec parses a JSON number as a decimal, returning zero for absent values.
func dec(n json.Number) decimal.Decimal {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
