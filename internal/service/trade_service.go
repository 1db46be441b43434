package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"derivflow/internal/broadcast"
	"derivflow/internal/domain"
	"derivflow/internal/market"
	"derivflow/internal/strategy"
	"derivflow/internal/venue"
)

// TradeConfig holds the orchestration parameters for one trading account.
type TradeConfig struct {
	AccountKey       string
	Credentials      venue.Credentials
	Symbols          []string
	Stake            decimal.Decimal
	Currency         string
	Granularity      int // candle granularity in seconds
	CandleCount      int // history depth requested on subscribe
	Duration         int
	DurationUnit     string // venue duration unit, e.g. "m" or "t"
	AnalysisInterval time.Duration
	MinConfidence    float64
}

// TradeService drives the full trading cycle for one account: it feeds the
// market window from the venue stream, runs the strategy set on a timer,
// folds the signals into a consensus, gates the result through risk checks,
// and places and settles contracts. At most one order is in flight at a
// time; a new analysis pass is skipped while one is pending.
type TradeService struct {
	pool       *venue.Pool
	windows    *market.Cache
	strategies *strategy.Set
	consensus  *strategy.Consensus
	risk       *RiskGate
	trades     domain.TradePersistence
	balances   domain.BalanceWriter // optional
	ticks      domain.TickCache     // optional
	sink       *broadcast.Sink
	cfg        TradeConfig
	logger     *slog.Logger

	mu      sync.Mutex
	pending *pendingOrder
	open    map[int64]string // contract ID -> trade ID
}

// pendingOrder tracks an order between the proposal request and the buy
// confirmation.
type pendingOrder struct {
	symbol      string
	result      domain.ConsensusResult
	stake       decimal.Decimal
	requestedAt time.Time
}

// NewTradeService creates a TradeService. balances and ticks may be nil
// when no balance sink or tick cache is configured.
func NewTradeService(
	pool *venue.Pool,
	windows *market.Cache,
	strategies *strategy.Set,
	consensus *strategy.Consensus,
	risk *RiskGate,
	trades domain.TradePersistence,
	balances domain.BalanceWriter,
	ticks domain.TickCache,
	sink *broadcast.Sink,
	cfg TradeConfig,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		pool:       pool,
		windows:    windows,
		strategies: strategies,
		consensus:  consensus,
		risk:       risk,
		trades:     trades,
		balances:   balances,
		ticks:      ticks,
		sink:       sink,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "trade_service")),
		open:       make(map[int64]string),
	}
}

// Run connects the account link, subscribes the configured symbols, and
// loops analysis passes until ctx is cancelled. The link itself is owned by
// the pool and survives Run returning.
func (s *TradeService) Run(ctx context.Context) error {
	link, err := s.pool.GetOrCreate(ctx, s.cfg.AccountKey, s.cfg.Credentials)
	if err != nil {
		return fmt.Errorf("trade_service: acquire link: %w", err)
	}
	link.OnEvent(func(ev domain.Event) {
		s.handleEvent(ctx, link, ev)
	})

	for _, symbol := range s.cfg.Symbols {
		if err := link.SubscribeTicks(symbol); err != nil {
			return fmt.Errorf("trade_service: subscribe ticks %s: %w", symbol, err)
		}
		if err := link.SubscribeCandles(symbol, s.cfg.Granularity, s.cfg.CandleCount); err != nil {
			return fmt.Errorf("trade_service: subscribe candles %s: %w", symbol, err)
		}
	}
	s.logger.InfoContext(ctx, "trading started",
		slog.String("account", s.cfg.AccountKey),
		slog.Any("symbols", s.cfg.Symbols),
	)

	ticker := time.NewTicker(s.cfg.AnalysisInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, symbol := range s.cfg.Symbols {
				s.analyze(ctx, link, symbol)
			}
		}
	}
}

// analyze runs one strategy pass for a symbol and places an order when the
// consensus clears the confidence floor and the risk gate.
func (s *TradeService) analyze(ctx context.Context, link *venue.Link, symbol string) {
	snap := s.windows.Snapshot(symbol)
	signals := s.strategies.Analyze(ctx, snap)
	res := s.consensus.Aggregate(signals)
	s.sink.PublishEvent(ctx, "signal", map[string]any{
		"symbol":     symbol,
		"decision":   res.Decision,
		"confidence": res.Confidence,
		"rationale":  res.Rationale,
	})

	if res.Decision.Leaning() == domain.DirectionHold || res.Confidence < s.cfg.MinConfidence {
		return
	}

	if s.pendingInFlight(ctx) {
		s.logger.DebugContext(ctx, "order in flight, skipping pass", slog.String("symbol", symbol))
		return
	}

	verdict, err := s.risk.Assess(ctx, s.cfg.AccountKey, s.cfg.Stake)
	if err != nil {
		s.logger.ErrorContext(ctx, "risk assessment failed", slog.Any("error", err))
		return
	}
	if !verdict.Approved {
		return
	}

	contractType := res.Contract.Call
	if err := link.RequestProposal(symbol, contractType, s.cfg.Stake.String(), s.cfg.Currency, s.cfg.Duration, s.cfg.DurationUnit); err != nil {
		s.logger.ErrorContext(ctx, "proposal request failed",
			slog.String("symbol", symbol),
			slog.Any("error", err),
		)
		return
	}

	s.mu.Lock()
	s.pending = &pendingOrder{
		symbol:      symbol,
		result:      res,
		stake:       s.cfg.Stake,
		requestedAt: time.Now().UTC(),
	}
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "proposal requested",
		slog.String("symbol", symbol),
		slog.String("decision", string(res.Decision)),
		slog.Float64("confidence", res.Confidence),
		slog.String("contract", contractType),
	)
}

// pendingInFlight reports whether an order is still awaiting its venue
// reply. A pending order older than one analysis interval is abandoned: the
// proposal, or its error frame, was lost on the wire, and holding the slot
// would block trading indefinitely.
func (s *TradeService) pendingInFlight(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return false
	}
	if age := time.Since(s.pending.requestedAt); age > s.cfg.AnalysisInterval {
		s.logger.WarnContext(ctx, "pending order expired without venue reply",
			slog.String("symbol", s.pending.symbol),
			slog.Duration("age", age),
		)
		s.pending = nil
		return false
	}
	return true
}

// handleEvent is the link callback. The link invokes it strictly
// sequentially, so the pending-order handoff needs no extra ordering.
func (s *TradeService) handleEvent(ctx context.Context, link *venue.Link, ev domain.Event) {
	switch ev.Type {
	case domain.EventTick:
		s.windows.AppendTick(*ev.Tick)
		if s.ticks != nil {
			if err := s.ticks.SetTick(ctx, *ev.Tick); err != nil {
				s.logger.DebugContext(ctx, "tick cache write failed", slog.Any("error", err))
			}
		}
		s.sink.PublishEvent(ctx, "tick", ev.Tick)
	case domain.EventCandle:
		s.windows.UpsertCandle(*ev.Candle)
	case domain.EventBalance:
		if s.balances != nil {
			if err := s.balances.UpsertBalance(ctx, s.cfg.AccountKey, ev.Balance.Balance, ev.Balance.Currency); err != nil {
				s.logger.ErrorContext(ctx, "balance upsert failed", slog.Any("error", err))
			}
		}
	case domain.EventCandleSnapshot:
		if len(ev.Candles) > 0 {
			s.windows.SetCandles(ev.Candles[0].Symbol, ev.Candles)
		}
	case domain.EventProposal:
		s.onProposal(ctx, link, ev.Proposal)
	case domain.EventBuy:
		s.onBuy(ctx, ev.Buy)
	case domain.EventContract:
		s.onContract(ctx, ev.Contract)
	case domain.EventError:
		s.onVenueError(ctx, ev.Err)
	}
}

func (s *TradeService) onProposal(ctx context.Context, link *venue.Link, p *domain.Proposal) {
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return
	}
	if err := link.Buy(p.ID, p.AskPrice.String()); err != nil {
		s.logger.ErrorContext(ctx, "buy failed", slog.Any("error", err))
		s.clearPending()
	}
}

func (s *TradeService) onBuy(ctx context.Context, buy *domain.BuyConfirmation) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if pending == nil {
		s.logger.WarnContext(ctx, "buy confirmation without pending order",
			slog.Int64("contract_id", buy.ContractID),
		)
		return
	}

	trade := domain.Trade{
		ID:           uuid.NewString(),
		AccountKey:   s.cfg.AccountKey,
		Symbol:       pending.symbol,
		ContractType: pending.result.Contract.Call,
		Stake:        pending.stake,
		Payout:       buy.Payout,
		Status:       domain.TradeOpen,
		Decision:     string(pending.result.Decision),
		Confidence:   pending.result.Confidence,
		ContractID:   buy.ContractID,
		OpenedAt:     buy.StartTime,
	}
	id, err := s.trades.RecordTrade(ctx, trade)
	if err != nil {
		s.logger.ErrorContext(ctx, "record trade failed", slog.Any("error", err))
		return
	}
	s.mu.Lock()
	s.open[buy.ContractID] = id
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "trade opened",
		slog.String("trade_id", id),
		slog.Int64("contract_id", buy.ContractID),
		slog.String("symbol", pending.symbol),
		slog.String("stake", pending.stake.String()),
	)
	s.sink.PublishEvent(ctx, "trade", map[string]any{
		"trade_id":    id,
		"contract_id": buy.ContractID,
		"symbol":      pending.symbol,
		"status":      domain.TradeOpen,
		"stake":       pending.stake,
	})
}

func (s *TradeService) onContract(ctx context.Context, c *domain.ContractUpdate) {
	if !c.IsSold {
		return
	}
	s.mu.Lock()
	id, ok := s.open[c.ContractID]
	if ok {
		delete(s.open, c.ContractID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	status := domain.TradeLost
	if c.Profit.IsPositive() {
		status = domain.TradeWon
	}
	if err := s.trades.UpdateTradeStatus(ctx, id, status, c.Payout, c.Profit); err != nil {
		s.logger.ErrorContext(ctx, "settle trade failed",
			slog.String("trade_id", id),
			slog.Any("error", err),
		)
		return
	}
	s.logger.InfoContext(ctx, "trade settled",
		slog.String("trade_id", id),
		slog.String("status", string(status)),
		slog.String("profit", c.Profit.String()),
	)
	s.sink.PublishEvent(ctx, "trade", map[string]any{
		"trade_id": id,
		"status":   status,
		"payout":   c.Payout,
		"profit":   c.Profit,
	})
}

// onVenueError aborts any in-flight order; the venue rejects proposals and
// buys through this frame.
func (s *TradeService) onVenueError(ctx context.Context, ve *domain.VenueError) {
	s.logger.WarnContext(ctx, "venue error",
		slog.String("code", ve.Code),
		slog.String("message", ve.Message),
	)
	s.clearPending()
}

func (s *TradeService) clearPending() {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}
