// Package strategy contains the independent market analyzers and the
// consensus aggregation that turns their signals into one trading decision.
package strategy

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"derivflow/internal/domain"
	"derivflow/internal/market"
)

// Analyzer produces one directional signal from a market snapshot. Analyzers
// are pure with respect to the snapshot: the same window yields the same
// signal, and insufficient data yields Hold at confidence zero rather than
// an error.
type Analyzer interface {
	Name() string
	Analyze(snap market.Snapshot) domain.StrategySignal
}

// Set runs a fixed group of analyzers against the same snapshot. Signals are
// returned in registration order regardless of completion order.
type Set struct {
	analyzers []Analyzer
}

// NewSet creates a Set over the given analyzers.
func NewSet(analyzers ...Analyzer) *Set {
	return &Set{analyzers: analyzers}
}

// Names returns the analyzer names in registration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.analyzers))
	for i, a := range s.analyzers {
		names[i] = a.Name()
	}
	return names
}

// Analyze runs every analyzer concurrently over the snapshot and collects
// their signals.
func (s *Set) Analyze(ctx context.Context, snap market.Snapshot) []domain.StrategySignal {
	signals := make([]domain.StrategySignal, len(s.analyzers))
	g, _ := errgroup.WithContext(ctx)
	for i, a := range s.analyzers {
		g.Go(func() error {
			signals[i] = a.Analyze(snap)
			return nil
		})
	}
	_ = g.Wait()
	return signals
}

// hold builds the insufficient-data signal every analyzer falls back to.
func hold(name, rationale string) domain.StrategySignal {
	return domain.StrategySignal{
		Strategy:   name,
		Direction:  domain.DirectionHold,
		Confidence: 0,
		Rationale:  rationale,
		CreatedAt:  time.Now().UTC(),
	}
}

// closes extracts the close series from a candle window.
func closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
