package strategy

import (
	"fmt"
	"math"
	"time"

	"derivflow/internal/domain"
	"derivflow/internal/market"
)

const defaultBreakoutLookback = 20

// Breakout watches the support/resistance band formed over a lookback
// window and signals when the latest close escapes it. Confidence scales
// with how far beyond the band the close landed relative to the band
// width.
type Breakout struct {
	lookback int
}

// NewBreakout creates a Breakout analyzer. lookback <= 0 selects the
// default of 20.
func NewBreakout(lookback int) *Breakout {
	if lookback <= 0 {
		lookback = defaultBreakoutLookback
	}
	return &Breakout{lookback: lookback}
}

// Name returns the analyzer identifier.
func (b *Breakout) Name() string { return "breakout" }

// Analyze compares the latest close against the high/low band of the
// preceding lookback candles.
func (b *Breakout) Analyze(snap market.Snapshot) domain.StrategySignal {
	candles := snap.Candles
	if len(candles) < b.lookback {
		return hold(b.Name(), fmt.Sprintf("insufficient data: need %d candles, have %d", b.lookback, len(candles)))
	}

	last := candles[len(candles)-1]
	// Band over the window preceding the current candle.
	window := candles[len(candles)-b.lookback : len(candles)-1]

	resistance := window[0].High
	support := window[0].Low
	for _, c := range window[1:] {
		if c.High > resistance {
			resistance = c.High
		}
		if c.Low < support {
			support = c.Low
		}
	}

	width := resistance - support
	indicators := map[string]float64{
		"support":    support,
		"resistance": resistance,
		"close":      last.Close,
	}

	sig := domain.StrategySignal{
		Strategy:   b.Name(),
		Indicators: indicators,
		CreatedAt:  time.Now().UTC(),
	}

	switch {
	case last.Close > resistance:
		strength := 1.0
		if width > 0 {
			strength = (last.Close - resistance) / width
		}
		sig.Direction = domain.DirectionRise
		sig.Confidence = 0.6 + 0.3*math.Min(strength, 1)
		sig.Rationale = fmt.Sprintf("close %.5f broke resistance %.5f", last.Close, resistance)
	case last.Close < support:
		strength := 1.0
		if width > 0 {
			strength = (support - last.Close) / width
		}
		sig.Direction = domain.DirectionFall
		sig.Confidence = 0.6 + 0.3*math.Min(strength, 1)
		sig.Rationale = fmt.Sprintf("close %.5f broke support %.5f", last.Close, support)
	default:
		sig.Direction = domain.DirectionHold
		sig.Confidence = 0.3
		sig.Rationale = "inside range"
		if width > 0 {
			// Near either boundary a break may be imminent.
			edge := math.Min(resistance-last.Close, last.Close-support)
			if edge <= 0.1*width {
				sig.Confidence = 0.5
				sig.Rationale = fmt.Sprintf("close %.5f near range boundary", last.Close)
			}
		}
	}

	return sig
}
