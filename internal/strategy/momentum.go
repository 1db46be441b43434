package strategy

import (
	"fmt"
	"time"

	"derivflow/internal/domain"
	"derivflow/internal/market"
)

const (
	defaultRSIPeriod = 14

	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// Momentum trades RSI extremes confirmed by the MACD histogram: oversold
// with positive momentum is a rise, overbought with negative momentum a
// fall. Between the extremes it leans weakly with the histogram sign.
type Momentum struct {
	rsiPeriod int
}

// NewMomentum creates a Momentum analyzer. rsiPeriod <= 0 selects the
// default of 14.
func NewMomentum(rsiPeriod int) *Momentum {
	if rsiPeriod <= 0 {
		rsiPeriod = defaultRSIPeriod
	}
	return &Momentum{rsiPeriod: rsiPeriod}
}

// Name returns the analyzer identifier.
func (m *Momentum) Name() string { return "momentum" }

// Analyze derives the momentum signal from the candle closes.
func (m *Momentum) Analyze(snap market.Snapshot) domain.StrategySignal {
	cs := closes(snap.Candles)
	rsi, ok := RSI(cs, m.rsiPeriod)
	if !ok {
		return hold(m.Name(), fmt.Sprintf("insufficient data: need %d candles, have %d", m.rsiPeriod+1, len(cs)))
	}

	hist, histOK := MACDHistogram(cs)
	indicators := map[string]float64{"rsi": rsi}
	if histOK {
		indicators["macd_hist"] = hist
	}

	sig := domain.StrategySignal{
		Strategy:   m.Name(),
		Indicators: indicators,
		CreatedAt:  time.Now().UTC(),
	}

	switch {
	case rsi < rsiOversold:
		sig.Direction = domain.DirectionRise
		sig.Confidence = 0.6
		sig.Rationale = fmt.Sprintf("RSI %.1f oversold", rsi)
		if histOK && hist > 0 {
			sig.Confidence = 0.85
			sig.Rationale += ", MACD histogram confirms"
		}
	case rsi > rsiOverbought:
		sig.Direction = domain.DirectionFall
		sig.Confidence = 0.6
		sig.Rationale = fmt.Sprintf("RSI %.1f overbought", rsi)
		if histOK && hist < 0 {
			sig.Confidence = 0.85
			sig.Rationale += ", MACD histogram confirms"
		}
	case histOK && hist > 0:
		sig.Direction = domain.DirectionRise
		// 0.5 when RSI leans the same way, 0.4 otherwise.
		sig.Confidence = 0.4
		if rsi > 50 {
			sig.Confidence = 0.5
		}
		sig.Rationale = fmt.Sprintf("weak rise: MACD histogram %.4f > 0, RSI %.1f", hist, rsi)
	case histOK && hist < 0:
		sig.Direction = domain.DirectionFall
		sig.Confidence = 0.4
		if rsi < 50 {
			sig.Confidence = 0.5
		}
		sig.Rationale = fmt.Sprintf("weak fall: MACD histogram %.4f < 0, RSI %.1f", hist, rsi)
	default:
		sig.Direction = domain.DirectionHold
		sig.Confidence = 0.4
		sig.Rationale = fmt.Sprintf("RSI %.1f neutral, no MACD confirmation", rsi)
	}

	return sig
}
