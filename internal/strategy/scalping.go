package strategy

import (
	"fmt"
	"math"
	"time"

	"derivflow/internal/domain"
	"derivflow/internal/market"
)

const (
	defaultBollingerPeriod = 20
	defaultBollingerK      = 2.0
	scalpTrendTicks        = 5
)

// Scalping rides short bursts: a close outside the Bollinger band with
// the last few ticks trending the same way is treated as continuation,
// against the trend as a weak mean-reversion play.
type Scalping struct {
	period int
	k      float64
}

// NewScalping creates a Scalping analyzer. period <= 0 selects 20 and
// k <= 0 selects 2 standard deviations.
func NewScalping(period int, k float64) *Scalping {
	if period <= 0 {
		period = defaultBollingerPeriod
	}
	if k <= 0 {
		k = defaultBollingerK
	}
	return &Scalping{period: period, k: k}
}

// Name returns the analyzer identifier.
func (s *Scalping) Name() string { return "scalping" }

// Analyze combines Bollinger band position with the direction of the
// last few ticks.
func (s *Scalping) Analyze(snap market.Snapshot) domain.StrategySignal {
	cs := closes(snap.Candles)
	upper, mid, lower, ok := Bollinger(cs, s.period, s.k)
	if !ok {
		return hold(s.Name(), fmt.Sprintf("insufficient data: need %d candles, have %d", s.period, len(cs)))
	}
	if len(snap.Ticks) < scalpTrendTicks {
		return hold(s.Name(), fmt.Sprintf("insufficient data: need %d ticks, have %d", scalpTrendTicks, len(snap.Ticks)))
	}

	last := cs[len(cs)-1]
	ticks := snap.Ticks[len(snap.Ticks)-scalpTrendTicks:]
	trend := ticks[len(ticks)-1].Quote - ticks[0].Quote

	indicators := map[string]float64{
		"bb_upper": upper,
		"bb_mid":   mid,
		"bb_lower": lower,
		"close":    last,
		"trend":    trend,
	}

	sig := domain.StrategySignal{
		Strategy:   s.Name(),
		Indicators: indicators,
		CreatedAt:  time.Now().UTC(),
	}

	halfWidth := upper - mid

	switch {
	case last <= lower && trend > 0:
		ratio := 1.0
		if halfWidth > 0 {
			ratio = math.Min((lower-last)/halfWidth, 1)
		}
		sig.Direction = domain.DirectionRise
		sig.Confidence = 0.7 + 0.2*ratio
		sig.Rationale = fmt.Sprintf("close %.5f at lower band with ticks turning up", last)
	case last >= upper && trend < 0:
		ratio := 1.0
		if halfWidth > 0 {
			ratio = math.Min((last-upper)/halfWidth, 1)
		}
		sig.Direction = domain.DirectionFall
		sig.Confidence = 0.7 + 0.2*ratio
		sig.Rationale = fmt.Sprintf("close %.5f at upper band with ticks turning down", last)
	case last >= upper:
		sig.Direction = domain.DirectionFall
		sig.Confidence = 0.5
		sig.Rationale = fmt.Sprintf("close %.5f above upper band, no tick confirmation: weak reversion", last)
	case last <= lower:
		sig.Direction = domain.DirectionRise
		sig.Confidence = 0.5
		sig.Rationale = fmt.Sprintf("close %.5f below lower band, no tick confirmation: weak reversion", last)
	default:
		sig.Direction = domain.DirectionHold
		sig.Confidence = 0.3
		sig.Rationale = "inside bands"
	}

	return sig
}
