package strategy

import (
	"fmt"
	"math"
	"strings"

	"derivflow/internal/domain"
)

const strongConfidenceFloor = 0.7

// Consensus folds a set of strategy signals into one decision. Rise and
// fall confidences are each averaged over the total strategy count, so a
// holding strategy dilutes both sides.
type Consensus struct{}

// NewConsensus creates a Consensus aggregator.
func NewConsensus() *Consensus { return &Consensus{} }

// Aggregate evaluates the decision table over the given signals. An empty
// list yields Neutral with confidence 0.
func (c *Consensus) Aggregate(signals []domain.StrategySignal) domain.ConsensusResult {
	res := domain.ConsensusResult{
		Decision: domain.DecisionNeutral,
		Signals:  signals,
	}
	if len(signals) == 0 {
		res.Signals = []domain.StrategySignal{}
		res.Rationale = "no signals"
		return res
	}

	var riseSum, fallSum float64
	var strongRise, strongFall int
	for _, s := range signals {
		switch s.Direction {
		case domain.DirectionRise:
			riseSum += s.Confidence
			if s.Confidence > strongConfidenceFloor {
				strongRise++
			}
		case domain.DirectionFall:
			fallSum += s.Confidence
			if s.Confidence > strongConfidenceFloor {
				strongFall++
			}
		}
	}

	n := float64(len(signals))
	avgRise := riseSum / n
	avgFall := fallSum / n
	net := avgRise - avgFall
	total := avgRise + avgFall

	// The strong rules compare raw per-signal confidences against 0.7
	// while net/total work on averages. That mix is intentional; the
	// table order below is load-bearing.
	switch {
	case total == 0:
		res.Decision = domain.DecisionNeutral
		res.Confidence = 0
	case strongRise >= 2 && net > 0:
		res.Decision = domain.DecisionStrongRise
		res.Confidence = math.Min(net/total*0.95, 0.95)
	case strongFall >= 2 && net < 0:
		res.Decision = domain.DecisionStrongFall
		res.Confidence = math.Min(-net/total*0.95, 0.95)
	case net > total*0.5:
		res.Decision = domain.DecisionRise
		res.Confidence = math.Min(net/total, 0.9)
	case net < -total*0.5:
		res.Decision = domain.DecisionFall
		res.Confidence = math.Min(-net/total, 0.9)
	case net > 0:
		res.Decision = domain.DecisionWeakRise
		res.Confidence = net / total * 0.5
	case net < 0:
		res.Decision = domain.DecisionWeakFall
		res.Confidence = -net / total * 0.5
	default:
		res.Decision = domain.DecisionNeutral
		res.Confidence = 0
	}

	res.Contract = domain.ContractPairFor(res.Decision.Leaning())
	res.Rationale = rationale(res.Decision, avgRise, avgFall, signals)
	return res
}

func rationale(d domain.Decision, avgRise, avgFall float64, signals []domain.StrategySignal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("%s=%s@%.2f", s.Strategy, s.Direction, s.Confidence))
	}
	return fmt.Sprintf("%s (avgRise %.3f, avgFall %.3f): %s", d, avgRise, avgFall, strings.Join(parts, ", "))
}
