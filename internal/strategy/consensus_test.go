package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"derivflow/internal/domain"
)

func sig(strategy string, dir domain.Direction, conf float64) domain.StrategySignal {
	return domain.StrategySignal{Strategy: strategy, Direction: dir, Confidence: conf}
}

func TestAggregateEmpty(t *testing.T) {
	res := NewConsensus().Aggregate(nil)
	assert.Equal(t, domain.DecisionNeutral, res.Decision)
	assert.Zero(t, res.Confidence)
	require.NotNil(t, res.Signals)
	assert.Empty(t, res.Signals)
	assert.Empty(t, res.Contract.Rise)
	assert.Empty(t, res.Contract.Call)
}

func TestAggregateAllHold(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionHold, 0.3),
		sig("breakout", domain.DirectionHold, 0.5),
	})
	assert.Equal(t, domain.DecisionNeutral, res.Decision)
	assert.Zero(t, res.Confidence)
}

// Two raw rise confidences above 0.7 outrank the averaged net/total rule,
// even when the averages alone would only say Rise.
func TestAggregateStrongRisePrecedence(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionRise, 0.8),
		sig("breakout", domain.DirectionRise, 0.8),
		sig("scalping", domain.DirectionFall, 0.3),
	})
	assert.Equal(t, domain.DecisionStrongRise, res.Decision)
	// net=0.433, total=0.633: net/total*0.95 under the 0.95 cap.
	assert.InDelta(t, (0.4333333333/0.6333333333)*0.95, res.Confidence, 1e-6)
	assert.Equal(t, "RISE", res.Contract.Rise)
	assert.Equal(t, "CALL", res.Contract.Call)
}

func TestAggregateStrongFall(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionFall, 0.9),
		sig("breakout", domain.DirectionFall, 0.75),
		sig("scalping", domain.DirectionHold, 0.3),
	})
	assert.Equal(t, domain.DecisionStrongFall, res.Decision)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9, "one-sided fall hits the cap")
	assert.Equal(t, "FALL", res.Contract.Rise)
	assert.Equal(t, "PUT", res.Contract.Call)
}

func TestAggregateRise(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionRise, 0.6),
		sig("breakout", domain.DirectionRise, 0.65),
		sig("scalping", domain.DirectionHold, 0.3),
	})
	assert.Equal(t, domain.DecisionRise, res.Decision)
	assert.InDelta(t, 0.9, res.Confidence, 1e-9, "one-sided rise capped at 0.9")
}

func TestAggregateWeakRise(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionRise, 0.6),
		sig("breakout", domain.DirectionFall, 0.4),
		sig("scalping", domain.DirectionHold, 0.3),
	})
	// net=0.0667, total=0.333: below the total/2 bar but positive.
	assert.Equal(t, domain.DecisionWeakRise, res.Decision)
	assert.InDelta(t, (0.2/1.0)*0.5, res.Confidence, 1e-6)
}

func TestAggregateWeakFall(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionFall, 0.6),
		sig("breakout", domain.DirectionRise, 0.4),
	})
	assert.Equal(t, domain.DecisionWeakFall, res.Decision)
	assert.Equal(t, domain.DirectionFall, res.Decision.Leaning())
}

func TestAggregateBalancedIsNeutral(t *testing.T) {
	res := NewConsensus().Aggregate([]domain.StrategySignal{
		sig("momentum", domain.DirectionRise, 0.5),
		sig("breakout", domain.DirectionFall, 0.5),
	})
	assert.Equal(t, domain.DecisionNeutral, res.Decision)
	assert.Zero(t, res.Confidence)
}

func TestContractPairFor(t *testing.T) {
	assert.Equal(t, domain.ContractPair{Rise: "RISE", Call: "CALL"}, domain.ContractPairFor(domain.DirectionRise))
	assert.Equal(t, domain.ContractPair{Rise: "FALL", Call: "PUT"}, domain.ContractPairFor(domain.DirectionFall))
	assert.Equal(t, domain.ContractPair{}, domain.ContractPairFor(domain.DirectionHold))
}
