package domain

import "time"

// Direction is a single strategy's directional view.
type Direction string

const (
	DirectionRise Direction = "rise"
	DirectionFall Direction = "fall"
	DirectionHold Direction = "hold"
)

// Decision is the aggregated consensus outcome, ordered from strong rise to
// strong fall.
type Decision string

const (
	DecisionStrongRise Decision = "strong_rise"
	DecisionRise       Decision = "rise"
	DecisionWeakRise   Decision = "weak_rise"
	DecisionNeutral    Decision = "neutral"
	DecisionWeakFall   Decision = "weak_fall"
	DecisionFall       Decision = "fall"
	DecisionStrongFall Decision = "strong_fall"
)

// Leaning reduces a Decision to its directional component: all rise-side
// decisions map to DirectionRise, fall-side to DirectionFall, and Neutral to
// DirectionHold.
func (d Decision) Leaning() Direction {
	switch d {
	case DecisionStrongRise, DecisionRise, DecisionWeakRise:
		return DirectionRise
	case DecisionStrongFall, DecisionFall, DecisionWeakFall:
		return DirectionFall
	default:
		return DirectionHold
	}
}

// StrategySignal is one analyzer's output for a market snapshot. It is
// immutable once produced.
type StrategySignal struct {
	Strategy   string
	Direction  Direction
	Confidence float64 // [0,1]
	Rationale  string
	Indicators map[string]float64
	CreatedAt  time.Time
}

// ContractPair names the venue contract identifiers for a direction in both
// contract families. Rise trades as RISE/CALL, Fall as FALL/PUT; anything
// else resolves to the zero pair.
type ContractPair struct {
	Rise string // family A: "RISE" / "FALL"
	Call string // family B: "CALL" / "PUT"
}

// ContractPairFor is a pure lookup from direction to contract identifiers,
// shared by individual signals and the consensus result.
func ContractPairFor(d Direction) ContractPair {
	switch d {
	case DirectionRise:
		return ContractPair{Rise: "RISE", Call: "CALL"}
	case DirectionFall:
		return ContractPair{Rise: "FALL", Call: "PUT"}
	default:
		return ContractPair{}
	}
}

// ConsensusResult is the aggregation of all strategy signals into a single
// decision. It is derived purely from the signal list.
type ConsensusResult struct {
	Decision   Decision
	Confidence float64 // [0,1]
	Signals    []StrategySignal
	Contract   ContractPair
	Rationale  string
}
