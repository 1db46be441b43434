package domain

// RiskLevel grades the severity of a risk finding.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the lowercase name of the level.
func (l RiskLevel) String() string {
	switch l {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// RiskVerdict is the outcome of a pre-trade risk assessment. Reasons lists
// every triggered issue in check order, and is empty (not nil) when the
// assessment found nothing, so callers can log near-miss conditions.
type RiskVerdict struct {
	Approved bool
	Level    RiskLevel
	Reasons  []string
}
