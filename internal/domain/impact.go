package domain

import "github.com/shopspring/decimal"

// BusinessImpactAssessment is the output of a collector's
// calculateImpact call, converting observed metric deviations into a
// quantified, confidence-bounded statement of business harm.
type BusinessImpactAssessment struct {
	AssessmentID   string
	Timestamp      string
	DeploymentID   string
	ImpactLevel    BusinessImpactLevel
	EstimatedLoss  decimal.Decimal
	Confidence     float64
	TriggerType    TriggerType
	Evidence       map[string]Value
	Metrics        []BusinessMetric
	Recommendation string
	ForensicHash   string
}

// OverallImpact is the per-cycle aggregation across every collector's
// assessment: highest level, summed loss,
// confidence weighted by each assessment's own confidence.
type OverallImpact struct {
	ImpactLevel              BusinessImpactLevel
	TotalLoss                decimal.Decimal
	Confidence               float64
	Assessments              []BusinessImpactAssessment
	HighImpactCollectorCount int // assessments at >= HIGH, for the decision engine's escalation rule
}
