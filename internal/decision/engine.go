// Package decision implements the Rollback Decision Engine: it takes
// a business impact assessment and emits a
// RollbackDecision with urgency and justification, by evaluating a
// sequence of named rules in order.
package decision

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/idhash"
)

// Config controls the confidence threshold gating rollbackRecommended.
type Config struct {
	ConfidenceThreshold float64 // default 0.8
}

func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.8}
}

// Engine evaluates impact assessments into decisions.
type Engine struct {
	cfg Config
	now func() time.Time
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg, now: time.Now}
}

var (
	loss1M   = decimal.NewFromInt(1_000_000)
	loss100K = decimal.NewFromInt(100_000)
	loss10K  = decimal.NewFromInt(10_000)
	loss1K   = decimal.NewFromInt(1_000)
)

// Evaluate applies the ordered rollback policy to one impact
// assessment, optionally escalating for a multi-collector cycle.
// highImpactCollectorCount is the number of distinct collectors that
// independently reported >= HIGH in the same cycle (the escalation
// rule); pass 0/1 outside of a multi-collector aggregation context.
func (e *Engine) Evaluate(assessment domain.BusinessImpactAssessment, highImpactCollectorCount int) domain.RollbackDecision {
	urgency := baseUrgency(assessment.ImpactLevel, assessment.EstimatedLoss)

	forcedImmediate := false
	if (assessment.TriggerType == domain.TriggerComplianceViolation || assessment.TriggerType == domain.TriggerSecurityIncident) && assessment.Confidence >= 0.5 {
		if urgency.Rank() < domain.UrgencyImmediate.Rank() {
			urgency = domain.UrgencyImmediate
		}
		forcedImmediate = true
	}

	escalated := false
	if highImpactCollectorCount >= 2 {
		urgency = escalateOneLevel(urgency)
		escalated = true
	}

	recommended := urgency.Rank() >= domain.UrgencyHigh.Rank() && assessment.Confidence >= e.cfg.ConfidenceThreshold

	now := e.now().UTC().Format(time.RFC3339Nano)
	decision := domain.RollbackDecision{
		DecisionID:          uuid.NewString(),
		Timestamp:           now,
		RollbackRecommended: recommended,
		Urgency:             urgency,
		ImpactAssessment:    assessment,
		DecisionMaker:       "automated_system",
		Evidence: map[string]domain.Value{
			"impactLevel":              domain.Str(string(assessment.ImpactLevel)),
			"estimatedLoss":            domain.Str(assessment.EstimatedLoss.String()),
			"confidence":               domain.Num(assessment.Confidence),
			"triggerType":              domain.Str(string(assessment.TriggerType)),
			"forcedImmediate":          domain.Bool(forcedImmediate),
			"escalatedMultiCollector":  domain.Bool(escalated),
			"highImpactCollectorCount": domain.Num(float64(highImpactCollectorCount)),
		},
	}
	if !recommended && urgency.Rank() >= domain.UrgencyHigh.Rank() {
		decision.SuppressedReason = fmt.Sprintf("confidence %.2f below threshold %.2f", assessment.Confidence, e.cfg.ConfidenceThreshold)
	}
	decision.Justification = BuildJustification(decision)
	decision.ForensicHash = idhash.RollbackDecisionHash(decision)
	return decision
}

// baseUrgency walks the urgency tier table in order; the first
// matching tier wins.
func baseUrgency(level domain.BusinessImpactLevel, loss decimal.Decimal) domain.RollbackUrgency {
	switch {
	case level == domain.ImpactCatastrophic || loss.GreaterThanOrEqual(loss1M):
		return domain.UrgencyEmergency
	case level == domain.ImpactCritical || loss.GreaterThanOrEqual(loss100K):
		return domain.UrgencyImmediate
	case level == domain.ImpactHigh || loss.GreaterThanOrEqual(loss10K):
		return domain.UrgencyUrgent
	case level == domain.ImpactMedium || loss.GreaterThanOrEqual(loss1K):
		return domain.UrgencyHigh
	case level == domain.ImpactLow:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

// escalateOneLevel bumps urgency up a single rung, capping at EMERGENCY.
func escalateOneLevel(u domain.RollbackUrgency) domain.RollbackUrgency {
	order := []domain.RollbackUrgency{
		domain.UrgencyNone, domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh,
		domain.UrgencyUrgent, domain.UrgencyImmediate, domain.UrgencyEmergency,
	}
	for i, level := range order {
		if level == u {
			if i+1 < len(order) {
				return order[i+1]
			}
			return level
		}
	}
	return u
}

// BuildJustification generates the human-readable justification text
// attached to a RollbackDecision.
func BuildJustification(d domain.RollbackDecision) string {
	if !d.RollbackRecommended {
		if d.SuppressedReason != "" {
			return fmt.Sprintf("Rollback suppressed despite %s urgency: %s.", d.Urgency, d.SuppressedReason)
		}
		return fmt.Sprintf("No rollback recommended; urgency assessed as %s.", d.Urgency)
	}
	return fmt.Sprintf(
		"Rollback recommended at %s urgency. Impact level %s with estimated loss %s (confidence %.0f%%), triggered by %s.",
		d.Urgency, d.ImpactAssessment.ImpactLevel, d.ImpactAssessment.EstimatedLoss.String(),
		d.ImpactAssessment.Confidence*100, d.ImpactAssessment.TriggerType,
	)
}
