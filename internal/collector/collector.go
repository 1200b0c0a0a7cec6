// Package collector implements the Metrics Collector Framework and the
// Impact Assessor it hosts. Industry collectors
// (collector/finance, collector/pharma) implement the Collector
// contract; Assessor holds the shared calculateImpact algorithm every
// collector delegates to.
package collector

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/evidencelog"
	"rollback-guard/internal/idhash"
)

// Collector is the pluggable contract an industry metrics source
// implements.
type Collector interface {
	Name() string
	CollectMetrics(ctx context.Context) ([]domain.BusinessMetric, error)
	CalculateImpact(ctx context.Context, current []domain.BusinessMetric) (domain.BusinessImpactAssessment, error)
	EstablishBaseline(ctx context.Context, hoursBack int) error
}

// MetricThreshold configures how one metric contributes to impact: a
// dollar-per-unit-of-absolute-deviation multiplier and the trigger
// category it represents when it is the largest contributor.
type MetricThreshold struct {
	MetricName string
	Multiplier decimal.Decimal
	Trigger    domain.TriggerType
}

// Assessor implements the shared calculateImpact algorithm
// that every collector's CalculateImpact delegates to.
type Assessor struct {
	baselines *baseline.Store
	now       func() time.Time
}

func NewAssessor(baselines *baseline.Store) *Assessor {
	return &Assessor{baselines: baselines, now: time.Now}
}

// Assess converts current metrics into a BusinessImpactAssessment
// using the collector's thresholds. It always returns a well-formed
// assessment, even for an empty metric set.
func (a *Assessor) Assess(deploymentID string, current []domain.BusinessMetric, thresholds []MetricThreshold) domain.BusinessImpactAssessment {
	now := a.now().UTC()

	thresholdByName := make(map[string]MetricThreshold, len(thresholds))
	for _, th := range thresholds {
		thresholdByName[th.MetricName] = th
	}

	totalLoss := decimal.Zero
	maxPercentDeviation := 0.0
	var largestTrigger domain.TriggerType
	largestLoss := decimal.Zero
	weightedConfidenceSum := 0.0
	weightSum := 0.0
	evidence := make(map[string]domain.Value)

	for _, metric := range current {
		th, hasThreshold := thresholdByName[metric.Name]

		value, _ := metric.Value.Float64()
		var percentDeviation float64
		var loss decimal.Decimal

		if b, ok := a.baselines.Baseline(metric.Name); ok {
			absDeviation := value - b.Mean
			if absDeviation < 0 {
				absDeviation = -absDeviation
			}
			if b.Mean != 0 {
				percentDeviation = absDeviation / absMean(b.Mean) * 100
			}
			if hasThreshold {
				loss = decimal.NewFromFloat(absDeviation).Mul(th.Multiplier)
			}
		}

		totalLoss = totalLoss.Add(loss)
		// Metrics with a money multiplier are classified through their
		// dollar contribution; the percent path covers metrics with no
		// cost model. Counting both would double-count one deviation.
		if !hasThreshold && percentDeviation > maxPercentDeviation {
			maxPercentDeviation = percentDeviation
		}
		if loss.GreaterThan(largestLoss) {
			largestLoss = loss
			if hasThreshold {
				largestTrigger = th.Trigger
			}
		}

		freshness := freshnessFactor(metric.Timestamp, now)
		reliability := domain.SourceReliability[metric.Source]
		if reliability == 0 {
			reliability = 0.80
		}
		weight := 1.0
		weightedConfidenceSum += freshness * reliability * metric.Confidence * weight
		weightSum += weight

		evidence[metric.Name] = domain.Num(percentDeviation)
	}

	confidence := 0.0
	if weightSum > 0 {
		confidence = weightedConfidenceSum / weightSum
	}

	level := ClassifyImpact(maxPercentDeviation, totalLoss)

	assessment := domain.BusinessImpactAssessment{
		AssessmentID:  uuid.NewString(),
		Timestamp:     now.Format(time.RFC3339Nano),
		DeploymentID:  deploymentID,
		ImpactLevel:   level,
		EstimatedLoss: totalLoss,
		Confidence:    confidence,
		TriggerType:   largestTrigger,
		Evidence:      evidence,
		Metrics:       current,
	}
	assessment.Recommendation = recommendationFor(level)
	assessment.ForensicHash = idhash.BusinessImpactAssessmentHash(assessment)
	return assessment
}

func absMean(mean float64) float64 {
	if mean < 0 {
		return -mean
	}
	return mean
}

// freshnessFactor decays linearly to 0 over a 5-minute window.
func freshnessFactor(metricTimestamp string, now time.Time) float64 {
	t, err := time.Parse(time.RFC3339Nano, metricTimestamp)
	if err != nil {
		return 0
	}
	age := now.Sub(t)
	window := 5 * time.Minute
	if age <= 0 {
		return 1.0
	}
	if age >= window {
		return 0
	}
	return 1.0 - float64(age)/float64(window)
}

// ClassifyImpact classifies by both percent change and absolute loss,
// taking the more severe of the two. Monotonic in both arguments.
func ClassifyImpact(percentDeviation float64, loss decimal.Decimal) domain.BusinessImpactLevel {
	lossFloat, _ := loss.Float64()
	rank := func(pct float64, dollars float64) int {
		switch {
		case pct >= 50 || dollars >= 1_000_000:
			return domain.ImpactCatastrophic.Rank()
		case pct >= 25 || dollars >= 100_000:
			return domain.ImpactCritical.Rank()
		case pct >= 10 || dollars >= 10_000:
			return domain.ImpactHigh.Rank()
		case pct >= 5 || dollars >= 1_000:
			return domain.ImpactMedium.Rank()
		case pct >= 1 || dollars >= 100:
			return domain.ImpactLow.Rank()
		default:
			return domain.ImpactNone.Rank()
		}
	}
	r := rank(percentDeviation, lossFloat)
	for _, lvl := range []domain.BusinessImpactLevel{
		domain.ImpactCatastrophic, domain.ImpactCritical, domain.ImpactHigh,
		domain.ImpactMedium, domain.ImpactLow, domain.ImpactNone,
	} {
		if lvl.Rank() == r {
			return lvl
		}
	}
	return domain.ImpactNone
}

func recommendationFor(level domain.BusinessImpactLevel) string {
	switch level {
	case domain.ImpactCatastrophic:
		return "Immediate rollback required; business impact is catastrophic."
	case domain.ImpactCritical:
		return "Rollback strongly recommended; business impact is critical."
	case domain.ImpactHigh:
		return "Rollback recommended; business impact is high."
	case domain.ImpactMedium:
		return "Monitor closely; consider rollback if trend continues."
	case domain.ImpactLow:
		return "Minor deviation observed; continue monitoring."
	default:
		return "No significant business impact observed."
	}
}

// Aggregate combines every collector's BusinessImpactAssessment for one
// monitoring cycle into an OverallImpact: the
// highest impact level across collectors, the summed estimated loss,
// and a confidence weighted by each assessment's own confidence.
func Aggregate(assessments []domain.BusinessImpactAssessment) domain.OverallImpact {
	overall := domain.OverallImpact{ImpactLevel: domain.ImpactNone, Assessments: assessments}
	weightedConfidenceSum := 0.0
	weightSum := 0.0
	for _, a := range assessments {
		overall.TotalLoss = overall.TotalLoss.Add(a.EstimatedLoss)
		if a.ImpactLevel.Rank() > overall.ImpactLevel.Rank() {
			overall.ImpactLevel = a.ImpactLevel
		}
		if a.ImpactLevel.Rank() >= domain.ImpactHigh.Rank() {
			overall.HighImpactCollectorCount++
		}
		weight := a.Confidence
		if weight <= 0 {
			weight = 0.01
		}
		weightedConfidenceSum += weight * a.Confidence
		weightSum += weight
	}
	if weightSum > 0 {
		overall.Confidence = weightedConfidenceSum / weightSum
	}
	return overall
}

// ToAssessment folds an OverallImpact back into a single synthetic
// BusinessImpactAssessment so the Decision Engine (which evaluates one
// assessment at a time) can be handed the cycle's aggregate verdict.
// TriggerType and Metrics are taken from the single largest
// contributor, mirroring the per-metric "largest contributor" rule
// Assess uses within one collector; Recommendation follows the
// aggregate impact level.
func ToAssessment(deploymentID string, overall domain.OverallImpact, at time.Time) domain.BusinessImpactAssessment {
	var largest domain.BusinessImpactAssessment
	for _, a := range overall.Assessments {
		if a.EstimatedLoss.GreaterThan(largest.EstimatedLoss) {
			largest = a
		}
	}
	evidence := map[string]domain.Value{
		"collectorCount":           domain.Num(float64(len(overall.Assessments))),
		"highImpactCollectorCount": domain.Num(float64(overall.HighImpactCollectorCount)),
	}
	for _, a := range overall.Assessments {
		evidence["assessment."+a.AssessmentID] = domain.Str(string(a.ImpactLevel))
	}
	assessment := domain.BusinessImpactAssessment{
		AssessmentID:  uuid.NewString(),
		Timestamp:     at.UTC().Format(time.RFC3339Nano),
		DeploymentID:  deploymentID,
		ImpactLevel:   overall.ImpactLevel,
		EstimatedLoss: overall.TotalLoss,
		Confidence:    overall.Confidence,
		TriggerType:   largest.TriggerType,
		Evidence:      evidence,
		Metrics:       largest.Metrics,
	}
	assessment.Recommendation = recommendationFor(assessment.ImpactLevel)
	assessment.ForensicHash = idhash.BusinessImpactAssessmentHash(assessment)
	return assessment
}

// RecordMetrics feeds every collected metric's value into the baseline
// store, and logs an evidence event for the collection cycle.
func RecordMetrics(ctx context.Context, baselines *baseline.Store, evidence *evidencelog.Log, collectorName string, metrics []domain.BusinessMetric, at time.Time) {
	for _, m := range metrics {
		value, _ := m.Value.Float64()
		baselines.Record(m.Name, value, at)
	}
	if evidence != nil {
		data := map[string]domain.Value{
			"collector":   domain.Str(collectorName),
			"metricCount": domain.Num(float64(len(metrics))),
		}
		evidence.Append(ctx, "collector."+collectorName, "metrics_collected", data)
	}
}

// LogCollectionFailure records a collector failure as an EvidenceEvent
// rather than propagating it.
func LogCollectionFailure(ctx context.Context, log logr.Logger, evidence *evidencelog.Log, collectorName string, err error) {
	log.Error(err, "collector failed", "collector", collectorName)
	if evidence != nil {
		evidence.Append(ctx, "collector."+collectorName, "collection_failed", map[string]domain.Value{
			"error": domain.Str(err.Error()),
		})
	}
}
