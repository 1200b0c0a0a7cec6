// Package idhash computes the deterministic SHA-256 digests that bind
// every hashed record in the platform (HealthCheckResult, BusinessMetric,
// BusinessImpactAssessment, RollbackDecision, EvidenceEvent) to its
// content. Every function here follows the same shape: join canonical
// field values with a delimiter, then SHA-256 and hex-encode. Fields
// excluded from a record's hash (e.g. HealthCheckResult.Hash itself)
// are never passed in.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"rollback-guard/internal/domain"
)

func sum(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

func sortedMetricsCanonical(metrics map[string]float64) string {
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%v", k, metrics[k])
	}
	return sb.String()
}

func sortedValueMapCanonical(m map[string]domain.Value) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%s", k, m[k].Canonical())
	}
	return sb.String()
}

// HealthCheckResultHash hashes a result's identity and payload fields
// (checkId, timestamp, component, checkType, status, score, metrics,
// durationMs); errorMessage and severity are intentionally excluded.
func HealthCheckResultHash(r domain.HealthCheckResult) string {
	return sum(
		r.CheckID,
		r.Timestamp,
		r.Component,
		r.CheckType,
		string(r.Status),
		fmt.Sprintf("%v", r.Score),
		sortedMetricsCanonical(r.Metrics),
		fmt.Sprintf("%d", r.DurationMS),
	)
}

// BusinessMetricHash hashes a BusinessMetric at construction time.
func BusinessMetricHash(name string, value decimal.Decimal, timestamp, source string) string {
	return sum(name, value.String(), timestamp, source)
}

// BusinessImpactAssessmentHash binds identity, level, loss, and trigger.
func BusinessImpactAssessmentHash(a domain.BusinessImpactAssessment) string {
	return sum(
		a.AssessmentID,
		a.Timestamp,
		string(a.ImpactLevel),
		a.EstimatedLoss.String(),
		string(a.TriggerType),
	)
}

// RollbackDecisionHash binds identity, urgency, loss, level, and
// trigger.
func RollbackDecisionHash(d domain.RollbackDecision) string {
	return sum(
		d.DecisionID,
		d.Timestamp,
		fmt.Sprintf("%v", d.RollbackRecommended),
		string(d.Urgency),
		d.ImpactAssessment.EstimatedLoss.String(),
		string(d.ImpactAssessment.ImpactLevel),
		string(d.ImpactAssessment.TriggerType),
	)
}

// VerifyHealthCheckResult reports whether a result's recorded hash
// still matches its content. False means the record was mutated after
// construction; callers log an integrity_violation_detected evidence
// event and stop trusting the record.
func VerifyHealthCheckResult(r domain.HealthCheckResult) bool {
	return r.Hash != "" && r.Hash == HealthCheckResultHash(r)
}

// VerifyBusinessImpactAssessment re-derives the forensic hash and
// compares it to the recorded one.
func VerifyBusinessImpactAssessment(a domain.BusinessImpactAssessment) bool {
	return a.ForensicHash != "" && a.ForensicHash == BusinessImpactAssessmentHash(a)
}

// VerifyRollbackDecision re-derives the forensic hash and compares it
// to the recorded one.
func VerifyRollbackDecision(d domain.RollbackDecision) bool {
	return d.ForensicHash != "" && d.ForensicHash == RollbackDecisionHash(d)
}

// EvidenceEventHash hashes the chain-of-custody unit over (eventType,
// timestamp, data). PreviousHash is never part of the hash itself; it
// is a separate chain-linkage field.
func EvidenceEventHash(eventType, timestamp string, data map[string]domain.Value) string {
	return sum(eventType, timestamp, sortedValueMapCanonical(data))
}
