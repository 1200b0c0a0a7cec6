// Package analyzer implements the Post-Rollback Analyzer: it turns a
// completed RollbackExecution into a Report with findings along six
// axes (root cause, business impact, rollback performance,
// communication effectiveness, compliance posture, lessons learned),
// built as a checklist of named compliance checks plus an
// estimated-vs-actual variance analysis.
package analyzer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/idhash"
)

// Finding is one analysis result, severity-classified like the
// original's AnalysisFinding.
type Finding struct {
	FindingID       string
	Category        string
	Severity        domain.FindingSeverity
	Title           string
	Description     string
	Recommendations []string
}

// Report is the complete post-rollback analysis output.
type Report struct {
	ReportID         string
	ExecutionID      string
	DeploymentID     string
	GeneratedAt      string
	RollbackDuration time.Duration
	EstimatedLoss    decimal.Decimal
	ActualLoss       decimal.Decimal
	AccuracyPercent  float64
	EfficiencyScore  float64
	ComplianceScore  float64
	Findings         []Finding
	Recommendations  []string
	ForensicHash     string
}

// ExecutionCost estimates the dollar cost of running a strategy for a
// given duration, used when computing the actual loss. Callers pass
// their own ExecutionCost to Analyze to replace the defaults.
type ExecutionCost struct {
	BaseCost           decimal.Decimal
	StrategyMultiplier map[domain.RollbackStrategy]decimal.Decimal
}

func DefaultExecutionCost() ExecutionCost {
	return ExecutionCost{
		BaseCost: decimal.NewFromInt(1000),
		StrategyMultiplier: map[domain.RollbackStrategy]decimal.Decimal{
			domain.StrategyFullStack: decimal.NewFromFloat(3.0),
			domain.StrategyBlueGreen: decimal.NewFromFloat(1.5),
		},
	}
}

// expectedDuration gives each strategy's expected wall-clock time, used
// by the efficiency score; mirrors the original's expected_durations
// table.
var expectedDuration = map[domain.RollbackStrategy]time.Duration{
	domain.StrategyBlueGreen: 60 * time.Second,
	domain.StrategyRolling:   300 * time.Second,
	domain.StrategyCanary:    180 * time.Second,
	domain.StrategyDatabase:  600 * time.Second,
	domain.StrategyFullStack: 900 * time.Second,
}

// Analyze builds a complete Report for a terminal RollbackExecution.
func Analyze(exec domain.RollbackExecution, cost ExecutionCost, now time.Time) Report {
	report := Report{
		ReportID:      uuid.NewString(),
		ExecutionID:   exec.ExecutionID,
		DeploymentID:  exec.DeploymentID,
		GeneratedAt:   now.UTC().Format(time.RFC3339Nano),
		EstimatedLoss: exec.EstimatedLoss(),
	}

	duration := parseDuration(exec.StartTime, exec.EndTime)
	report.RollbackDuration = duration

	report.Findings = append(report.Findings, rootCauseFinding(exec))

	report.ActualLoss = actualLoss(exec, cost, duration)
	report.AccuracyPercent = accuracyPercent(report.EstimatedLoss, report.ActualLoss)
	report.Findings = append(report.Findings, impactVarianceFinding(report.EstimatedLoss, report.ActualLoss, report.AccuracyPercent))

	report.EfficiencyScore = efficiencyScore(exec, duration)
	report.Findings = append(report.Findings, performanceFinding(exec, report.EfficiencyScore, duration))

	report.Findings = append(report.Findings, communicationFinding(exec))

	report.ComplianceScore, report.Findings = appendComplianceFinding(exec, report.Findings)

	report.Findings = append(report.Findings, lessonsLearnedFinding(exec, report.AccuracyPercent, duration))

	report.Recommendations = topRecommendations(report.Findings, 15)
	report.ForensicHash = idhash.EvidenceEventHash("post_rollback_report", report.GeneratedAt, map[string]domain.Value{
		"reportId":    domain.Str(report.ReportID),
		"executionId": domain.Str(report.ExecutionID),
	})
	return report
}

func parseDuration(start, end string) time.Duration {
	if start == "" || end == "" {
		return 0
	}
	s, errS := time.Parse(time.RFC3339Nano, start)
	e, errE := time.Parse(time.RFC3339Nano, end)
	if errS != nil || errE != nil || e.Before(s) {
		return 0
	}
	return e.Sub(s)
}

// actualLoss reconstructs the original's _calculate_actual_business_impact:
// trigger-specific downtime cost, plus strategy execution cost, plus a
// per-error recovery cost.
func actualLoss(exec domain.RollbackExecution, cost ExecutionCost, duration time.Duration) decimal.Decimal {
	minutes := decimal.NewFromFloat(duration.Minutes())
	total := decimal.Zero

	switch exec.Decision.ImpactAssessment.TriggerType {
	case domain.TriggerRevenueLoss:
		total = total.Add(decimal.NewFromInt(1000).Mul(minutes))
	case domain.TriggerEfficiencyDrop:
		total = total.Add(decimal.NewFromInt(500).Mul(minutes))
	}

	execCost := cost.BaseCost
	if m, ok := cost.StrategyMultiplier[exec.RollbackStrategy]; ok {
		execCost = execCost.Mul(m)
	}
	total = total.Add(execCost)

	if n := len(exec.ErrorLog); n > 0 {
		total = total.Add(decimal.NewFromInt(500).Mul(decimal.NewFromInt(int64(n))))
	}
	return total
}

// rootCauseFinding names the trigger that forced the rollback and its
// scale, so every report leads with why the system acted.
func rootCauseFinding(exec domain.RollbackExecution) Finding {
	assessment := exec.Decision.ImpactAssessment

	severity := domain.FindingMedium
	switch {
	case assessment.ImpactLevel == domain.ImpactCatastrophic,
		assessment.TriggerType == domain.TriggerSecurityIncident,
		assessment.TriggerType == domain.TriggerComplianceViolation:
		severity = domain.FindingCritical
	case assessment.ImpactLevel == domain.ImpactCritical:
		severity = domain.FindingHigh
	case assessment.ImpactLevel.Rank() <= domain.ImpactMedium.Rank():
		severity = domain.FindingLow
	}

	recs := []string{}
	switch assessment.TriggerType {
	case domain.TriggerRevenueLoss:
		recs = append(recs, "audit the deployment changes preceding the revenue drop")
	case domain.TriggerEfficiencyDrop:
		recs = append(recs, "review process parameter changes introduced by the deployment")
	case domain.TriggerErrorRateSpike:
		recs = append(recs, "correlate the error spike with the deployment's changed components")
	case domain.TriggerLatencyDegradation:
		recs = append(recs, "profile the latency-critical path introduced by the deployment")
	case domain.TriggerComplianceViolation:
		recs = append(recs, "escalate the compliance violation to the responsible quality unit")
	case domain.TriggerSecurityIncident:
		recs = append(recs, "hand off the incident evidence to the security response team")
	}

	return Finding{
		FindingID: uuid.NewString(),
		Category:  "ROOT_CAUSE",
		Severity:  severity,
		Title:     "Root Cause Analysis",
		Description: fmt.Sprintf("rollback triggered by %s at %s impact (estimated loss %s, confidence %.0f%%)",
			assessment.TriggerType, assessment.ImpactLevel, assessment.EstimatedLoss.String(), assessment.Confidence*100),
		Recommendations: recs,
	}
}

func accuracyPercent(estimated, actual decimal.Decimal) float64 {
	if estimated.IsZero() {
		return 0
	}
	variance := actual.Sub(estimated).Abs()
	ratio, _ := variance.Div(estimated).Float64()
	accuracy := 100 - ratio*100
	if accuracy < 0 {
		accuracy = 0
	}
	return accuracy
}

func impactVarianceFinding(estimated, actual decimal.Decimal, accuracy float64) Finding {
	severity := domain.FindingLow
	switch {
	case accuracy < 50:
		severity = domain.FindingHigh
	case accuracy < 75:
		severity = domain.FindingMedium
	}

	recs := []string{}
	if accuracy < 75 {
		recs = append(recs, "review impact calculation algorithms", "improve baseline metric collection")
	}

	return Finding{
		FindingID:       uuid.NewString(),
		Category:        "BUSINESS_IMPACT",
		Severity:        severity,
		Title:           "Business Impact Analysis",
		Description:     fmt.Sprintf("estimated loss %s vs actual loss %s (%.1f%% accuracy)", estimated.String(), actual.String(), accuracy),
		Recommendations: recs,
	}
}

func efficiencyScore(exec domain.RollbackExecution, duration time.Duration) float64 {
	expected, ok := expectedDuration[exec.RollbackStrategy]
	if !ok {
		expected = 300 * time.Second
	}

	var durationScore float64
	switch {
	case duration <= expected:
		durationScore = 70.0
	case duration <= expected+expected/2:
		durationScore = 50.0
	default:
		durationScore = 30.0
	}

	total := len(exec.ExecutionSteps)
	successful := 0
	for _, s := range exec.ExecutionSteps {
		if s.Success {
			successful++
		}
	}
	successRate := 0.0
	if total > 0 {
		successRate = float64(successful) / float64(total) * 100
	}

	errorPenalty := float64(len(exec.ErrorLog)) * 5
	if errorPenalty > 20 {
		errorPenalty = 20
	}

	score := durationScore + successRate*0.3 - errorPenalty
	if score < 0 {
		score = 0
	}
	return score
}

func performanceFinding(exec domain.RollbackExecution, score float64, duration time.Duration) Finding {
	severity := domain.FindingLow
	switch {
	case score < 50:
		severity = domain.FindingHigh
	case score < 70:
		severity = domain.FindingMedium
	}

	recs := []string{}
	if score < 70 {
		recs = append(recs, "review rollback procedure optimization opportunities", "analyze step execution bottlenecks")
	}
	if len(exec.ErrorLog) > 2 {
		recs = append(recs, "investigate and resolve rollback execution errors")
	}

	return Finding{
		FindingID:       uuid.NewString(),
		Category:        "PERFORMANCE_IMPACT",
		Severity:        severity,
		Title:           "Rollback Performance Analysis",
		Description:     fmt.Sprintf("rollback %s executed in %s with %.1f%% efficiency", exec.RollbackStrategy, duration, score),
		Recommendations: recs,
	}
}

// communicationFinding scores how completely the execution announced
// itself: the forensic timeline must show the execution being created
// and both status transitions, and every step must have left a
// step_executed event.
func communicationFinding(exec domain.RollbackExecution) Finding {
	var created, transitions, stepEvents int
	for _, e := range exec.ForensicTimeline {
		switch e.EventType {
		case "execution_created":
			created++
		case "status_transition":
			transitions++
		case "step_executed":
			stepEvents++
		}
	}

	missing := []string{}
	if created == 0 {
		missing = append(missing, "execution announcement")
	}
	if transitions < 2 {
		missing = append(missing, "status transition events")
	}
	if stepEvents < len(exec.ExecutionSteps) {
		missing = append(missing, "per-step progress events")
	}

	severity := domain.FindingLow
	recs := []string{}
	if len(missing) > 0 {
		severity = domain.FindingMedium
		recs = append(recs, "ensure every execution milestone emits a forensic event")
	}
	if created == 0 && transitions == 0 {
		severity = domain.FindingHigh
	}

	desc := "all execution milestones were announced on the forensic timeline"
	if len(missing) > 0 {
		desc = fmt.Sprintf("execution milestones missing from the forensic timeline: %s", strings.Join(missing, ", "))
	}

	return Finding{
		FindingID:       uuid.NewString(),
		Category:        "COMMUNICATION",
		Severity:        severity,
		Title:           "Communication Effectiveness",
		Description:     desc,
		Recommendations: recs,
	}
}

// lessonsLearnedFinding distills the execution into concrete lessons;
// always INFO severity, since lessons describe the future, not the
// incident.
func lessonsLearnedFinding(exec domain.RollbackExecution, accuracy float64, duration time.Duration) Finding {
	var lessons []string
	if exec.Status == domain.RollbackStatusFailed {
		lessons = append(lessons, fmt.Sprintf("the %s strategy failed for this class of incident; rehearse its runbook or prefer an alternative", exec.RollbackStrategy))
	}
	if len(exec.ErrorLog) > 0 {
		lessons = append(lessons, fmt.Sprintf("%d errors were recorded during execution; each one is a candidate for automation hardening", len(exec.ErrorLog)))
	}
	if accuracy < 75 && accuracy > 0 {
		lessons = append(lessons, "estimated and actual loss diverged substantially; recalibrate the impact multipliers")
	}
	if expected, ok := expectedDuration[exec.RollbackStrategy]; ok && duration > expected {
		lessons = append(lessons, fmt.Sprintf("execution took %s against an expected %s; investigate the slow steps", duration, expected))
	}
	if len(lessons) == 0 {
		lessons = append(lessons, "rollback completed within expectations; no corrective action required")
	}

	return Finding{
		FindingID:       uuid.NewString(),
		Category:        "LESSONS_LEARNED",
		Severity:        domain.FindingInfo,
		Title:           "Lessons Learned",
		Description:     strings.Join(lessons, "; "),
		Recommendations: lessons,
	}
}

// complianceCheck is one named boolean check, mirroring the original's
// explicit checklist (_check_decision_documentation etc.) rather than a
// single opaque score.
type complianceCheck struct {
	name           string
	passed         bool
	recommendation string
}

func appendComplianceFinding(exec domain.RollbackExecution, findings []Finding) (float64, []Finding) {
	d := exec.Decision
	checks := []complianceCheck{
		{
			name:           "decision_documentation",
			passed:         d.DecisionID != "" && d.Timestamp != "" && d.Justification != "" && d.ForensicHash != "",
			recommendation: "complete decision documentation",
		},
		{
			name:           "evidence_preservation",
			passed:         len(d.Evidence) >= 3 && len(exec.ForensicTimeline) >= 5,
			recommendation: "enhance evidence collection and forensic timeline documentation",
		},
		{
			name:           "timeline_accuracy",
			passed:         exec.StartTime != "" && exec.EndTime != "" && d.Timestamp != "",
			recommendation: "ensure complete timestamp recording",
		},
		{
			name:           "authorization_trail",
			passed:         d.DecisionMaker != "",
			recommendation: "document decision maker in all rollback decisions",
		},
		{
			name:           "impact_quantification",
			passed:         d.ImpactAssessment.EstimatedLoss.IsPositive() && d.ImpactAssessment.Confidence > 0 && len(d.ImpactAssessment.Evidence) > 0,
			recommendation: "quantify financial impact and document supporting evidence",
		},
	}

	passed := 0
	var recs []string
	for _, c := range checks {
		if c.passed {
			passed++
		} else {
			recs = append(recs, c.recommendation)
		}
	}
	score := float64(passed) / float64(len(checks)) * 100

	severity := domain.FindingLow
	switch {
	case score < 70:
		severity = domain.FindingCritical
	case score < 85:
		severity = domain.FindingHigh
	case score < 95:
		severity = domain.FindingMedium
	}

	status := "COMPLIANT"
	if score < 90 {
		status = "NON_COMPLIANT"
	}

	findings = append(findings, Finding{
		FindingID:       uuid.NewString(),
		Category:        "COMPLIANCE_VALIDATION",
		Severity:        severity,
		Title:           "Regulatory Compliance Validation",
		Description:     fmt.Sprintf("compliance validation: %s (%.1f%%)", status, score),
		Recommendations: recs,
	})
	return score, findings
}

var severityPriority = map[domain.FindingSeverity]int{
	domain.FindingCritical: 1,
	domain.FindingHigh:     2,
	domain.FindingMedium:   3,
	domain.FindingLow:      4,
	domain.FindingInfo:     5,
}

// topRecommendations deduplicates recommendations across findings,
// keeping each one's highest-priority (lowest-severity-rank) source,
// then returns the top n by priority.
func topRecommendations(findings []Finding, n int) []string {
	type entry struct {
		text     string
		priority int
	}
	seen := map[string]entry{}
	for _, f := range findings {
		for _, rec := range f.Recommendations {
			p := severityPriority[f.Severity]
			if cur, ok := seen[rec]; !ok || p < cur.priority {
				seen[rec] = entry{text: rec, priority: p}
			}
		}
	}
	out := make([]entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].text < out[j].text
	})
	if len(out) > n {
		out = out[:n]
	}
	result := make([]string, len(out))
	for i, e := range out {
		result[i] = e.text
	}
	return result
}
