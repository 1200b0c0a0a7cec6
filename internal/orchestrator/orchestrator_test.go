package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"rollback-guard/internal/analyzer"
	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector"
	"rollback-guard/internal/collector/finance"
	"rollback-guard/internal/collector/pharma"
	"rollback-guard/internal/decision"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/evidencelog"
	"rollback-guard/internal/executor"
	"rollback-guard/internal/health"
	"rollback-guard/internal/regression"
)

// financeFeed is a controllable finance source: tests seed baselines
// with the steady values, then flip to the live ones.
type financeFeed struct {
	mu        sync.Mutex
	pnl       float64
	latency   float64
	errorRate float64
}

func (f *financeFeed) Snapshot(context.Context) (float64, float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pnl, f.latency, f.errorRate, nil
}

func (f *financeFeed) set(pnl, latency, errorRate float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnl, f.latency, f.errorRate = pnl, latency, errorRate
}

type pharmaFeed struct {
	mu         sync.Mutex
	efficiency float64
	temp       float64
	pressure   float64
	humidity   float64
	particles  float64
}

func (f *pharmaFeed) Snapshot(context.Context) (float64, float64, float64, float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.efficiency, f.temp, f.pressure, f.humidity, f.particles, nil
}

func (f *pharmaFeed) setEfficiency(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.efficiency = v
}

type harness struct {
	orch     *Orchestrator
	evidence *evidencelog.Log
	reports  []analyzer.Report
	mu       sync.Mutex
}

func newHarness(t *testing.T, collectors []collector.Collector, baselines *baseline.Store) *harness {
	t.Helper()
	h := &harness{}
	h.evidence = evidencelog.New(logr.Discard(), nil)
	runner := executor.NewRunner(logr.Discard(), executor.DefaultConfig(), executor.SimulatedDriver{StepDelay: time.Millisecond}, h.evidence, nil)
	cost := analyzer.DefaultExecutionCost()

	h.orch = New(Deps{
		Log: logr.Discard(),
		Config: Config{
			MonitoringInterval: 10 * time.Millisecond,
			ProbeCycleEvery:    5,
			CollectorTimeout:   time.Second,
			CycleGuard:         5 * time.Second,
			ShutdownGrace:      time.Second,
			CycleBackoff:       time.Millisecond,
			DeploymentID:       "dep-test",
		},
		Collectors:     collectors,
		Baselines:      baselines,
		Evidence:       h.evidence,
		DecisionEngine: decision.NewEngine(decision.DefaultConfig()),
		HealthExecutor: health.New(logr.Discard(), baselines, regression.DefaultConfig(), time.Second),
		Runner:         runner,
		Analyze: func(exec domain.RollbackExecution, now time.Time) Report {
			report := analyzer.Analyze(exec, cost, now)
			h.mu.Lock()
			h.reports = append(h.reports, report)
			h.mu.Unlock()
			return Report{ReportID: report.ReportID, ExecutionID: report.ExecutionID, ComplianceScore: report.ComplianceScore, Findings: len(report.Findings)}
		},
	})
	return h
}

// lastDecision returns the most recent decision_recorded event.
func (h *harness) lastDecision(t *testing.T) domain.EvidenceEvent {
	t.Helper()
	events := h.evidence.Events("decisions")
	if len(events) == 0 {
		t.Fatalf("expected at least one recorded decision")
	}
	return events[len(events)-1]
}

// waitForTerminalExecution polls until one active rollback reaches a
// terminal state, then sweeps and returns it.
func (h *harness) waitForTerminalExecution(t *testing.T) domain.RollbackExecution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		h.orch.mu.Lock()
		var found *domain.RollbackExecution
		for _, handle := range h.orch.active {
			if domain.IsTerminal(handle.execution.Status) {
				exec := handle.execution
				found = &exec
			}
		}
		h.orch.mu.Unlock()
		if found != nil {
			h.orch.sweepActive(context.Background())
			return *found
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no rollback execution reached a terminal state in time")
	return domain.RollbackExecution{}
}

func TestCycleWithHealthyMetricsTakesNoAction(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	feed := &financeFeed{pnl: 1000, latency: 50, errorRate: 0.1}
	fin := finance.New(feed, baselines)
	if err := fin.EstablishBaseline(context.Background(), 1); err != nil {
		t.Fatalf("establish baseline: %v", err)
	}

	h := newHarness(t, []collector.Collector{fin}, baselines)
	if err := h.orch.runCycle(context.Background(), 1); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	d := h.lastDecision(t)
	recommended, _ := d.Data["rollbackRecommended"].AsBool()
	if recommended {
		t.Fatalf("expected no rollback for metrics matching baseline, got %+v", d.Data)
	}
	level, _ := d.Data["impactLevel"].AsString()
	if level != string(domain.ImpactNone) {
		t.Fatalf("expected NONE impact, got %s", level)
	}
	if h.orch.ActiveCount() != 0 {
		t.Fatalf("expected no active rollbacks")
	}
}

func TestCycleWithRevenueCollapseRunsUrgentRollback(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	feed := &financeFeed{pnl: 1000, latency: 50, errorRate: 0.1}
	fin := finance.New(feed, baselines)
	if err := fin.EstablishBaseline(context.Background(), 17); err != nil {
		t.Fatalf("establish baseline: %v", err)
	}

	// The live sample itself lands in the window before assessment, so
	// the observed deviation is n/(n+1) of the raw swing; a $10,100
	// swing keeps the diluted deviation above the $10,000 tier.
	feed.set(-9100, 50, 0.1)
	h := newHarness(t, []collector.Collector{fin}, baselines)
	if err := h.orch.runCycle(context.Background(), 1); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	d := h.lastDecision(t)
	urgency, _ := d.Data["urgency"].AsString()
	if urgency != string(domain.UrgencyUrgent) {
		t.Fatalf("expected URGENT urgency for a $10,000/min swing, got %s", urgency)
	}
	recommended, _ := d.Data["rollbackRecommended"].AsBool()
	if !recommended {
		t.Fatalf("expected a recommended rollback, got %+v", d.Data)
	}

	exec := h.waitForTerminalExecution(t)
	if exec.RollbackStrategy != domain.StrategyBlueGreen {
		t.Fatalf("expected blue_green strategy, got %v", exec.RollbackStrategy)
	}
	if exec.Status != domain.RollbackStatusCompleted {
		t.Fatalf("expected COMPLETED, got %v", exec.Status)
	}
	if len(exec.ExecutionSteps) != 3 {
		t.Fatalf("expected exactly 3 recorded steps, got %d", len(exec.ExecutionSteps))
	}
}

func TestCycleWithCatastrophicImpactRunsFullStackRollback(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	finFeed := &financeFeed{pnl: 1000, latency: 50, errorRate: 0.1}
	fin := finance.New(finFeed, baselines)
	phFeed := &pharmaFeed{efficiency: 98, temp: 21, pressure: 101, humidity: 45, particles: 50}
	ph := pharma.New(phFeed, baselines)
	for _, c := range []collector.Collector{fin, ph} {
		if err := c.EstablishBaseline(context.Background(), 1); err != nil {
			t.Fatalf("establish baseline: %v", err)
		}
	}

	// An error-cost explosion on the finance side plus a manufacturing
	// efficiency collapse on the pharma side.
	finFeed.set(1000, 50, 600)
	phFeed.setEfficiency(45)

	h := newHarness(t, []collector.Collector{fin, ph}, baselines)
	if err := h.orch.runCycle(context.Background(), 1); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	d := h.lastDecision(t)
	urgency, _ := d.Data["urgency"].AsString()
	if urgency != string(domain.UrgencyEmergency) {
		t.Fatalf("expected EMERGENCY urgency, got %s", urgency)
	}
	level, _ := d.Data["impactLevel"].AsString()
	if level != string(domain.ImpactCatastrophic) {
		t.Fatalf("expected CATASTROPHIC impact, got %s", level)
	}

	exec := h.waitForTerminalExecution(t)
	if exec.RollbackStrategy != domain.StrategyFullStack {
		t.Fatalf("expected full_stack strategy, got %v", exec.RollbackStrategy)
	}
	if len(exec.ExecutionSteps) < 6 {
		t.Fatalf("expected at least 6 recorded steps, got %d", len(exec.ExecutionSteps))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reports) == 0 {
		t.Fatalf("expected a post-rollback report")
	}
	critical := 0
	for _, f := range h.reports[0].Findings {
		if f.Severity == domain.FindingCritical {
			critical++
		}
	}
	if critical == 0 {
		t.Fatalf("expected at least one CRITICAL finding in the post-rollback report")
	}
}

// panickingCollector exercises the loop's panic isolation.
type panickingCollector struct{}

func (panickingCollector) Name() string { return "panicking" }
func (panickingCollector) CollectMetrics(context.Context) ([]domain.BusinessMetric, error) {
	panic("collector exploded")
}
func (panickingCollector) CalculateImpact(context.Context, []domain.BusinessMetric) (domain.BusinessImpactAssessment, error) {
	return domain.BusinessImpactAssessment{ImpactLevel: domain.ImpactNone}, nil
}
func (panickingCollector) EstablishBaseline(context.Context, int) error { return nil }

func TestCycleSurvivesPanickingCollector(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	h := newHarness(t, []collector.Collector{panickingCollector{}}, baselines)

	if err := h.orch.runCycle(context.Background(), 1); err != nil {
		t.Fatalf("expected the cycle to absorb the collector panic, got %v", err)
	}

	events := h.evidence.Events("collector.panicking")
	failed := false
	for _, e := range events {
		if e.EventType == "collection_failed" {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("expected a collection_failed evidence event after the panic")
	}
}

func TestDecisionEvidenceCarriesDeploymentContext(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	feed := &financeFeed{pnl: 1000, latency: 50, errorRate: 0.1}
	fin := finance.New(feed, baselines)
	if err := fin.EstablishBaseline(context.Background(), 1); err != nil {
		t.Fatalf("establish baseline: %v", err)
	}

	h := newHarness(t, []collector.Collector{fin}, baselines)
	err := h.orch.healthExecutor.Register(health.ProbeFunc{ProbeName: "noop", Fn: func(context.Context) (health.Result, error) {
		return health.Result{Component: "noop", Status: "HEALTHY", Score: 100}, nil
	}})
	if err != nil {
		t.Fatalf("register probe: %v", err)
	}
	h.orch.probePhases = [][]string{{"noop"}}

	// Probe phase first, so the health summary is available as decision
	// context in the following cycle.
	h.orch.runHealthPhase(context.Background())
	if err := h.orch.runCycle(context.Background(), 1); err != nil {
		t.Fatalf("cycle failed: %v", err)
	}

	// The deployment id and the health summary land in the recorded
	// decision evidence.
	d := h.lastDecision(t)
	if id, _ := d.Data["deployment.id"].AsString(); id != "dep-test" {
		t.Fatalf("expected the decision evidence to carry the deployment id, got %+v", d.Data)
	}
	if _, ok := d.Data["systemHealth.probeCount"]; !ok {
		t.Fatalf("expected the decision evidence to carry the health summary, got %+v", d.Data)
	}
	h.orch.healthMu.Lock()
	defer h.orch.healthMu.Unlock()
	if h.orch.lastHealth == nil {
		t.Fatalf("expected a probe-derived health summary to be retained for decision context")
	}
}
