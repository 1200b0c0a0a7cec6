// Package orchestrator implements the top-level loop:
// tick -> collect -> assess -> (probe) -> decide -> execute -> analyze.
// It owns every other component instance and passes them into the
// functions that need them. It is a ticker-driven loop that fans
// collectors out with goroutines and never blocks on a rollback
// execution.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector"
	"rollback-guard/internal/decision"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/evidencelog"
	"rollback-guard/internal/executor"
	"rollback-guard/internal/health"
	"rollback-guard/internal/notification"
	"rollback-guard/internal/observability"
	"rollback-guard/internal/storage"
)

// Config controls cycle pacing and the ancillary health-probe cadence.
type Config struct {
	MonitoringInterval time.Duration // default 30s
	ProbeCycleEvery    int           // run executePhased every N cycles, default 5
	CollectorTimeout   time.Duration // per-collector CollectMetrics/CalculateImpact timeout, default 10s
	CycleGuard         time.Duration // hard ceiling on one cycle, default 2x MonitoringInterval
	ShutdownGrace      time.Duration // default 30s
	CycleBackoff       time.Duration // delay before the next cycle after a cycle-level panic/error, default 5s
	DeploymentID       string
}

func DefaultConfig() Config {
	return Config{
		MonitoringInterval: 30 * time.Second,
		ProbeCycleEvery:    5,
		CollectorTimeout:   10 * time.Second,
		CycleGuard:         60 * time.Second,
		ShutdownGrace:      30 * time.Second,
		CycleBackoff:       5 * time.Second,
		DeploymentID:       "default",
	}
}

// activeExecution tracks one in-flight or just-completed rollback.
type activeExecution struct {
	execution domain.RollbackExecution
	reported  bool
}

// Orchestrator is the platform's outer loop. It owns the Baseline
// Store, Evidence Log, Decision Engine, Health Executor, Rollback
// Runner and every registered Collector; nothing here is a package
// singleton.
type Orchestrator struct {
	log     logr.Logger
	cfg     Config
	metrics *observability.Metrics

	collectors     []collector.Collector
	baselines      *baseline.Store
	evidence       *evidencelog.Log
	decisionEngine *decision.Engine
	healthExecutor *health.Executor
	runner         *executor.Runner
	probePhases    [][]string
	analyze        func(domain.RollbackExecution, time.Time) Report
	healthStore    storage.HealthCheckStore      // optional analytical sink, nil-safe
	metricStore    storage.MetricStore           // optional analytical sink, nil-safe
	snapshots      storage.BaselineSnapshotStore // optional warm-start store, nil-safe

	mu         sync.Mutex // guards active, held only for insertion/removal, never across I/O
	active     map[string]*activeExecution
	cycleCount int

	healthMu   sync.Mutex // guards lastHealth
	lastHealth map[string]domain.Value

	now func() time.Time
}

// Report is the minimal surface the orchestrator needs from a
// post-rollback report; callers copy it out of an analyzer.Report in
// the Analyze function they supply (see cmd/platform).
type Report struct {
	ReportID        string
	ExecutionID     string
	ComplianceScore float64
	Findings        int
}

// Deps bundles every collaborator the Orchestrator needs, so
// construction reads as one explicit wiring call.
type Deps struct {
	Log            logr.Logger
	Config         Config
	Metrics        *observability.Metrics
	Collectors     []collector.Collector
	Baselines      *baseline.Store
	Evidence       *evidencelog.Log
	DecisionEngine *decision.Engine
	HealthExecutor *health.Executor
	Runner         *executor.Runner
	ProbePhases    [][]string
	Analyze        func(domain.RollbackExecution, time.Time) Report
	HealthStore    storage.HealthCheckStore      // optional, persists every ancillary probe result
	MetricStore    storage.MetricStore           // optional, persists every collected business metric
	Snapshots      storage.BaselineSnapshotStore // optional, persists baseline summaries for warm starts
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		log:            d.Log.WithName("orchestrator"),
		cfg:            d.Config,
		metrics:        d.Metrics,
		collectors:     d.Collectors,
		baselines:      d.Baselines,
		evidence:       d.Evidence,
		decisionEngine: d.DecisionEngine,
		healthExecutor: d.HealthExecutor,
		runner:         d.Runner,
		probePhases:    d.ProbePhases,
		analyze:        d.Analyze,
		healthStore:    d.HealthStore,
		metricStore:    d.MetricStore,
		snapshots:      d.Snapshots,
		active:         make(map[string]*activeExecution),
		now:            time.Now,
	}
}

// Run drives the monitoring loop until ctx is cancelled. It never
// returns early from a downstream error: a panicking or
// erroring cycle is caught, logged to the evidence stream, and the
// next cycle is scheduled after cfg.CycleBackoff.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.MonitoringInterval)
	defer ticker.Stop()

	o.log.Info("orchestrator started", "interval", o.cfg.MonitoringInterval, "collectors", len(o.collectors))

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return
		case <-ticker.C:
			o.cycleCount++
			if !o.runCycleGuarded(ctx, o.cycleCount) {
				select {
				case <-time.After(o.cfg.CycleBackoff):
				case <-ctx.Done():
					o.shutdown()
					return
				}
			}
		}
	}
}

// runCycleGuarded recovers from any panic in runCycle and enforces the
// cycle guard timeout, converting both into an evidence event instead
// of propagating.
func (o *Orchestrator) runCycleGuarded(ctx context.Context, cycle int) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.recordOrchestratorFailure(ctx, fmt.Sprintf("cycle panic: %v", r))
			ok = false
		}
	}()

	guard := o.cfg.CycleGuard
	if guard <= 0 {
		guard = 2 * o.cfg.MonitoringInterval
	}
	cycleCtx, cancel := context.WithTimeout(ctx, guard)
	defer cancel()

	start := o.now()
	err := o.runCycle(cycleCtx, cycle)
	duration := o.now().Sub(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		o.recordOrchestratorFailure(ctx, err.Error())
	}
	if o.metrics != nil {
		o.metrics.CycleDuration.Observe(duration.Seconds())
		o.metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	}
	return err == nil
}

// runCycle implements steps 1-7 for a single tick. Steps
// 1->2->3->4->5 run strictly in order; collectors within step 1 run
// concurrently.
func (o *Orchestrator) runCycle(ctx context.Context, cycle int) error {
	// Step 1: collect, concurrently across collectors.
	metricsByCollector := o.collectAll(ctx)

	// Step 2: per-collector impact assessment.
	assessments := make([]domain.BusinessImpactAssessment, 0, len(o.collectors))
	for _, c := range o.collectors {
		assessCtx, cancel := context.WithTimeout(ctx, o.cfg.CollectorTimeout)
		assessment, err := c.CalculateImpact(assessCtx, metricsByCollector[c.Name()])
		cancel()
		if err != nil {
			collector.LogCollectionFailure(ctx, o.log, o.evidence, c.Name(), err)
			continue
		}
		assessments = append(assessments, assessment)
		if o.metrics != nil {
			o.metrics.ImpactAssessmentsTotal.WithLabelValues(c.Name(), string(assessment.ImpactLevel)).Inc()
			loss, _ := assessment.EstimatedLoss.Float64()
			o.metrics.EstimatedLossDollars.WithLabelValues(c.Name()).Set(loss)
		}
	}

	// Step 3: aggregate into OverallImpact.
	overall := collector.Aggregate(assessments)
	aggregated := collector.ToAssessment(o.cfg.DeploymentID, overall, o.now())

	// Enrich the decision's inputs with the deployment context and the
	// most recent probe-derived health summary, so the recorded evidence
	// bundle explains the whole picture the policy saw.
	aggregated.Evidence["deployment.id"] = domain.Str(o.cfg.DeploymentID)
	o.healthMu.Lock()
	for k, v := range o.lastHealth {
		aggregated.Evidence["systemHealth."+k] = v
	}
	o.healthMu.Unlock()

	// Step 4: decide.
	d := o.decisionEngine.Evaluate(aggregated, overall.HighImpactCollectorCount)
	o.logDecision(ctx, d)
	if o.metrics != nil {
		o.metrics.RollbackDecisionsTotal.WithLabelValues(string(d.Urgency), fmt.Sprintf("%t", d.RollbackRecommended)).Inc()
	}

	// Step 5: hand off to the Rollback Executor, non-blocking.
	if d.RollbackRecommended {
		o.launchRollback(ctx, d)
	}

	// Step 6: sweep active rollbacks for terminal transitions.
	o.sweepActive(ctx)

	// Step 7: ancillary health probes, less frequently.
	every := o.cfg.ProbeCycleEvery
	if every <= 0 {
		every = 5
	}
	if cycle%every == 0 {
		o.runHealthPhase(ctx)
		o.persistBaselineSnapshots(ctx)
	}

	return nil
}

// persistBaselineSnapshots writes the current summary of every ready
// baseline to the snapshot store, so a restarted process can pre-seed
// its drift detection instead of starting cold.
func (o *Orchestrator) persistBaselineSnapshots(ctx context.Context) {
	if o.snapshots == nil || o.baselines == nil {
		return
	}
	for _, name := range o.baselines.Names() {
		b, ok := o.baselines.Baseline(name)
		if !ok {
			continue
		}
		if err := o.snapshots.Save(ctx, b); err != nil {
			o.log.Error(err, "persist baseline snapshot", "metric", name)
		}
	}
}

// collectAll runs every collector's CollectMetrics concurrently,
// feeds results into the Baseline Store, and returns each collector's
// metrics keyed by name.
func (o *Orchestrator) collectAll(ctx context.Context) map[string][]domain.BusinessMetric {
	type result struct {
		name    string
		metrics []domain.BusinessMetric
	}
	results := make([]result, len(o.collectors))
	var wg sync.WaitGroup
	for i, c := range o.collectors {
		wg.Add(1)
		go func(i int, c collector.Collector) {
			defer wg.Done()
			defer func() {
				// A panicking collector must not take the loop down with it.
				if r := recover(); r != nil {
					collector.LogCollectionFailure(ctx, o.log, o.evidence, c.Name(), fmt.Errorf("collector panic: %v", r))
					results[i] = result{name: c.Name()}
				}
			}()
			collectCtx, cancel := context.WithTimeout(ctx, o.cfg.CollectorTimeout)
			defer cancel()
			metrics, err := c.CollectMetrics(collectCtx)
			if err != nil {
				collector.LogCollectionFailure(ctx, o.log, o.evidence, c.Name(), err)
				metrics = nil
			}
			results[i] = result{name: c.Name(), metrics: metrics}
		}(i, c)
	}
	wg.Wait()

	out := make(map[string][]domain.BusinessMetric, len(results))
	now := o.now()
	for _, r := range results {
		out[r.name] = r.metrics
		collector.RecordMetrics(ctx, o.baselines, o.evidence, r.name, r.metrics, now)
		o.persistMetrics(ctx, r.metrics)
	}
	return out
}

// persistMetrics writes every collected metric to the analytical
// MetricStore when one is configured. A failure here is logged, not
// propagated: the analytical sink is a secondary record, not the live
// baseline path.
func (o *Orchestrator) persistMetrics(ctx context.Context, metrics []domain.BusinessMetric) {
	if o.metricStore == nil {
		return
	}
	for _, m := range metrics {
		if err := o.metricStore.Insert(ctx, m); err != nil {
			o.log.Error(err, "persist business metric", "metric", m.Name)
		}
	}
}

// launchRollback registers an active-rollback handle synchronously
// and runs the strategy in the background so the
// monitoring loop never blocks on execution.
func (o *Orchestrator) launchRollback(ctx context.Context, d domain.RollbackDecision) {
	handle := &activeExecution{execution: domain.RollbackExecution{
		Decision:     d,
		DeploymentID: o.cfg.DeploymentID,
		Status:       domain.RollbackStatusPending,
	}}

	o.mu.Lock()
	key := d.DecisionID
	o.active[key] = handle
	if o.metrics != nil {
		o.metrics.ActiveRollbacks.Set(float64(len(o.active)))
	}
	o.mu.Unlock()

	go func() {
		exec := o.runner.Run(ctx, o.cfg.DeploymentID, d)
		o.mu.Lock()
		o.active[key] = &activeExecution{execution: exec}
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.RollbackExecutionsTotal.WithLabelValues(string(exec.RollbackStrategy), string(exec.Status)).Inc()
			if start, end := parseRFC3339(exec.StartTime), parseRFC3339(exec.EndTime); !start.IsZero() && !end.IsZero() {
				o.metrics.RollbackDuration.WithLabelValues(string(exec.RollbackStrategy)).Observe(end.Sub(start).Seconds())
			}
		}
	}()
}

// sweepActive finds every active-rollback handle that reached a
// terminal state and has not yet been analyzed, invokes the
// post-rollback analyzer, and removes it from the tracking map. The
// map lock is held only while reading/copying the slice, never while
// the analyzer runs.
func (o *Orchestrator) sweepActive(ctx context.Context) {
	o.mu.Lock()
	toAnalyze := make([]string, 0)
	for key, h := range o.active {
		if domain.IsTerminal(h.execution.Status) && !h.reported {
			toAnalyze = append(toAnalyze, key)
		}
	}
	o.mu.Unlock()

	for _, key := range toAnalyze {
		o.mu.Lock()
		h, ok := o.active[key]
		o.mu.Unlock()
		if !ok {
			continue
		}
		if o.analyze != nil {
			report := o.analyze(h.execution, o.now())
			o.evidence.Append(ctx, "rollback:"+h.execution.ExecutionID, "post_rollback_report_generated", map[string]domain.Value{
				"reportId":        domain.Str(report.ReportID),
				"complianceScore": domain.Num(report.ComplianceScore),
			})
		}
		o.mu.Lock()
		if h2, ok := o.active[key]; ok {
			h2.reported = true
			delete(o.active, key)
		}
		if o.metrics != nil {
			o.metrics.ActiveRollbacks.Set(float64(len(o.active)))
		}
		o.mu.Unlock()
	}
}

// runHealthPhase runs the registered health probes in phases and logs
// a summary evidence event.
func (o *Orchestrator) runHealthPhase(ctx context.Context) {
	if o.healthExecutor == nil || len(o.probePhases) == 0 {
		return
	}
	results := o.healthExecutor.ExecutePhased(ctx, o.probePhases)
	critical := 0
	for name, r := range results {
		if o.metrics != nil {
			o.metrics.HealthChecksTotal.WithLabelValues(name, string(r.Status)).Inc()
			o.metrics.HealthCheckDuration.WithLabelValues(name).Observe(float64(r.DurationMS) / 1000)
			o.metrics.HealthCheckScore.WithLabelValues(name).Set(r.Score)
		}
		if r.Status == domain.CheckStatusCritical {
			critical++
		}
		o.persistHealthResult(ctx, r)
	}
	o.evidence.Append(ctx, "health:phased", "probe_phase_completed", map[string]domain.Value{
		"probeCount": domain.Num(float64(len(results))),
		"critical":   domain.Num(float64(critical)),
	})

	o.healthMu.Lock()
	o.lastHealth = map[string]domain.Value{
		"probeCount":     domain.Num(float64(len(results))),
		"criticalProbes": domain.Num(float64(critical)),
	}
	o.healthMu.Unlock()
}

// persistHealthResult writes a probe result to the analytical
// HealthCheckStore when one is configured. Best-effort: a failure
// here must not block the monitoring cycle.
func (o *Orchestrator) persistHealthResult(ctx context.Context, r domain.HealthCheckResult) {
	if o.healthStore == nil {
		return
	}
	if err := o.healthStore.Insert(ctx, r); err != nil {
		o.log.Error(err, "persist health check result", "component", r.Component)
	}
}

func (o *Orchestrator) logDecision(ctx context.Context, d domain.RollbackDecision) {
	data := map[string]domain.Value{
		"decisionId":          domain.Str(d.DecisionID),
		"urgency":             domain.Str(string(d.Urgency)),
		"rollbackRecommended": domain.Bool(d.RollbackRecommended),
		"impactLevel":         domain.Str(string(d.ImpactAssessment.ImpactLevel)),
	}
	if d.SuppressedReason != "" {
		data["suppressedReason"] = domain.Str(d.SuppressedReason)
	}
	// Carry the assessment's evidence (collector verdicts, deployment id,
	// health summary) so the recorded decision shows what the policy saw.
	for k, v := range d.ImpactAssessment.Evidence {
		data[k] = v
	}
	o.evidence.Append(ctx, "decisions", "decision_recorded", data)
}

func (o *Orchestrator) recordOrchestratorFailure(ctx context.Context, message string) {
	o.log.Error(errors.New(message), "monitoring cycle failed")
	o.evidence.Append(ctx, "orchestrator", "cycle_failed", map[string]domain.Value{
		"message": domain.Str(message),
	})
}

// shutdown requests cancellation of in-flight work and allows active
// rollbacks up to cfg.ShutdownGrace to reach a terminal state before
// marking the rest CANCELLED with a forensic event.
func (o *Orchestrator) shutdown() {
	ctx := context.Background()
	grace := o.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	deadline := o.now().Add(grace)

	for o.now().Before(deadline) {
		o.mu.Lock()
		pending := 0
		for _, h := range o.active {
			if !domain.IsTerminal(h.execution.Status) {
				pending++
			}
		}
		o.mu.Unlock()
		if pending == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for key, h := range o.active {
		if !domain.IsTerminal(h.execution.Status) {
			h.execution.Status = domain.RollbackStatusCancelled
			o.evidence.Append(ctx, "rollback:"+h.execution.ExecutionID, "execution_cancelled_on_shutdown", map[string]domain.Value{
				"executionId": domain.Str(h.execution.ExecutionID),
			})
			o.active[key] = h
		}
	}
	o.log.Info("orchestrator shutdown complete")
}

// ActiveCount reports the number of rollback executions currently
// tracked (in flight or awaiting analysis); used by health/readiness
// endpoints.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func parseRFC3339(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// NotificationDispatcher re-exports notification.Dispatcher so callers
// wiring the orchestrator don't need a second import just to name the
// type in their own construction code.
type NotificationDispatcher = notification.Dispatcher
