package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/idhash"
	"rollback-guard/internal/observability"
	"rollback-guard/internal/regression"
)

// Executor owns the probe registry and runs probes concurrently,
// feeding duration/score samples into the Baseline Store and surfacing
// detected regressions through its logger and, when configured, the
// regressions metric; they are not appended to the evidence log.
type Executor struct {
	log           logr.Logger
	baselines     *baseline.Store
	regressionCfg regression.Config
	probeTimeout  time.Duration
	metrics       *observability.Metrics

	mu     sync.RWMutex
	probes map[string]Probe

	now func() time.Time
}

// Option customizes an Executor at construction time.
type Option func(*Executor)

// WithMetrics instruments probe timeouts and detected regressions.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New constructs an Executor. probeTimeout of 0 defaults to 30s.
func New(log logr.Logger, baselines *baseline.Store, regressionCfg regression.Config, probeTimeout time.Duration, opts ...Option) *Executor {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	e := &Executor{
		log:           log.WithName("health-executor"),
		baselines:     baselines,
		regressionCfg: regressionCfg,
		probeTimeout:  probeTimeout,
		probes:        make(map[string]Probe),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds a probe under its own name. Duplicate registration is
// a fatal configuration error.
func (e *Executor) Register(p Probe) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.probes[p.Name()]; exists {
		return ErrDuplicateProbe{Name: p.Name()}
	}
	e.probes[p.Name()] = p
	return nil
}

// Execute runs a single named probe, enforcing the per-probe timeout
// and feeding its duration/score into the baseline store.
func (e *Executor) Execute(ctx context.Context, name string) (domain.HealthCheckResult, error) {
	e.mu.RLock()
	p, ok := e.probes[name]
	e.mu.RUnlock()
	if !ok {
		return domain.HealthCheckResult{}, ErrUnknownProbe{Name: name}
	}
	return e.run(ctx, p), nil
}

// ExecuteAll runs every registered probe concurrently.
func (e *Executor) ExecuteAll(ctx context.Context) map[string]domain.HealthCheckResult {
	e.mu.RLock()
	names := make([]string, 0, len(e.probes))
	probes := make([]Probe, 0, len(e.probes))
	for name, p := range e.probes {
		names = append(names, name)
		probes = append(probes, p)
	}
	e.mu.RUnlock()

	results := make([]domain.HealthCheckResult, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = e.run(ctx, p)
		}(i, p)
	}
	wg.Wait()

	out := make(map[string]domain.HealthCheckResult, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

// ExecutePhased runs ordered groups of probe names sequentially; probes
// within a group run concurrently.
func (e *Executor) ExecutePhased(ctx context.Context, phases [][]string) map[string]domain.HealthCheckResult {
	out := make(map[string]domain.HealthCheckResult)
	for _, group := range phases {
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, name := range group {
			e.mu.RLock()
			p, ok := e.probes[name]
			e.mu.RUnlock()
			if !ok {
				continue
			}
			wg.Add(1)
			go func(name string, p Probe) {
				defer wg.Done()
				result := e.run(ctx, p)
				mu.Lock()
				out[name] = result
				mu.Unlock()
			}(name, p)
		}
		wg.Wait()
		if ctx.Err() != nil {
			break
		}
	}
	return out
}

// run executes one probe with a hard timeout, converts a probe error,
// panic or timeout into a CRITICAL result, and updates the baseline
// store. When the parent context is cancelled the result's status is
// UNKNOWN; there is no separate cancelled status.
func (e *Executor) run(ctx context.Context, p Probe) (out domain.HealthCheckResult) {
	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
	defer cancel()

	start := e.now()
	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("probe panic: %v", r)
			}
		}()
		res, err := p.Execute(probeCtx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- res
	}()

	var raw Result
	var probeErr error
	select {
	case raw = <-resultCh:
	case probeErr = <-errCh:
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			probeErr = fmt.Errorf("cancelled")
			raw.Status = string(domain.CheckStatusUnknown)
		} else {
			probeErr = fmt.Errorf("timeout")
			if e.metrics != nil {
				e.metrics.ProbeTimeouts.WithLabelValues(p.Name()).Inc()
			}
		}
	}

	duration := e.now().Sub(start)

	if probeErr != nil {
		raw = Result{
			Component:    p.Name(),
			CheckType:    "UNKNOWN",
			Status:       string(domain.CheckStatusCritical),
			Score:        0,
			ErrorMessage: probeErr.Error(),
		}
		if ctx.Err() != nil {
			raw.Status = string(domain.CheckStatusUnknown)
		}
	}

	result := domain.HealthCheckResult{
		CheckID:      uuid.NewString(),
		Timestamp:    start.UTC().Format(time.RFC3339Nano),
		Component:    raw.Component,
		CheckType:    raw.CheckType,
		Status:       domain.CheckStatus(raw.Status),
		Score:        raw.Score,
		Severity:     severityForStatus(domain.CheckStatus(raw.Status)),
		Metrics:      raw.Metrics,
		DurationMS:   duration.Milliseconds(),
		ErrorMessage: raw.ErrorMessage,
	}
	result.Evidence = stringMapToValueMap(raw.Evidence)
	result.Hash = idhash.HealthCheckResultHash(result)

	if e.baselines != nil {
		e.baselines.Record(p.Name()+".duration_ms", float64(result.DurationMS), start)
		e.baselines.Record(p.Name()+".score", result.Score, start)
		e.maybeLogRegression(p.Name()+".duration_ms", float64(result.DurationMS))
		e.maybeLogRegression(p.Name()+".score", result.Score)
	}

	return result
}

func (e *Executor) maybeLogRegression(metricName string, current float64) {
	b, ok := e.baselines.Baseline(metricName)
	if !ok {
		return
	}
	window := e.baselines.Window(metricName)
	r := regression.Detect(e.regressionCfg, metricName, b, window, current)
	if r.IsRegression {
		e.log.Info("performance regression detected", "metric", metricName, "severity", r.Severity, "deviationPercent", r.DeviationPercent)
		if e.metrics != nil {
			e.metrics.RegressionsDetected.WithLabelValues(metricName, r.DetectionMethod).Inc()
		}
	}
}

func severityForStatus(status domain.CheckStatus) domain.Severity {
	switch status {
	case domain.CheckStatusCritical:
		return domain.SeverityCritical
	case domain.CheckStatusDegraded:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func stringMapToValueMap(m map[string]string) map[string]domain.Value {
	if m == nil {
		return nil
	}
	out := make(map[string]domain.Value, len(m))
	for k, v := range m {
		out[k] = domain.Str(v)
	}
	return out
}
