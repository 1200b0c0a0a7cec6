// Package finance is a reference MetricsCollector for a trading
// engine: it reports trading P&L, latency, and error-cost metrics and
// exists to exercise the Metrics Collector Framework end-to-end.
package finance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/idhash"
)

// Source is the pluggable data feed a real deployment would wire in;
// cmd/platform's syntheticFinanceSource generates synthetic snapshots
// to stand in for a trading engine's live telemetry.
type Source interface {
	Snapshot(ctx context.Context) (pnlPerMinute, latencyMS, errorRatePercent float64, err error)
}

type Collector struct {
	source     Source
	assessor   *collector.Assessor
	baselines  *baseline.Store
	thresholds []collector.MetricThreshold
	now        func() time.Time
}

const (
	MetricPnLPerMinute     = "finance.trading_pnl_per_minute"
	MetricLatencyMS        = "finance.order_latency_ms"
	MetricErrorRatePercent = "finance.error_rate_percent"
)

// New builds the finance collector with one flat dollar multiplier per
// unit of absolute deviation from baseline: $1 per dollar of P&L per
// minute, $50 per ms of order latency, and $2000 per percentage point
// of error rate. The collector applies no loss tiers of its own (impact
// tiers are applied to the summed loss afterwards), and error cost is
// derived from the error-rate percentage, not counted per failed
// operation.
func New(source Source, baselines *baseline.Store) *Collector {
	return &Collector{
		source:    source,
		assessor:  collector.NewAssessor(baselines),
		baselines: baselines,
		thresholds: []collector.MetricThreshold{
			{MetricName: MetricPnLPerMinute, Multiplier: decimal.NewFromInt(1), Trigger: domain.TriggerRevenueLoss},
			{MetricName: MetricLatencyMS, Multiplier: decimal.NewFromFloat(50), Trigger: domain.TriggerLatencyDegradation},
			{MetricName: MetricErrorRatePercent, Multiplier: decimal.NewFromInt(2000), Trigger: domain.TriggerErrorRateSpike},
		},
		now: time.Now,
	}
}

func (c *Collector) Name() string { return "finance" }

func (c *Collector) CollectMetrics(ctx context.Context) ([]domain.BusinessMetric, error) {
	pnl, latency, errorRate, err := c.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC().Format(time.RFC3339Nano)

	build := func(name string, value float64) domain.BusinessMetric {
		m := domain.BusinessMetric{
			Name:       name,
			Value:      decimal.NewFromFloat(value),
			Timestamp:  now,
			Currency:   "USD",
			Source:     "live",
			Confidence: 0.95,
		}
		m.Hash = idhash.BusinessMetricHash(m.Name, m.Value, m.Timestamp, m.Source)
		return m
	}

	return []domain.BusinessMetric{
		build(MetricPnLPerMinute, pnl),
		build(MetricLatencyMS, latency),
		build(MetricErrorRatePercent, errorRate),
	}, nil
}

func (c *Collector) CalculateImpact(ctx context.Context, current []domain.BusinessMetric) (domain.BusinessImpactAssessment, error) {
	return c.assessor.Assess("", current, c.thresholds), nil
}

// EstablishBaseline seeds the baseline store with one snapshot per
// simulated minute over the lookback period, so the baselines reach
// readiness before live monitoring starts.
func (c *Collector) EstablishBaseline(ctx context.Context, hoursBack int) error {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	samples := hoursBack * 60
	if samples > 1000 {
		samples = 1000
	}
	now := c.now()
	for i := samples; i > 0; i-- {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pnl, latency, errorRate, err := c.source.Snapshot(ctx)
		if err != nil {
			return err
		}
		at := now.Add(-time.Duration(i) * time.Minute)
		c.baselines.Record(MetricPnLPerMinute, pnl, at)
		c.baselines.Record(MetricLatencyMS, latency, at)
		c.baselines.Record(MetricErrorRatePercent, errorRate, at)
	}
	return nil
}

var _ collector.Collector = (*Collector)(nil)
