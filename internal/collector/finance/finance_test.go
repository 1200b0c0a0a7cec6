package finance_test

import (
	"context"
	"errors"
	"testing"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector/finance"
	"rollback-guard/internal/domain"
)

type feed struct {
	pnl, latency, errorRate float64
	err                     error
}

func (f *feed) Snapshot(context.Context) (float64, float64, float64, error) {
	return f.pnl, f.latency, f.errorRate, f.err
}

func TestCollectMetricsShapes(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	c := finance.New(&feed{pnl: 5000, latency: 45, errorRate: 0.1}, baselines)

	metrics, err := c.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(metrics) != 3 {
		t.Fatalf("expected 3 metrics, got %d", len(metrics))
	}
	for _, m := range metrics {
		if m.Hash == "" {
			t.Fatalf("expected %s to carry a construction-time hash", m.Name)
		}
		if m.Source != "live" {
			t.Fatalf("expected live source for %s, got %s", m.Name, m.Source)
		}
	}
	if metrics[0].Name != finance.MetricPnLPerMinute || metrics[0].Currency != "USD" {
		t.Fatalf("unexpected first metric: %+v", metrics[0])
	}
}

func TestCollectMetricsPropagatesSourceError(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	c := finance.New(&feed{err: errors.New("feed down")}, baselines)

	if _, err := c.CollectMetrics(context.Background()); err == nil {
		t.Fatalf("expected the source error to surface")
	}
}

func TestCalculateImpactFlagsRevenueCollapse(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	source := &feed{pnl: 1000, latency: 50, errorRate: 0.1}
	c := finance.New(source, baselines)
	if err := c.EstablishBaseline(context.Background(), 1); err != nil {
		t.Fatalf("establish baseline: %v", err)
	}

	source.pnl = -9000
	metrics, err := c.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	assessment, err := c.CalculateImpact(context.Background(), metrics)
	if err != nil {
		t.Fatalf("impact: %v", err)
	}
	if assessment.ImpactLevel.Rank() < domain.ImpactHigh.Rank() {
		t.Fatalf("expected at least HIGH impact, got %v", assessment.ImpactLevel)
	}
	if assessment.TriggerType != domain.TriggerRevenueLoss {
		t.Fatalf("expected REVENUE_LOSS trigger, got %v", assessment.TriggerType)
	}
	if assessment.ForensicHash == "" {
		t.Fatalf("expected the assessment to carry its forensic hash")
	}
}
