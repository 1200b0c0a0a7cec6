package pharma_test

import (
	"context"
	"testing"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector/pharma"
	"rollback-guard/internal/domain"
)

type feed struct {
	efficiency, temp, pressure, humidity, particles float64
}

func (f *feed) Snapshot(context.Context) (float64, float64, float64, float64, float64, error) {
	return f.efficiency, f.temp, f.pressure, f.humidity, f.particles, nil
}

func TestCollectMetricsShapes(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	c := pharma.New(&feed{efficiency: 98.5, temp: 21, pressure: 101, humidity: 45, particles: 50}, baselines)

	metrics, err := c.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(metrics) != 5 {
		t.Fatalf("expected 5 metrics, got %d", len(metrics))
	}
	for _, m := range metrics {
		if m.Hash == "" {
			t.Fatalf("expected %s to carry a construction-time hash", m.Name)
		}
	}
}

func TestCalculateImpactMarksEfficiencyFloorBreach(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	source := &feed{efficiency: 98.5, temp: 21, pressure: 101, humidity: 45, particles: 50}
	c := pharma.New(source, baselines)
	if err := c.EstablishBaseline(context.Background(), 1); err != nil {
		t.Fatalf("establish baseline: %v", err)
	}

	source.efficiency = 45
	metrics, err := c.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	assessment, err := c.CalculateImpact(context.Background(), metrics)
	if err != nil {
		t.Fatalf("impact: %v", err)
	}

	breached, ok := assessment.Evidence["efficiency_floor_breached"].AsBool()
	if !ok || !breached {
		t.Fatalf("expected the efficiency floor breach to be flagged in evidence")
	}
	if assessment.ImpactLevel.Rank() < domain.ImpactHigh.Rank() {
		t.Fatalf("expected at least HIGH impact for an efficiency collapse, got %v", assessment.ImpactLevel)
	}
	if assessment.TriggerType != domain.TriggerEfficiencyDrop {
		t.Fatalf("expected EFFICIENCY_DROP trigger, got %v", assessment.TriggerType)
	}
}

func TestCalculateImpactSteadyStateIsNone(t *testing.T) {
	baselines := baseline.New(baseline.DefaultConfig())
	source := &feed{efficiency: 98.5, temp: 21, pressure: 101, humidity: 45, particles: 50}
	c := pharma.New(source, baselines)
	if err := c.EstablishBaseline(context.Background(), 1); err != nil {
		t.Fatalf("establish baseline: %v", err)
	}

	metrics, err := c.CollectMetrics(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	assessment, err := c.CalculateImpact(context.Background(), metrics)
	if err != nil {
		t.Fatalf("impact: %v", err)
	}
	if assessment.ImpactLevel != domain.ImpactNone {
		t.Fatalf("expected NONE impact at steady state, got %v", assessment.ImpactLevel)
	}
}
