// Package pharma is a reference MetricsCollector for a pharmaceutical
// manufacturing line: it reports manufacturing efficiency and
// environmental parameters.
package pharma

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/idhash"
)

// Source is the pluggable data feed; a real deployment wires in the
// manufacturing execution system's telemetry.
type Source interface {
	Snapshot(ctx context.Context) (efficiencyPercent, temperatureC, pressureKPa, humidityPercent, particleCount float64, err error)
}

type Collector struct {
	source          Source
	assessor        *collector.Assessor
	baselines       *baseline.Store
	thresholds      []collector.MetricThreshold
	efficiencyFloor float64 // default 98.0
	now             func() time.Time
}

const (
	MetricEfficiencyPercent = "pharma.manufacturing_efficiency_percent"
	MetricTemperatureC      = "pharma.temperature_c"
	MetricPressureKPa       = "pharma.pressure_kpa"
	MetricHumidityPercent   = "pharma.humidity_percent"
	MetricParticleCount     = "pharma.particle_count"
)

func New(source Source, baselines *baseline.Store) *Collector {
	return &Collector{
		source:          source,
		assessor:        collector.NewAssessor(baselines),
		baselines:       baselines,
		efficiencyFloor: 98.0,
		thresholds: []collector.MetricThreshold{
			{MetricName: MetricEfficiencyPercent, Multiplier: decimal.NewFromInt(5000), Trigger: domain.TriggerEfficiencyDrop},
			{MetricName: MetricTemperatureC, Multiplier: decimal.NewFromInt(10000), Trigger: domain.TriggerComplianceViolation},
			{MetricName: MetricPressureKPa, Multiplier: decimal.NewFromInt(8000), Trigger: domain.TriggerComplianceViolation},
			{MetricName: MetricHumidityPercent, Multiplier: decimal.NewFromInt(3000), Trigger: domain.TriggerComplianceViolation},
			{MetricName: MetricParticleCount, Multiplier: decimal.NewFromInt(50), Trigger: domain.TriggerComplianceViolation},
		},
		now: time.Now,
	}
}

func (c *Collector) Name() string { return "pharma" }

func (c *Collector) CollectMetrics(ctx context.Context) ([]domain.BusinessMetric, error) {
	efficiency, temp, pressure, humidity, particles, err := c.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC().Format(time.RFC3339Nano)

	build := func(name string, value float64) domain.BusinessMetric {
		m := domain.BusinessMetric{
			Name:       name,
			Value:      decimal.NewFromFloat(value),
			Timestamp:  now,
			Source:     "calculated",
			Confidence: 0.9,
		}
		m.Hash = idhash.BusinessMetricHash(m.Name, m.Value, m.Timestamp, m.Source)
		return m
	}

	return []domain.BusinessMetric{
		build(MetricEfficiencyPercent, efficiency),
		build(MetricTemperatureC, temp),
		build(MetricPressureKPa, pressure),
		build(MetricHumidityPercent, humidity),
		build(MetricParticleCount, particles),
	}, nil
}

func (c *Collector) CalculateImpact(ctx context.Context, current []domain.BusinessMetric) (domain.BusinessImpactAssessment, error) {
	assessment := c.assessor.Assess("", current, c.thresholds)
	for _, m := range current {
		if m.Name == MetricEfficiencyPercent {
			if value, _ := m.Value.Float64(); value < c.efficiencyFloor {
				assessment.Evidence["efficiency_floor_breached"] = domain.Bool(true)
			}
		}
	}
	return assessment, nil
}

// EstablishBaseline seeds the baseline store with one snapshot per
// simulated minute over the lookback period.
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
		efficiency, temp, pressure, humidity, particles, err := c.source.Snapshot(ctx)
		if err != nil {
			return err
		}
		at := now.Add(-time.Duration(i) * time.Minute)
		c.baselines.Record(MetricEfficiencyPercent, efficiency, at)
		c.baselines.Record(MetricTemperatureC, temp, at)
		c.baselines.Record(MetricPressureKPa, pressure, at)
		c.baselines.Record(MetricHumidityPercent, humidity, at)
		c.baselines.Record(MetricParticleCount, particles, at)
	}
	return nil
}

var _ collector.Collector = (*Collector)(nil)
