package postgres

import (
	"context"
	"fmt"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// BaselineSnapshotStore persists PerformanceBaseline snapshots so a
// restarted platform can pre-seed the in-memory Baseline Store's EWMA
// drift fields; the sample window itself is refilled from live
// samples. It upserts by the metric's natural key.
type BaselineSnapshotStore struct {
	pool *Pool
}

func NewBaselineSnapshotStore(pool *Pool) *BaselineSnapshotStore {
	return &BaselineSnapshotStore{pool: pool}
}

var _ storage.BaselineSnapshotStore = (*BaselineSnapshotStore)(nil)

func (s *BaselineSnapshotStore) Save(ctx context.Context, b domain.PerformanceBaseline) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO baseline_snapshots
			(metric_name, mean, stddev, p95, p99, min, max, sample_count, ci_low, ci_high, ewma_mean, ewma_stddev, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		ON CONFLICT (metric_name) DO UPDATE SET
			mean = EXCLUDED.mean, stddev = EXCLUDED.stddev, p95 = EXCLUDED.p95, p99 = EXCLUDED.p99,
			min = EXCLUDED.min, max = EXCLUDED.max, sample_count = EXCLUDED.sample_count,
			ci_low = EXCLUDED.ci_low, ci_high = EXCLUDED.ci_high,
			ewma_mean = EXCLUDED.ewma_mean, ewma_stddev = EXCLUDED.ewma_stddev, updated_at = now()
	`, b.MetricName, b.Mean, b.StdDev, b.P95, b.P99, b.Min, b.Max, b.SampleCount, b.CILow, b.CIHigh, b.EWMAMean, b.EWMAStdDev)
	if err != nil {
		return fmt.Errorf("save baseline snapshot: %w", err)
	}
	return nil
}

func (s *BaselineSnapshotStore) Load(ctx context.Context, metricName string) (domain.PerformanceBaseline, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT metric_name, mean, stddev, p95, p99, min, max, sample_count, ci_low, ci_high, ewma_mean, ewma_stddev
		FROM baseline_snapshots WHERE metric_name = $1
	`, metricName)
	var b domain.PerformanceBaseline
	err := row.Scan(&b.MetricName, &b.Mean, &b.StdDev, &b.P95, &b.P99, &b.Min, &b.Max, &b.SampleCount, &b.CILow, &b.CIHigh, &b.EWMAMean, &b.EWMAStdDev)
	if err != nil {
		if isNotFoundError(err) {
			return domain.PerformanceBaseline{}, storage.ErrNotFound
		}
		return domain.PerformanceBaseline{}, fmt.Errorf("load baseline snapshot: %w", err)
	}
	return b, nil
}

func (s *BaselineSnapshotStore) LoadAll(ctx context.Context) ([]domain.PerformanceBaseline, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT metric_name, mean, stddev, p95, p99, min, max, sample_count, ci_low, ci_high, ewma_mean, ewma_stddev
		FROM baseline_snapshots ORDER BY metric_name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load all baseline snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.PerformanceBaseline
	for rows.Next() {
		var b domain.PerformanceBaseline
		if err := rows.Scan(&b.MetricName, &b.Mean, &b.StdDev, &b.P95, &b.P99, &b.Min, &b.Max, &b.SampleCount, &b.CILow, &b.CIHigh, &b.EWMAMean, &b.EWMAStdDev); err != nil {
			return nil, fmt.Errorf("scan baseline snapshot: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate baseline snapshots: %w", err)
	}
	return out, nil
}
