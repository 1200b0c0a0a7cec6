package storage

import (
	"context"

	"rollback-guard/internal/domain"
)

// EvidenceSink durably persists evidence events per stream; it backs
// evidencelog.Sink for deployments that want the chain of custody to
// survive a process restart.
type EvidenceSink interface {
	Persist(ctx context.Context, streamID string, event domain.EvidenceEvent) error

	// Events returns a stream's durably persisted events in append
	// order, for recovery and forensic review after a restart.
	Events(ctx context.Context, streamID string) ([]domain.EvidenceEvent, error)
}

// BaselineSnapshotStore persists PerformanceBaseline snapshots so a
// restarted process can pre-seed the Baseline Store's EWMA drift
// fields; the sample window itself is refilled from live samples.
type BaselineSnapshotStore interface {
	Save(ctx context.Context, b domain.PerformanceBaseline) error

	// Load returns ErrNotFound if no snapshot exists for metricName.
	Load(ctx context.Context, metricName string) (domain.PerformanceBaseline, error)
	LoadAll(ctx context.Context) ([]domain.PerformanceBaseline, error)
}

// HealthCheckStore is an append-only analytical sink for
// HealthCheckResult time series, independent of the
// in-process baseline window used for live regression detection.
type HealthCheckStore interface {
	Insert(ctx context.Context, r domain.HealthCheckResult) error

	// GetByComponent returns results for component with timestamps at
	// or after sinceUnixMs, in occurrence order.
	GetByComponent(ctx context.Context, component string, sinceUnixMs int64) ([]domain.HealthCheckResult, error)
}

// MetricStore is an append-only analytical sink for BusinessMetric
// time series.
type MetricStore interface {
	Insert(ctx context.Context, m domain.BusinessMetric) error
	GetByName(ctx context.Context, name string, sinceUnixMs int64) ([]domain.BusinessMetric, error)
}
