package memory

import (
	"context"
	"sort"
	"sync"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// BaselineSnapshotStore is an in-memory BaselineSnapshotStore keyed by
// metric name, for tests and deployments without a durable backend.
type BaselineSnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.PerformanceBaseline
}

func NewBaselineSnapshotStore() *BaselineSnapshotStore {
	return &BaselineSnapshotStore{snapshots: make(map[string]domain.PerformanceBaseline)}
}

var _ storage.BaselineSnapshotStore = (*BaselineSnapshotStore)(nil)

func (s *BaselineSnapshotStore) Save(_ context.Context, b domain.PerformanceBaseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[b.MetricName] = b
	return nil
}

func (s *BaselineSnapshotStore) Load(_ context.Context, metricName string) (domain.PerformanceBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.snapshots[metricName]
	if !ok {
		return domain.PerformanceBaseline{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *BaselineSnapshotStore) LoadAll(_ context.Context) ([]domain.PerformanceBaseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.PerformanceBaseline, 0, len(s.snapshots))
	for _, b := range s.snapshots {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MetricName < out[j].MetricName })
	return out, nil
}
