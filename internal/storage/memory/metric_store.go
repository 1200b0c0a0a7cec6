package memory

import (
	"context"
	"sync"
	"time"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// MetricStore is an in-memory append-only BusinessMetric store for
// tests and deployments without a durable analytical sink.
type MetricStore struct {
	mu      sync.RWMutex
	metrics []domain.BusinessMetric
}

func NewMetricStore() *MetricStore { return &MetricStore{} }

var _ storage.MetricStore = (*MetricStore)(nil)

func (s *MetricStore) Insert(_ context.Context, m domain.BusinessMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *MetricStore) GetByName(_ context.Context, name string, sinceUnixMs int64) ([]domain.BusinessMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.BusinessMetric
	for _, m := range s.metrics {
		if m.Name != name {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, m.Timestamp)
		if err != nil || t.UnixMilli() >= sinceUnixMs {
			out = append(out, m)
		}
	}
	return out, nil
}
