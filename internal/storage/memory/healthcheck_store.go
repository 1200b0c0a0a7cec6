package memory

import (
	"context"
	"sync"
	"time"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// HealthCheckStore is an in-memory append-only HealthCheckResult
// store for tests and deployments without a durable analytical sink.
type HealthCheckStore struct {
	mu      sync.RWMutex
	results []domain.HealthCheckResult
}

func NewHealthCheckStore() *HealthCheckStore { return &HealthCheckStore{} }

var _ storage.HealthCheckStore = (*HealthCheckStore)(nil)

func (s *HealthCheckStore) Insert(_ context.Context, r domain.HealthCheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *HealthCheckStore) GetByComponent(_ context.Context, component string, sinceUnixMs int64) ([]domain.HealthCheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.HealthCheckResult
	for _, r := range s.results {
		if r.Component != component {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil || t.UnixMilli() >= sinceUnixMs {
			out = append(out, r)
		}
	}
	return out, nil
}
