package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// HealthCheckStore is the append-only ClickHouse sink for
// HealthCheckResult time series: one row per observation into a
// MergeTree ordered by (component, occurred_at).
type HealthCheckStore struct {
	conn *Conn
}

func NewHealthCheckStore(conn *Conn) *HealthCheckStore { return &HealthCheckStore{conn: conn} }

var _ storage.HealthCheckStore = (*HealthCheckStore)(nil)

func (s *HealthCheckStore) Insert(ctx context.Context, r domain.HealthCheckResult) error {
	evidence, err := json.Marshal(storage.ValueMapToJSON(r.Evidence))
	if err != nil {
		return fmt.Errorf("marshal health check evidence: %w", err)
	}
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("marshal health check metrics: %w", err)
	}
	return s.conn.Exec(ctx, `
		INSERT INTO health_check_results
			(check_id, component, check_type, status, score, severity, metrics, evidence, duration_ms, error_message, hash, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.CheckID, r.Component, r.CheckType, string(r.Status), r.Score, string(r.Severity), string(metrics), string(evidence), r.DurationMS, r.ErrorMessage, r.Hash, r.Timestamp)
}

func (s *HealthCheckStore) GetByComponent(ctx context.Context, component string, sinceUnixMs int64) ([]domain.HealthCheckResult, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT check_id, component, check_type, status, score, severity, metrics, evidence, duration_ms, error_message, hash, occurred_at
		FROM health_check_results
		WHERE component = ? AND toUnixTimestamp64Milli(parseDateTime64BestEffort(occurred_at)) >= ?
		ORDER BY occurred_at ASC
	`, component, sinceUnixMs)
	if err != nil {
		return nil, fmt.Errorf("query health check results: %w", err)
	}
	defer rows.Close()

	var out []domain.HealthCheckResult
	for rows.Next() {
		var r domain.HealthCheckResult
		var status, severity, metrics, evidence string
		if err := rows.Scan(&r.CheckID, &r.Component, &r.CheckType, &status, &r.Score, &severity, &metrics, &evidence, &r.DurationMS, &r.ErrorMessage, &r.Hash, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan health check result: %w", err)
		}
		r.Status = domain.CheckStatus(status)
		r.Severity = domain.Severity(severity)
		if metrics != "" {
			if err := json.Unmarshal([]byte(metrics), &r.Metrics); err != nil {
				return nil, fmt.Errorf("unmarshal health check metrics: %w", err)
			}
		}
		if evidence != "" {
			var decoded map[string]interface{}
			if err := json.Unmarshal([]byte(evidence), &decoded); err == nil {
				r.Evidence = storage.ValueMapFromJSON(decoded)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health check results: %w", err)
	}
	return out, nil
}
