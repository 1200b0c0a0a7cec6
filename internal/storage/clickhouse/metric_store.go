package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// MetricStore is the append-only ClickHouse sink for BusinessMetric
// time series. The decimal value is stored in its
// exact string form so arbitrary-precision money survives the round trip.
type MetricStore struct {
	conn *Conn
}

func NewMetricStore(conn *Conn) *MetricStore { return &MetricStore{conn: conn} }

var _ storage.MetricStore = (*MetricStore)(nil)

func (s *MetricStore) Insert(ctx context.Context, m domain.BusinessMetric) error {
	metadata, err := json.Marshal(storage.ValueMapToJSON(m.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metric metadata: %w", err)
	}
	return s.conn.Exec(ctx, `
		INSERT INTO business_metrics
			(name, value, currency, unit, source, confidence, metadata, hash, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Name, m.Value.String(), m.Currency, m.Unit, m.Source, m.Confidence, string(metadata), m.Hash, m.Timestamp)
}

func (s *MetricStore) GetByName(ctx context.Context, name string, sinceUnixMs int64) ([]domain.BusinessMetric, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT name, value, currency, unit, source, confidence, metadata, hash, occurred_at
		FROM business_metrics
		WHERE name = ? AND toUnixTimestamp64Milli(parseDateTime64BestEffort(occurred_at)) >= ?
		ORDER BY occurred_at ASC
	`, name, sinceUnixMs)
	if err != nil {
		return nil, fmt.Errorf("query business metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.BusinessMetric
	for rows.Next() {
		var m domain.BusinessMetric
		var value, metadata string
		if err := rows.Scan(&m.Name, &value, &m.Currency, &m.Unit, &m.Source, &m.Confidence, &metadata, &m.Hash, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan business metric: %w", err)
		}
		dec, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("parse metric value: %w", err)
		}
		m.Value = dec
		if metadata != "" {
			var decoded map[string]interface{}
			if err := json.Unmarshal([]byte(metadata), &decoded); err == nil {
				m.Metadata = storage.ValueMapFromJSON(decoded)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate business metrics: %w", err)
	}
	return out, nil
}
