package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/storage"
)

// EvidenceStore is the durable EvidenceSink backing the Evidence Log
// for deployments that need appends to survive a restart: a
// pool-backed insert with an ordered, append-only query path.
type EvidenceStore struct {
	pool *Pool
}

func NewEvidenceStore(pool *Pool) *EvidenceStore { return &EvidenceStore{pool: pool} }

var _ storage.EvidenceSink = (*EvidenceStore)(nil)

func (s *EvidenceStore) Persist(ctx context.Context, streamID string, event domain.EvidenceEvent) error {
	data, err := json.Marshal(storage.ValueMapToJSON(event.Data))
	if err != nil {
		return fmt.Errorf("marshal evidence data: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO evidence_events (stream_id, event_type, occurred_at, data, event_hash, previous_hash, persisted)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, streamID, event.EventType, event.Timestamp, data, event.EventHash, event.PreviousHash, true)
	if err != nil {
		return fmt.Errorf("persist evidence event: %w", err)
	}
	return nil
}

func (s *EvidenceStore) Events(ctx context.Context, streamID string) ([]domain.EvidenceEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, occurred_at, data, event_hash, previous_hash, persisted
		FROM evidence_events WHERE stream_id = $1 ORDER BY id ASC
	`, streamID)
	if err != nil {
		return nil, fmt.Errorf("query evidence events: %w", err)
	}
	defer rows.Close()

	var events []domain.EvidenceEvent
	for rows.Next() {
		var e domain.EvidenceEvent
		var raw []byte
		if err := rows.Scan(&e.EventType, &e.Timestamp, &raw, &e.EventHash, &e.PreviousHash, &e.Persisted); err != nil {
			return nil, fmt.Errorf("scan evidence event: %w", err)
		}
		var decoded map[string]interface{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("unmarshal evidence data: %w", err)
			}
		}
		e.Data = storage.ValueMapFromJSON(decoded)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence events: %w", err)
	}
	return events, nil
}
