// Package evidencelog implements the append-only, tamper-evident event
// stream every other component writes through. Each
// stream is a hash-linked chain of domain.EvidenceEvent; appends are
// serialized per stream, guarded by a per-stream mutex.
package evidencelog

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/idhash"
	"rollback-guard/internal/observability"
)

// Sink durably persists appended events. A sink failure does not stop
// the event from being returned to the caller — persistence is
// treated as a health signal, not an exception.
type Sink interface {
	Persist(ctx context.Context, streamID string, event domain.EvidenceEvent) error
}

// NoopSink is the default sink: it succeeds unconditionally and is
// used when no durable sink is configured.
type NoopSink struct{}

func (NoopSink) Persist(context.Context, string, domain.EvidenceEvent) error { return nil }

// maxStreamEvents bounds each in-memory stream; the durable sink keeps
// the full history.
const maxStreamEvents = 10000

type stream struct {
	mu     sync.Mutex
	events []domain.EvidenceEvent
}

// Log is the Evidence Log. Each stream carries its own lock, so one
// busy stream never blocks appends to another.
type Log struct {
	log     logr.Logger
	sink    Sink
	metrics *observability.Metrics
	now     func() time.Time
	mu      sync.RWMutex // guards the streams map itself, not its contents
	streams map[string]*stream
}

// Option customizes a Log at construction time.
type Option func(*Log)

// WithMetrics instruments appends, persist failures, and chain
// verifications.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// New constructs an Evidence Log. sink may be nil, in which case a
// NoopSink is used.
func New(log logr.Logger, sink Sink, opts ...Option) *Log {
	if sink == nil {
		sink = NoopSink{}
	}
	l := &Log{
		log:     log.WithName("evidencelog"),
		sink:    sink,
		now:     time.Now,
		streams: make(map[string]*stream),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) streamFor(streamID string) *stream {
	l.mu.RLock()
	s, ok := l.streams[streamID]
	l.mu.RUnlock()
	if ok {
		return s
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.streams[streamID]; ok {
		return s
	}
	s = &stream{}
	l.streams[streamID] = s
	return s
}

// Append computes the event's hash, links it to the stream's previous
// event (if any), and attempts to persist it. The event is always
// returned to the caller, even if persistence fails; Persisted reports
// which happened.
func (l *Log) Append(ctx context.Context, streamID, eventType string, data map[string]domain.Value) domain.EvidenceEvent {
	s := l.streamFor(streamID)
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := l.now().UTC().Format(time.RFC3339Nano)
	event := domain.EvidenceEvent{
		EventType: eventType,
		Timestamp: ts,
		Data:      data,
	}
	event.EventHash = idhash.EvidenceEventHash(event.EventType, event.Timestamp, event.Data)
	if len(s.events) > 0 {
		event.PreviousHash = s.events[len(s.events)-1].EventHash
	}

	if err := l.sink.Persist(ctx, streamID, event); err != nil {
		event.Persisted = false
		l.log.Error(err, "evidence persist failed", "stream", streamID, "eventType", eventType)
		if l.metrics != nil {
			l.metrics.EvidencePersistFailures.WithLabelValues(eventType).Inc()
		}
	} else {
		event.Persisted = true
	}
	if l.metrics != nil {
		l.metrics.EvidenceAppendsTotal.WithLabelValues(eventType).Inc()
	}

	s.events = append(s.events, event)
	if len(s.events) > maxStreamEvents {
		s.events = s.events[len(s.events)-maxStreamEvents:]
	}
	return event
}

// ChainVerification is the result of VerifyChain.
type ChainVerification struct {
	Intact        bool
	FirstBrokenAt int // index into the stream, -1 if intact or stream empty
}

// VerifyChain recomputes every event's hash and checks previous-hash
// linkage, reporting the first broken position.
func (l *Log) VerifyChain(streamID string) ChainVerification {
	s := l.streamFor(streamID)
	s.mu.Lock()
	defer s.mu.Unlock()

	result := ChainVerification{Intact: true, FirstBrokenAt: -1}
	var previous string
	for i, e := range s.events {
		recomputed := idhash.EvidenceEventHash(e.EventType, e.Timestamp, e.Data)
		if recomputed != e.EventHash || (i > 0 && e.PreviousHash != previous) {
			result = ChainVerification{Intact: false, FirstBrokenAt: i}
			break
		}
		previous = e.EventHash
	}
	if l.metrics != nil {
		l.metrics.EvidenceChainVerifications.WithLabelValues(strconv.FormatBool(result.Intact)).Inc()
	}
	return result
}

// Events returns a copy of a stream's recorded events, in append order.
func (l *Log) Events(streamID string) []domain.EvidenceEvent {
	s := l.streamFor(streamID)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EvidenceEvent, len(s.events))
	copy(out, s.events)
	return out
}
