package evidencelog

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"

	"rollback-guard/internal/domain"
)

func TestAppendChainsEvents(t *testing.T) {
	l := New(logr.Discard(), nil)
	ctx := context.Background()

	first := l.Append(ctx, "stream-a", "decision_made", map[string]domain.Value{"x": domain.Num(1)})
	second := l.Append(ctx, "stream-a", "rollback_started", map[string]domain.Value{"x": domain.Num(2)})

	if first.PreviousHash != "" {
		t.Fatalf("expected first event to have no previous hash, got %q", first.PreviousHash)
	}
	if second.PreviousHash != first.EventHash {
		t.Fatalf("expected second event's previous hash to equal first event's hash")
	}
	if !first.Persisted || !second.Persisted {
		t.Fatalf("expected both events to persist with the default noop sink")
	}
}

func TestVerifyChainDetectsTamperedEvent(t *testing.T) {
	l := New(logr.Discard(), nil)
	ctx := context.Background()

	l.Append(ctx, "stream-b", "decision_made", map[string]domain.Value{"n": domain.Num(1)})
	l.Append(ctx, "stream-b", "decision_made", map[string]domain.Value{"n": domain.Num(2)})
	l.Append(ctx, "stream-b", "decision_made", map[string]domain.Value{"n": domain.Num(3)})

	verification := l.VerifyChain("stream-b")
	if !verification.Intact {
		t.Fatalf("expected untouched chain to be intact")
	}

	events := l.streamFor("stream-b")
	events.events[1].Data["n"] = domain.Num(999)

	verification = l.VerifyChain("stream-b")
	if verification.Intact {
		t.Fatalf("expected tampered chain to be reported broken")
	}
	if verification.FirstBrokenAt != 1 {
		t.Fatalf("expected break at index 1, got %d", verification.FirstBrokenAt)
	}
}

type failingSink struct{}

func (failingSink) Persist(context.Context, string, domain.EvidenceEvent) error {
	return errors.New("sink unavailable")
}

func TestAppendSurvivesSinkFailure(t *testing.T) {
	l := New(logr.Discard(), failingSink{})
	event := l.Append(context.Background(), "stream-c", "evidence_persist_failed", nil)
	if event.Persisted {
		t.Fatalf("expected Persisted=false when the sink errors")
	}
	if event.EventHash == "" {
		t.Fatalf("expected the event to still carry a hash even when unpersisted")
	}
}
