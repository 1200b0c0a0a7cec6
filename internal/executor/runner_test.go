package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/evidencelog"
	"rollback-guard/internal/notification"
)

type capturingDispatcher struct {
	mu       sync.Mutex
	requests []notification.Request
}

func (d *capturingDispatcher) Dispatch(_ context.Context, req notification.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	return nil
}

func (d *capturingDispatcher) captured() []notification.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notification.Request, len(d.requests))
	copy(out, d.requests)
	return out
}

func urgentDecision() domain.RollbackDecision {
	return domain.RollbackDecision{
		DecisionID:          "dec-1",
		Timestamp:           "2026-01-01T00:00:00Z",
		RollbackRecommended: true,
		Urgency:             domain.UrgencyUrgent,
		DecisionMaker:       "automated_system",
		ImpactAssessment: domain.BusinessImpactAssessment{
			AssessmentID:  "a-1",
			ImpactLevel:   domain.ImpactHigh,
			EstimatedLoss: decimal.NewFromInt(10_000),
			TriggerType:   domain.TriggerRevenueLoss,
			Confidence:    0.95,
		},
	}
}

func newTestRunner(cfg Config, driver StrategyDriver, notifier notification.Dispatcher) (*Runner, *evidencelog.Log) {
	evidence := evidencelog.New(logr.Discard(), nil)
	return NewRunner(logr.Discard(), cfg, driver, evidence, notifier), evidence
}

func TestSelectStrategy(t *testing.T) {
	cases := []struct {
		urgency domain.RollbackUrgency
		level   domain.BusinessImpactLevel
		want    domain.RollbackStrategy
	}{
		{domain.UrgencyEmergency, domain.ImpactCatastrophic, domain.StrategyFullStack},
		{domain.UrgencyEmergency, domain.ImpactCritical, domain.StrategyBlueGreen},
		{domain.UrgencyImmediate, domain.ImpactCritical, domain.StrategyBlueGreen},
		{domain.UrgencyUrgent, domain.ImpactHigh, domain.StrategyBlueGreen},
		{domain.UrgencyHigh, domain.ImpactMedium, domain.StrategyRolling},
		{domain.UrgencyLow, domain.ImpactNone, domain.StrategyRolling},
	}
	for _, c := range cases {
		if got := SelectStrategy(c.urgency, c.level); got != c.want {
			t.Fatalf("SelectStrategy(%v, %v) = %v, want %v", c.urgency, c.level, got, c.want)
		}
	}
}

func TestRunBlueGreenCompletesAllSteps(t *testing.T) {
	notifier := &capturingDispatcher{}
	runner, _ := newTestRunner(DefaultConfig(), SimulatedDriver{StepDelay: time.Millisecond}, notifier)

	exec := runner.Run(context.Background(), "dep-1", urgentDecision())

	if exec.RollbackStrategy != domain.StrategyBlueGreen {
		t.Fatalf("expected blue_green strategy for URGENT urgency, got %v", exec.RollbackStrategy)
	}
	if exec.Status != domain.RollbackStatusCompleted {
		t.Fatalf("expected COMPLETED, got %v (errors: %+v)", exec.Status, exec.ErrorLog)
	}
	if len(exec.ExecutionSteps) != 3 {
		t.Fatalf("expected exactly 3 recorded steps, got %d", len(exec.ExecutionSteps))
	}
	for _, s := range exec.ExecutionSteps {
		if !s.Success {
			t.Fatalf("expected every step to succeed, %q did not", s.StepName)
		}
	}
	if len(exec.ForensicTimeline) == 0 {
		t.Fatalf("expected a populated forensic timeline")
	}

	requests := notifier.captured()
	if len(requests) != 2 {
		t.Fatalf("expected a start and a completion notification, got %d", len(requests))
	}
	if requests[0].Level != notification.LevelWarning || requests[1].Level != notification.LevelInfo {
		t.Fatalf("unexpected notification levels: %v then %v", requests[0].Level, requests[1].Level)
	}
}

func TestRunFullStackRecordsAllSteps(t *testing.T) {
	d := urgentDecision()
	d.Urgency = domain.UrgencyEmergency
	d.ImpactAssessment.ImpactLevel = domain.ImpactCatastrophic

	runner, _ := newTestRunner(DefaultConfig(), SimulatedDriver{StepDelay: time.Millisecond}, nil)
	exec := runner.Run(context.Background(), "dep-1", d)

	if exec.RollbackStrategy != domain.StrategyFullStack {
		t.Fatalf("expected full_stack strategy, got %v", exec.RollbackStrategy)
	}
	if exec.Status != domain.RollbackStatusCompleted {
		t.Fatalf("expected COMPLETED, got %v", exec.Status)
	}
	if len(exec.ExecutionSteps) < 6 {
		t.Fatalf("expected at least 6 recorded steps for full_stack, got %d", len(exec.ExecutionSteps))
	}
}

func TestRunCriticalStepFailureStopsExecution(t *testing.T) {
	driver := SimulatedDriver{StepDelay: time.Millisecond, Fail: "apply-rollback-script"}
	runner, evidence := newTestRunner(DefaultConfig(), driver, nil)

	exec := runner.RunStrategy(context.Background(), "dep-1", urgentDecision(), domain.StrategyDatabase)

	if exec.Status != domain.RollbackStatusFailed {
		t.Fatalf("expected FAILED after a critical step failure, got %v", exec.Status)
	}
	if len(exec.ExecutionSteps) != 2 {
		t.Fatalf("expected the remaining step to be skipped, got %d steps", len(exec.ExecutionSteps))
	}
	last := exec.ExecutionSteps[len(exec.ExecutionSteps)-1]
	if last.StepName != "apply-rollback-script" || last.Success {
		t.Fatalf("expected the failed step to be recorded last, got %+v", last)
	}

	found := false
	for _, e := range evidence.Events("rollback:" + exec.ExecutionID) {
		if e.EventType != "rollback_error_occurred" {
			continue
		}
		if step, ok := e.Data["step"].AsString(); ok && step == "apply-rollback-script" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a rollback_error_occurred event referencing the failed step")
	}
}

func TestRunTimeoutFailsExecution(t *testing.T) {
	cfg := Config{ExecutionTimeout: 40 * time.Millisecond}
	driver := SimulatedDriver{StepDelay: 30 * time.Millisecond}
	runner, _ := newTestRunner(cfg, driver, nil)

	exec := runner.Run(context.Background(), "dep-1", domain.RollbackDecision{
		DecisionID: "dec-slow",
		Urgency:    domain.UrgencyHigh,
		ImpactAssessment: domain.BusinessImpactAssessment{
			ImpactLevel:   domain.ImpactMedium,
			EstimatedLoss: decimal.NewFromInt(1_500),
		},
	})

	if exec.RollbackStrategy != domain.StrategyRolling {
		t.Fatalf("expected rolling strategy, got %v", exec.RollbackStrategy)
	}
	if exec.Status != domain.RollbackStatusFailed {
		t.Fatalf("expected FAILED after the execution timeout, got %v", exec.Status)
	}
	timedOut := false
	for _, e := range exec.ErrorLog {
		if e.ErrorType == "execution_timeout" {
			timedOut = true
		}
	}
	if !timedOut {
		t.Fatalf("expected an execution_timeout error, got %+v", exec.ErrorLog)
	}
}

func TestRunStrategyRejectsUnknownStrategy(t *testing.T) {
	runner, _ := newTestRunner(DefaultConfig(), SimulatedDriver{StepDelay: time.Millisecond}, nil)

	exec := runner.RunStrategy(context.Background(), "dep-1", urgentDecision(), domain.RollbackStrategy("bogus"))

	if exec.Status != domain.RollbackStatusFailed {
		t.Fatalf("expected FAILED for an unknown strategy, got %v", exec.Status)
	}
	if len(exec.ErrorLog) == 0 || exec.ErrorLog[0].ErrorType != "unknown_strategy" {
		t.Fatalf("expected an unknown_strategy error, got %+v", exec.ErrorLog)
	}
}

func TestRunStartAndEndTimesBracketSteps(t *testing.T) {
	runner, _ := newTestRunner(DefaultConfig(), SimulatedDriver{StepDelay: time.Millisecond}, nil)
	exec := runner.Run(context.Background(), "dep-1", urgentDecision())

	start, err := time.Parse(time.RFC3339Nano, exec.StartTime)
	if err != nil {
		t.Fatalf("parse start time: %v", err)
	}
	end, err := time.Parse(time.RFC3339Nano, exec.EndTime)
	if err != nil {
		t.Fatalf("parse end time: %v", err)
	}
	for _, s := range exec.ExecutionSteps {
		at, err := time.Parse(time.RFC3339Nano, s.Timestamp)
		if err != nil {
			t.Fatalf("parse step time: %v", err)
		}
		if at.Before(start) || at.After(end) {
			t.Fatalf("step %q at %s falls outside [%s, %s]", s.StepName, s.Timestamp, exec.StartTime, exec.EndTime)
		}
	}
}
