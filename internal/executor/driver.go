package executor

import (
	"context"
	"time"

	"rollback-guard/internal/domain"
)

// StrategyDriver is the outbound strategy driver contract: the external executor of a single step. Real deployments supply
// one driver per named strategy.
type StrategyDriver interface {
	ExecuteStep(ctx context.Context, strategy domain.RollbackStrategy, step Step, input map[string]domain.Value) (StepOutcome, error)
}

// StepOutcome is a single step's result, before the runner turns it
// into a domain.ExecutionStep.
type StepOutcome struct {
	Success bool
	Data    map[string]domain.Value
}

// SimulatedDriver is an in-process StrategyDriver used by default and
// by tests: every step succeeds after a short synthetic delay, so the
// executor's state machine and timeout handling can be exercised
// without a real deployment backend.
type SimulatedDriver struct {
	StepDelay time.Duration
	// Fail, if set, names a step that should report failure when run
	// under the given strategy.
	Fail         string
	FailStrategy domain.RollbackStrategy
}

func (d SimulatedDriver) ExecuteStep(ctx context.Context, strategy domain.RollbackStrategy, step Step, input map[string]domain.Value) (StepOutcome, error) {
	delay := d.StepDelay
	if delay == 0 {
		delay = 10 * time.Millisecond
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return StepOutcome{}, ctx.Err()
	}

	if d.Fail == step.Name && (d.FailStrategy == "" || d.FailStrategy == strategy) {
		return StepOutcome{Success: false}, nil
	}
	return StepOutcome{Success: true}, nil
}
