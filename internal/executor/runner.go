package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"rollback-guard/internal/domain"
	"rollback-guard/internal/evidencelog"
	"rollback-guard/internal/notification"
)

// Config controls the runner's overall execution timeout.
type Config struct {
	// ExecutionTimeout bounds the whole run.
	// A run still in progress past this deadline is force-failed with an
	// "execution_timeout" ExecutionError.
	ExecutionTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{ExecutionTimeout: 600 * time.Second}
}

// Runner drives a single RollbackExecution through its strategy's steps,
// enforcing the PENDING -> IN_PROGRESS -> terminal state machine and
// recording every step and error, using Go's explicit-state-plus-
// error-return idiom.
type Runner struct {
	log      logr.Logger
	cfg      Config
	driver   StrategyDriver
	evidence *evidencelog.Log
	notifier notification.Dispatcher
	now      func() time.Time
}

func NewRunner(log logr.Logger, cfg Config, driver StrategyDriver, evidence *evidencelog.Log, notifier notification.Dispatcher) *Runner {
	if driver == nil {
		driver = SimulatedDriver{}
	}
	if notifier == nil {
		notifier = notification.NoopDispatcher{}
	}
	return &Runner{
		log:      log.WithName("executor"),
		cfg:      cfg,
		driver:   driver,
		evidence: evidence,
		notifier: notifier,
		now:      time.Now,
	}
}

// Run executes decision.Urgency's selected strategy for deploymentID to
// completion (or failure, or timeout) and returns the final
// RollbackExecution. The returned execution is always in a terminal
// state.
func (r *Runner) Run(ctx context.Context, deploymentID string, decision domain.RollbackDecision) domain.RollbackExecution {
	return r.RunStrategy(ctx, deploymentID, decision, SelectStrategy(decision.Urgency, decision.ImpactAssessment.ImpactLevel))
}

// RunStrategy is Run with the strategy chosen by the caller, for
// operator-driven rollbacks that bypass the urgency mapping (a direct
// database restore, a canary removal).
func (r *Runner) RunStrategy(ctx context.Context, deploymentID string, decision domain.RollbackDecision, strategy domain.RollbackStrategy) domain.RollbackExecution {
	exec := domain.RollbackExecution{
		ExecutionID:      uuid.NewString(),
		Decision:         decision,
		DeploymentID:     deploymentID,
		RollbackStrategy: strategy,
		Status:           domain.RollbackStatusPending,
		StartTime:        r.now().UTC().Format(time.RFC3339Nano),
	}

	streamID := "rollback:" + exec.ExecutionID
	r.evidence.Append(ctx, streamID, "execution_created", map[string]domain.Value{
		"deploymentId": domain.Str(deploymentID),
		"strategy":     domain.Str(string(strategy)),
		"urgency":      domain.Str(string(decision.Urgency)),
	})

	r.transition(ctx, &exec, streamID, domain.RollbackStatusInProgress)
	r.notify(ctx, notification.LevelWarning, "rollback started",
		fmt.Sprintf("rollback %s started for deployment %s using %s strategy", exec.ExecutionID, deploymentID, strategy), decision)

	deadline := r.now().Add(r.cfg.ExecutionTimeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	def, ok := Strategies[strategy]
	if !ok {
		r.fail(ctx, &exec, streamID, "unknown_strategy", fmt.Sprintf("no step sequence defined for strategy %q", strategy))
		return exec
	}

	finalStatus := domain.RollbackStatusCompleted
stepLoop:
	for _, step := range def.Steps {
		select {
		case <-runCtx.Done():
			r.recordError(ctx, &exec, streamID, "execution_timeout",
				fmt.Sprintf("execution exceeded %s before starting step %q", r.cfg.ExecutionTimeout, step.Name), nil)
			finalStatus = domain.RollbackStatusFailed
			break stepLoop
		default:
		}

		outcome, stepStatus := r.runStep(runCtx, strategy, step, streamID)
		exec.ExecutionSteps = append(exec.ExecutionSteps, outcome)

		// The deadline expiring mid-step fails the execution even when
		// every step recorded so far reported success.
		if runCtx.Err() != nil {
			r.recordError(ctx, &exec, streamID, "execution_timeout",
				fmt.Sprintf("execution exceeded %s during step %q", r.cfg.ExecutionTimeout, step.Name),
				map[string]domain.Value{"step": domain.Str(step.Name)})
			finalStatus = domain.RollbackStatusFailed
			break stepLoop
		}
		if stepStatus == domain.RollbackStatusFailed {
			r.recordError(ctx, &exec, streamID, "step_failed",
				fmt.Sprintf("critical step %q failed", step.Name),
				map[string]domain.Value{"step": domain.Str(step.Name)})
			finalStatus = domain.RollbackStatusFailed
			break stepLoop
		}
	}

	r.transition(ctx, &exec, streamID, finalStatus)
	exec.EndTime = r.now().UTC().Format(time.RFC3339Nano)
	exec.ForensicTimeline = r.evidence.Events(streamID)

	level := notification.LevelInfo
	title := "rollback completed"
	if finalStatus == domain.RollbackStatusFailed {
		level = notification.LevelCritical
		title = "rollback failed"
	}
	r.notify(ctx, level, title,
		fmt.Sprintf("rollback %s for deployment %s ended %s", exec.ExecutionID, deploymentID, finalStatus), decision)

	return exec
}

// runStep executes one step and reports RollbackStatusFailed only when
// the step was Critical and did not succeed; a failed non-critical step
// is recorded as an unsuccessful step (and step_executed event) and the
// execution continues, without an ErrorLog entry.
func (r *Runner) runStep(ctx context.Context, strategy domain.RollbackStrategy, step Step, streamID string) (domain.ExecutionStep, domain.RollbackStatus) {
	start := r.now()
	outcome, err := r.driver.ExecuteStep(ctx, strategy, step, nil)
	duration := r.now().Sub(start).Milliseconds()

	success := err == nil && outcome.Success
	data := map[string]domain.Value{}
	for k, v := range outcome.Data {
		data[k] = v
	}

	r.evidence.Append(ctx, streamID, "step_executed", map[string]domain.Value{
		"step":    domain.Str(step.Name),
		"success": domain.Bool(success),
	})

	execStep := domain.ExecutionStep{
		StepName:   step.Name,
		Timestamp:  r.now().UTC().Format(time.RFC3339Nano),
		Success:    success,
		DurationMS: duration,
		Data:       data,
	}

	if !success && step.Critical {
		return execStep, domain.RollbackStatusFailed
	}
	return execStep, domain.RollbackStatusInProgress
}

func (r *Runner) recordError(ctx context.Context, exec *domain.RollbackExecution, streamID, errType, message string, extra map[string]domain.Value) {
	exec.ErrorLog = append(exec.ErrorLog, domain.ExecutionError{
		ErrorType: errType,
		Message:   message,
		Timestamp: r.now().UTC().Format(time.RFC3339Nano),
		Data:      extra,
	})
	data := map[string]domain.Value{
		"errorType": domain.Str(errType),
		"message":   domain.Str(message),
	}
	for k, v := range extra {
		data[k] = v
	}
	r.evidence.Append(ctx, streamID, "rollback_error_occurred", data)
	r.log.Error(errors.New(message), "rollback execution error", "errorType", errType)
}

func (r *Runner) fail(ctx context.Context, exec *domain.RollbackExecution, streamID, errType, message string) {
	r.recordError(ctx, exec, streamID, errType, message, nil)
	r.transition(ctx, exec, streamID, domain.RollbackStatusFailed)
	exec.EndTime = r.now().UTC().Format(time.RFC3339Nano)
	exec.ForensicTimeline = r.evidence.Events(streamID)
}

func (r *Runner) transition(ctx context.Context, exec *domain.RollbackExecution, streamID string, to domain.RollbackStatus) {
	if !domain.CanTransition(exec.Status, to) {
		r.log.Info("rejected illegal rollback transition", "from", exec.Status, "to", to, "execution", exec.ExecutionID)
		return
	}
	from := exec.Status
	exec.Status = to
	r.evidence.Append(ctx, streamID, "status_transition", map[string]domain.Value{
		"from": domain.Str(string(from)),
		"to":   domain.Str(string(to)),
	})
}

func (r *Runner) notify(ctx context.Context, level notification.Level, title, body string, decision domain.RollbackDecision) {
	notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req := notification.Request{
		Level:         level,
		Title:         title,
		Body:          body,
		AudienceTags:  []string{"rollback", string(decision.Urgency)},
		CorrelationID: decision.DecisionID,
	}
	if err := r.notifier.Dispatch(notifyCtx, req); err != nil {
		r.log.Error(err, "notification dispatch failed", "title", title)
	}
}
