package domain

import "github.com/shopspring/decimal"

// RollbackDecision is the Decision Engine's verdict for one impact
// assessment: whether to roll back, how urgently, and why.
type RollbackDecision struct {
	DecisionID          string
	Timestamp           string
	RollbackRecommended bool
	Urgency             RollbackUrgency
	ImpactAssessment    BusinessImpactAssessment
	Justification       string
	Evidence            map[string]Value
	DecisionMaker       string
	SuppressedReason    string // set when RollbackRecommended would be true but policy suppressed it
	ForensicHash        string
}

// ExecutionStep records one completed rollback step.
type ExecutionStep struct {
	StepName   string
	Timestamp  string
	Success    bool
	DurationMS int64
	Data       map[string]Value
}

// ExecutionError records one non-fatal or fatal error encountered
// during a rollback execution.
type ExecutionError struct {
	ErrorType string
	Message   string
	Timestamp string
	Data      map[string]Value
}

// RollbackExecution is the mutable record of a running or completed
// rollback. Status transitions are restricted to CanTransition.
type RollbackExecution struct {
	ExecutionID      string
	Decision         RollbackDecision
	DeploymentID     string
	RollbackStrategy RollbackStrategy
	Status           RollbackStatus
	StartTime        string
	EndTime          string
	ExecutionSteps   []ExecutionStep
	ErrorLog         []ExecutionError
	ForensicTimeline []EvidenceEvent
}

// EstimatedLoss is a convenience accessor used by the post-rollback
// analyzer when computing variance against the actual loss.
func (r *RollbackExecution) EstimatedLoss() decimal.Decimal {
	return r.Decision.ImpactAssessment.EstimatedLoss
}
