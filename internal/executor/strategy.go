// Package executor implements the Rollback Executor: it runs the
// strategy selected by the Decision Engine as an ordered step
// sequence, recording every outcome into a RollbackExecution behind a
// state-machine guard.
package executor

import "rollback-guard/internal/domain"

// Step is one named, abstract operation within a strategy, delegated
// to a StrategyDriver collaborator. Critical steps abort the execution
// on failure; non-critical steps are recorded and execution continues.
type Step struct {
	Name     string
	Critical bool
}

// StrategyDefinition is an ordered list of steps.
type StrategyDefinition struct {
	Strategy domain.RollbackStrategy
	Steps    []Step
}

// Strategies enumerates the five named rollback plans. full_stack's
// steps are the concatenation of blue_green, database, and a final
// notify step.
var Strategies = map[domain.RollbackStrategy]StrategyDefinition{
	domain.StrategyRolling: {
		Strategy: domain.StrategyRolling,
		Steps: []Step{
			{Name: "identify-previous-version"},
			{Name: "issue-rollback"},
			{Name: "wait-for-rollout"},
			{Name: "verify-health"},
		},
	},
	domain.StrategyBlueGreen: {
		Strategy: domain.StrategyBlueGreen,
		Steps: []Step{
			{Name: "identify-environments"},
			{Name: "switch-traffic"},
			{Name: "verify-traffic-switch"},
		},
	},
	domain.StrategyCanary: {
		Strategy: domain.StrategyCanary,
		Steps: []Step{
			{Name: "remove-canary"},
			{Name: "restore-stable-traffic"},
		},
	},
	domain.StrategyDatabase: {
		Strategy: domain.StrategyDatabase,
		Steps: []Step{
			{Name: "create-backup", Critical: true},
			{Name: "apply-rollback-script", Critical: true},
			{Name: "verify-integrity", Critical: true},
		},
	},
	domain.StrategyFullStack: {
		Strategy: domain.StrategyFullStack,
		Steps: []Step{
			{Name: "identify-environments"},
			{Name: "switch-traffic"},
			{Name: "verify-traffic-switch"},
			{Name: "create-backup", Critical: true},
			{Name: "apply-rollback-script", Critical: true},
			{Name: "verify-integrity", Critical: true},
			{Name: "notify-external-services"},
		},
	},
}

// SelectStrategy maps urgency and impact level to a rollback strategy.
func SelectStrategy(urgency domain.RollbackUrgency, impactLevel domain.BusinessImpactLevel) domain.RollbackStrategy {
	switch {
	case urgency == domain.UrgencyEmergency && impactLevel == domain.ImpactCatastrophic:
		return domain.StrategyFullStack
	case urgency == domain.UrgencyEmergency || urgency == domain.UrgencyImmediate:
		return domain.StrategyBlueGreen
	case urgency == domain.UrgencyUrgent:
		return domain.StrategyBlueGreen
	default:
		return domain.StrategyRolling
	}
}
