// Package health implements the Health Probe Registry & Executor: a
// name->Probe registry, concurrent execution with
// per-probe timeouts, and feeding of probe duration/score into the
// Baseline Store, by spawning N goroutines and waiting with a
// per-task timeout.
package health

import (
	"context"
	"fmt"
	"time"
)

// Probe is the pluggable contract a health check implements: Execute
// produces the raw material for a HealthCheckResult. Implementations
// must not panic; the Executor converts any panic into a CRITICAL
// result as a last line of defense, but well-behaved probes should
// return an error instead.
type Probe interface {
	Name() string
	Execute(ctx context.Context) (Result, error)
}

// Result is the raw outcome a Probe reports before the executor wraps
// it into a domain.HealthCheckResult with identity/hash fields.
type Result struct {
	Component    string
	CheckType    string
	Status       string
	Score        float64
	Metrics      map[string]float64
	Evidence     map[string]string
	ErrorMessage string
}

// ProbeFunc adapts a plain function to the Probe interface.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) (Result, error)
}

func (p ProbeFunc) Name() string { return p.ProbeName }
func (p ProbeFunc) Execute(ctx context.Context) (Result, error) { return p.Fn(ctx) }

// ErrDuplicateProbe is a fatal configuration error.
type ErrDuplicateProbe struct{ Name string }

func (e ErrDuplicateProbe) Error() string {
	return fmt.Sprintf("health: probe %q already registered", e.Name)
}

// ErrUnknownProbe is returned by Execute for a name never registered.
type ErrUnknownProbe struct{ Name string }

func (e ErrUnknownProbe) Error() string {
	return fmt.Sprintf("health: probe %q is not registered", e.Name)
}

// defaultProbeTimeout is the default for a single probe call.
const defaultProbeTimeout = 30 * time.Second
