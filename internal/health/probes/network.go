package probes

import (
	"context"
	"net"
	"time"

	"rollback-guard/internal/health"
)

// NetworkReachabilityProbe dials a target address and reports success,
// duration, and failure evidence.
type NetworkReachabilityProbe struct {
	Component string
	Target    string // host:port
	Timeout   time.Duration
}

func NewNetworkReachabilityProbe(component, target string, timeout time.Duration) *NetworkReachabilityProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetworkReachabilityProbe{Component: component, Target: target, Timeout: timeout}
}

func (p *NetworkReachabilityProbe) Name() string { return p.Component }

func (p *NetworkReachabilityProbe) Execute(ctx context.Context) (health.Result, error) {
	dialer := net.Dialer{Timeout: p.Timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", p.Target)
	elapsed := time.Since(start)

	if err != nil {
		return health.Result{
			Component:    p.Component,
			CheckType:    "EXTERNAL_API",
			Status:       "CRITICAL",
			Score:        0,
			ErrorMessage: err.Error(),
			Evidence:     map[string]string{"target": p.Target},
		}, nil
	}
	_ = conn.Close()

	status := "HEALTHY"
	score := 100.0
	if elapsed > p.Timeout/2 {
		status = "DEGRADED"
		score = 70
	}

	return health.Result{
		Component: p.Component,
		CheckType: "EXTERNAL_API",
		Status:    status,
		Score:     score,
		Metrics:   map[string]float64{"connect_time_ms": float64(elapsed.Milliseconds())},
		Evidence:  map[string]string{"target": p.Target},
	}, nil
}
