// Package probes ships concrete Probe implementations: a system
// resource probe, a network reachability probe, and a Kubernetes
// cluster probe. All three are collaborators, not core, but a complete
// repository needs working ones to exercise the Executor end-to-end.
package probes

import (
	"context"
	"runtime"

	"rollback-guard/internal/health"
)

// SystemResourceProbe reports process-level resource pressure: Go
// runtime memory stats and goroutine count stand in for host-level
// CPU/mem/disk sampling.
type SystemResourceProbe struct {
	Component          string
	GoroutineWarnCount int
	GoroutineCritCount int
	HeapWarnBytes      uint64
	HeapCritBytes      uint64
}

func NewSystemResourceProbe(component string) *SystemResourceProbe {
	return &SystemResourceProbe{
		Component:          component,
		GoroutineWarnCount: 500,
		GoroutineCritCount: 2000,
		HeapWarnBytes:      512 * 1024 * 1024,
		HeapCritBytes:      1536 * 1024 * 1024,
	}
}

func (p *SystemResourceProbe) Name() string { return p.Component }

func (p *SystemResourceProbe) Execute(ctx context.Context) (health.Result, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()

	status := "HEALTHY"
	score := 100.0
	switch {
	case goroutines >= p.GoroutineCritCount || mem.HeapAlloc >= p.HeapCritBytes:
		status = "CRITICAL"
		score = 20
	case goroutines >= p.GoroutineWarnCount || mem.HeapAlloc >= p.HeapWarnBytes:
		status = "DEGRADED"
		score = 60
	}

	return health.Result{
		Component: p.Component,
		CheckType: "INFRASTRUCTURE",
		Status:    status,
		Score:     score,
		Metrics: map[string]float64{
			"goroutine_count":  float64(goroutines),
			"heap_alloc_bytes": float64(mem.HeapAlloc),
			"heap_usage_percent": heapUsagePercent(mem.HeapAlloc, p.HeapCritBytes),
		},
	}, nil
}

func heapUsagePercent(current, critical uint64) float64 {
	if critical == 0 {
		return 0
	}
	return float64(current) / float64(critical) * 100
}
