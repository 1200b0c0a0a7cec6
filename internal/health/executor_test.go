package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"rollback-guard/internal/baseline"
	"rollback-guard/internal/regression"
)

func TestExecuteConvertsErrorToCritical(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	exec := New(logr.Discard(), store, regression.DefaultConfig(), time.Second)
	_ = exec.Register(ProbeFunc{ProbeName: "db", Fn: func(ctx context.Context) (Result, error) {
		return Result{}, errors.New("connection refused")
	}})

	result, err := exec.Execute(context.Background(), "db")
	if err != nil {
		t.Fatalf("unexpected executor error: %v", err)
	}
	if result.Status != "CRITICAL" {
		t.Fatalf("expected probe error to convert to CRITICAL, got %v", result.Status)
	}
	if result.ErrorMessage == "" {
		t.Fatalf("expected error message to be captured in the result")
	}
}

func TestExecuteTimesOut(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	exec := New(logr.Discard(), store, regression.DefaultConfig(), 10*time.Millisecond)
	_ = exec.Register(ProbeFunc{ProbeName: "slow", Fn: func(ctx context.Context) (Result, error) {
		select {
		case <-time.After(time.Second):
			return Result{Status: "HEALTHY"}, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}})

	result, err := exec.Execute(context.Background(), "slow")
	if err != nil {
		t.Fatalf("unexpected executor error: %v", err)
	}
	if result.Status != "CRITICAL" || result.ErrorMessage != "timeout" {
		t.Fatalf("expected a CRITICAL timeout result, got %+v", result)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	exec := New(logr.Discard(), store, regression.DefaultConfig(), time.Second)
	probe := ProbeFunc{ProbeName: "db", Fn: func(ctx context.Context) (Result, error) { return Result{}, nil }}
	if err := exec.Register(probe); err != nil {
		t.Fatalf("unexpected error on first registration: %v", err)
	}
	if err := exec.Register(probe); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestExecutePhasedRunsGroupsSequentially(t *testing.T) {
	store := baseline.New(baseline.DefaultConfig())
	exec := New(logr.Discard(), store, regression.DefaultConfig(), time.Second)
	var order []string
	mk := func(name string) ProbeFunc {
		return ProbeFunc{ProbeName: name, Fn: func(ctx context.Context) (Result, error) {
			order = append(order, name)
			return Result{Status: "HEALTHY"}, nil
		}}
	}
	_ = exec.Register(mk("infra"))
	_ = exec.Register(mk("app"))

	results := exec.ExecutePhased(context.Background(), [][]string{{"infra"}, {"app"}})
	if len(results) != 2 {
		t.Fatalf("expected both phases to produce results, got %d", len(results))
	}
	if order[0] != "infra" || order[1] != "app" {
		t.Fatalf("expected phases to run in order, got %v", order)
	}
}
