package regression

import (
	"math"
	"testing"

	"rollback-guard/internal/domain"
)

func buildBaselineAndWindow(values []float64) (domain.PerformanceBaseline, []float64) {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	stddev := 0.0
	if len(values) > 1 {
		stddev = math.Sqrt(sumSq / float64(len(values)-1))
	}
	return domain.PerformanceBaseline{
		Mean:   mean,
		StdDev: stddev,
		P95:    mean + 2*stddev,
		P99:    mean + 3*stddev,
	}, values
}

func flatWindow(value float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = value
	}
	return out
}

func TestDetectNoRegressionAtBaselineMean(t *testing.T) {
	window := flatWindow(100, 30)
	baseline, _ := buildBaselineAndWindow(window)
	baseline.StdDev = 5
	baseline.P95 = 110
	baseline.P99 = 120

	result := Detect(DefaultConfig(), "api_latency_ms", baseline, window, 100)
	if result.IsRegression {
		t.Fatalf("expected no regression when current equals baseline mean, got %+v", result)
	}
}

func TestDetectIsIdempotent(t *testing.T) {
	window := flatWindow(100, 30)
	baseline, _ := buildBaselineAndWindow(window)
	baseline.StdDev = 5
	baseline.P95 = 110
	baseline.P99 = 120

	first := Detect(DefaultConfig(), "api_latency_ms", baseline, window, 250)
	second := Detect(DefaultConfig(), "api_latency_ms", baseline, window, 250)
	if first.IsRegression != second.IsRegression || first.Severity != second.Severity {
		t.Fatalf("expected idempotent classification, got %+v then %+v", first, second)
	}
	if !first.IsRegression {
		t.Fatalf("expected a large spike in a latency metric to be flagged a regression")
	}
}

func TestDetectErrorMetricEscalatesToCritical(t *testing.T) {
	window := flatWindow(1, 30)
	baseline, _ := buildBaselineAndWindow(window)
	baseline.StdDev = 0.5
	baseline.P95 = 3
	baseline.P99 = 4

	result := Detect(DefaultConfig(), "error_rate_percent", baseline, window, 50)
	if result.Severity != domain.SeverityCritical {
		t.Fatalf("expected CRITICAL severity for a p99 breach on an error metric, got %v", result.Severity)
	}
}
