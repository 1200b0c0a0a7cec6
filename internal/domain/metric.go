package domain

import "github.com/shopspring/decimal"

// BusinessMetric is a single observation produced by a MetricsCollector.
// Hash is computed once at construction from Name/Value/Timestamp/Source.
type BusinessMetric struct {
	Name       string
	Value      decimal.Decimal
	Timestamp  string // RFC3339Nano, UTC
	Currency   string // optional
	Unit       string // optional
	Source     string // "live" | "calculated" | "estimated", optional
	Confidence float64
	Metadata   map[string]Value
	Hash       string
}

// SourceReliability is the static reliability table referenced by the
// impact assessor's confidence calculation.
var SourceReliability = map[string]float64{
	"live":       0.95,
	"calculated": 0.80,
	"estimated":  0.70,
}
