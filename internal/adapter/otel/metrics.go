package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ruleforge"

// Metrics holds all RuleForge metric instruments.
type Metrics struct {
	GateTransitions metric.Int64Counter
	RecordsWritten  metric.Int64Counter
	ActionDuration  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.GateTransitions, err = meter.Int64Counter("ruleforge.gates.transitions",
		metric.WithDescription("Gate outcomes per dispatch, keyed by gate and status"))
	if err != nil {
		return nil, err
	}

	m.RecordsWritten, err = meter.Int64Counter("ruleforge.records.written",
		metric.WithDescription("Execution records persisted, keyed by terminal status"))
	if err != nil {
		return nil, err
	}

	m.ActionDuration, err = meter.Float64Histogram("ruleforge.action.duration_seconds",
		metric.WithDescription("Action snippet execution time in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
