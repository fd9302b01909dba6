package otel

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/RuleForge/internal/port/telemetry"
)

// Sink bridges the telemetry port onto OpenTelemetry. Each gate
// transition lands as an event on the active span and as a counter
// increment keyed by gate and status.
type Sink struct {
	metrics *Metrics
}

var _ telemetry.Sink = (*Sink)(nil)

// NewSink returns a sink recording onto the given instruments.
func NewSink(m *Metrics) *Sink {
	return &Sink{metrics: m}
}

// Emit implements telemetry.Sink.
func (s *Sink) Emit(ctx context.Context, ev telemetry.Event) {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		span.AddEvent(ev.Name, trace.WithAttributes(eventAttributes(ev)...))
	}

	gate := strings.TrimPrefix(ev.Name, "dispatch.")
	s.metrics.GateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("gate", gate),
		attribute.String("status", ev.Status),
	))

	switch gate {
	case "record":
		status, _ := ev.Attrs["status"].(string)
		s.metrics.RecordsWritten.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", status)))
	case "action":
		if ms, ok := ev.Attrs["elapsed_ms"].(int64); ok {
			s.metrics.ActionDuration.Record(ctx, float64(ms)/1000)
		}
	}
}

// eventAttributes flattens the attribute map. Cardinality is bounded
// by the dispatch emitters, which only attach enum-like values.
func eventAttributes(ev telemetry.Event) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(ev.Attrs)+1)
	attrs = append(attrs, attribute.String("status", ev.Status))
	for k, v := range ev.Attrs {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}
