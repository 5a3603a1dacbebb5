package trust

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// InstrumentationName is the name used for OTEL instrumentation.
	InstrumentationName = "github.com/fyrsmithlabs/inferd/internal/trust"
)

// Metrics provides OpenTelemetry metrics for the trust engine.
type Metrics struct {
	deltasTotal     metric.Int64Counter
	layerUpTotal    metric.Int64Counter
	heartbeatsTotal metric.Int64Counter
	deltaSize       metric.Float64Histogram

	initialized bool
}

// NewMetrics creates trust metrics. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.deltasTotal, err = meter.Int64Counter(
		"trust.deltas.total",
		metric.WithDescription("Total number of trust deltas applied"),
		metric.WithUnit("{delta}"),
	)
	if err != nil {
		return nil, err
	}

	m.layerUpTotal, err = meter.Int64Counter(
		"trust.layer.crossed.total",
		metric.WithDescription("Total number of upward layer crossings"),
		metric.WithUnit("{crossing}"),
	)
	if err != nil {
		return nil, err
	}

	m.heartbeatsTotal, err = meter.Int64Counter(
		"trust.heartbeats.total",
		metric.WithDescription("Total number of heartbeats by result"),
		metric.WithUnit("{heartbeat}"),
	)
	if err != nil {
		return nil, err
	}

	m.deltaSize, err = meter.Float64Histogram(
		"trust.delta.size",
		metric.WithDescription("Absolute size of applied trust deltas"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordDelta records an applied delta and any layer crossing.
// Agent ids are left out to keep cardinality bounded.
func (m *Metrics) RecordDelta(ctx context.Context, reason string, delta float64, fromLayer, toLayer int) {
	if m == nil || !m.initialized {
		return
	}
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.deltasTotal.Add(ctx, 1, attrs)
	if delta < 0 {
		delta = -delta
	}
	m.deltaSize.Record(ctx, delta, attrs)
	if toLayer > fromLayer {
		m.layerUpTotal.Add(ctx, 1, metric.WithAttributes(attribute.Int("layer", toLayer)))
	}
}

// RecordHeartbeat records a heartbeat outcome (seeded, credited, gated).
func (m *Metrics) RecordHeartbeat(ctx context.Context, result string) {
	if m == nil || !m.initialized {
		return
	}
	m.heartbeatsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
