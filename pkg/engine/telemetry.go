package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/inferd/pkg/engine"

// instruments holds the engine's otel instruments. A nil field is skipped.
type instruments struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	ops, err := meter.Int64Counter(
		"inferd.engine.operations",
		metric.WithDescription("Engine operations by name and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	dur, err := meter.Float64Histogram(
		"inferd.engine.operation.duration",
		metric.WithDescription("Engine operation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}
	return &instruments{operations: ops, duration: dur}, nil
}

// op is one traced engine operation.
type op struct {
	name  string
	span  trace.Span
	start time.Time
	inst  *instruments
}

// startOp opens a span named engine.<name> tagged with the agent id.
func (e *Engine) startOp(ctx context.Context, name, agentID string, attrs ...attribute.KeyValue) (context.Context, *op) {
	attrs = append(attrs, attribute.String("agent.id", agentID))
	ctx, span := e.tracer.Start(ctx, "engine."+name, trace.WithAttributes(attrs...))
	return ctx, &op{name: name, span: span, start: time.Now(), inst: e.inst}
}

// end records err on the span and the outcome metrics, then ends the span.
func (o *op) end(ctx context.Context, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", o.name),
		attribute.String("outcome", outcome),
	)
	if o.inst != nil {
		o.inst.operations.Add(ctx, 1, attrs)
		o.inst.duration.Record(ctx, time.Since(o.start).Seconds(), attrs)
	}
	o.span.End()
}
