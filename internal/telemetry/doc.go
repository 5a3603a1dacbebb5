// Package telemetry sets up OpenTelemetry tracing and metrics for inferd.
//
// Exporters speak OTLP over gRPC (default) or HTTP/protobuf. When telemetry
// is disabled or a provider fails to start, Tracer and Meter fall back to
// the global no-op providers and the instance reports itself as degraded;
// the engine never fails because of telemetry.
//
// TestTelemetry records spans and metrics in memory for assertions.
package telemetry
