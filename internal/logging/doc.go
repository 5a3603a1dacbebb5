// Package logging wraps zap for inferd.
//
// A Logger writes JSON or console output to stdout or stderr, optionally
// bridged to an OpenTelemetry LoggerProvider through otelzap. Entries below
// error level are sampled; errors are never dropped.
//
// Observation free text and resolution notes are player content. The
// redacting encoder replaces them (and credential-like fields) with a
// length marker unless redaction is disabled.
//
// Context-aware methods add correlation fields pulled from the context:
//
//	ctx = logging.WithAgentID(ctx, "agent-7")
//	ctx = logging.WithRequestID(ctx, reqID)
//	logger.Info(ctx, "observation applied", zap.String("target", id))
//
// yields trace_id, span_id, agent.id and request.id alongside the call-site
// fields. Domain packages take a plain *zap.Logger; use Underlying to hand
// one over.
package logging
