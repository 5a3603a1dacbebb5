package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func bufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Level = TraceLevel
	cfg.Sampling.Enabled = false
	cfg.Caller.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	buf := &bytes.Buffer{}
	logger, err := newLogger(cfg, nil, zapcore.AddSync(buf))
	require.NoError(t, err)
	return logger, buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	cfg := NewDefaultConfig()
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	assert.NotNil(t, logger.Underlying())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad format", func(c *Config) { c.Format = "xml" }},
		{"no output", func(c *Config) { c.Output = OutputConfig{} }},
		{"both std streams", func(c *Config) { c.Output.Stderr = true }},
		{"zero tick", func(c *Config) { c.Sampling.Tick = 0 }},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	logger, buf := bufferLogger(t, nil)
	ctx := context.Background()

	logger.Trace(ctx, "t")
	logger.Debug(ctx, "d")
	logger.Info(ctx, "i")
	logger.Warn(ctx, "w")
	logger.Error(ctx, "e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 5)
	levels := make([]string, len(lines))
	for i, l := range lines {
		levels[i] = l["level"].(string)
	}
	assert.Equal(t, []string{"trace", "debug", "info", "warn", "error"}, levels)
	assert.Equal(t, "inferd", lines[0]["service"])
}

func TestLogger_LevelFilter(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) { c.Level = zapcore.WarnLevel })
	ctx := context.Background()
	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "kept", lines[0]["msg"])
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestLogger_ContextFields(t *testing.T) {
	logger, buf := bufferLogger(t, nil)

	ctx := WithAgentID(context.Background(), "agent-7")
	ctx = WithRequestID(ctx, "req-1")
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	logger.Info(ctx, "observation applied", zap.String("target", "experiment:e1"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "agent-7", lines[0]["agent.id"])
	assert.Equal(t, "req-1", lines[0]["request.id"])
	assert.Equal(t, traceID.String(), lines[0]["trace_id"])
	assert.Equal(t, "experiment:e1", lines[0]["target"])
}

func TestLogger_WithAndNamed(t *testing.T) {
	logger, buf := bufferLogger(t, nil)
	child := logger.Named("trust").With(zap.String("component", "heartbeat"))
	child.Info(context.Background(), "credited")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trust", lines[0]["logger"])
	assert.Equal(t, "heartbeat", lines[0]["component"])
}

func TestLogger_SamplingKeepsErrors(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) {
		c.Sampling = SamplingConfig{Enabled: true, Tick: time.Hour, Initial: 1, Thereafter: 0}
	})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		logger.Info(ctx, "same")
		logger.Error(ctx, "boom")
	}

	var infos, errs int
	for _, l := range decodeLines(t, buf) {
		switch l["level"] {
		case "info":
			infos++
		case "error":
			errs++
		}
	}
	assert.Equal(t, 1, infos)
	assert.Equal(t, 5, errs)
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	logger := NewTestLogger()
	ctx := WithLogger(context.Background(), logger.Logger)
	FromContext(ctx).Info(ctx, "hello")
	logger.AssertLogged(t, zapcore.InfoLevel, "hello")
}

func TestWithAgentID_Invalid(t *testing.T) {
	ctx := WithAgentID(context.Background(), "bad id with spaces")
	assert.Empty(t, AgentIDFromContext(ctx))
	assert.Error(t, ValidateID(strings.Repeat("a", maxIDLen+1), "agent id"))
}
