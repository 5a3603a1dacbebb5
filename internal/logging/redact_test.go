package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedactedString(t *testing.T) {
	f := RedactedString("freeform_text", "the player lied")
	assert.Equal(t, "[REDACTED:15]", f.String)
}

func TestRedaction_CallSiteFields(t *testing.T) {
	logger, buf := bufferLogger(t, nil)
	logger.Info(context.Background(), "observation",
		zap.String("freeform_text", "secret plan"),
		zap.String("note", "Bearer abc.def"),
		zap.String("target", "experiment:e1"),
		zap.Int("token", 42),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED:11]", lines[0]["freeform_text"])
	assert.Equal(t, "[REDACTED:pattern]", lines[0]["note"])
	assert.Equal(t, "experiment:e1", lines[0]["target"])
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
}

func TestRedaction_WithFields(t *testing.T) {
	logger, buf := bufferLogger(t, nil)
	logger.With(zap.String("resolution", "gave up at the door")).Info(context.Background(), "resolved")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED:19]", lines[0]["resolution"])
}

func TestRedaction_Disabled(t *testing.T) {
	logger, buf := bufferLogger(t, func(c *Config) { c.Redaction.Enabled = false })
	logger.Info(context.Background(), "observation", zap.String("freeform_text", "visible"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["freeform_text"])
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"["}})
	assert.Error(t, err)
}

func TestRedactingEncoder_Clone(t *testing.T) {
	enc, err := NewRedactingEncoder(newEncoder("json"), NewDefaultConfig().Redaction)
	require.NoError(t, err)
	clone, ok := enc.Clone().(*RedactingEncoder)
	require.True(t, ok)
	assert.True(t, clone.sensitiveKey("TEXT"))
	assert.False(t, clone.sensitiveKey("target"))
}
