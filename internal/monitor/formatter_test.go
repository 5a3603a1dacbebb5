package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/inferd/internal/variable"
)

func TestFormatPercentage(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected string
	}{
		{"zero", 0, "0.0%"},
		{"half", 0.5, "50.0%"},
		{"full", 1, "100.0%"},
		{"fraction", 0.6234, "62.3%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPercentage(tt.ratio))
		})
	}
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "[0.00, 1.00]", FormatInterval(variable.Interval{Lo: 0, Hi: 1}))
	assert.Equal(t, "[0.41, 0.80]", FormatInterval(variable.Interval{Lo: 0.4123, Hi: 0.8}))
}

func TestFormatScore(t *testing.T) {
	assert.Equal(t, "0.310", FormatScore(0.31, 0))
	assert.Equal(t, "0.310 (+0.050)", FormatScore(0.31, 0.05))
	assert.Equal(t, "0.260 (-0.050)", FormatScore(0.26, -0.05))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"negative", -5, "0s"},
		{"seconds", 42, "42s"},
		{"minutes", 300, "5m"},
		{"hours", 8100, "2h 15m"},
		{"exact_hour", 3600, "1h 0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.seconds))
		})
	}
}
