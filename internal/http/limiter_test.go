package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterStore(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newLimiterStore(1, 2, time.Hour)
	s.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := s.Allow("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "burst request %d", i)
	}
	ok, _ := s.Allow("10.0.0.1")
	assert.False(t, ok, "burst exhausted")

	ok, _ = s.Allow("10.0.0.2")
	assert.True(t, ok, "clients are limited independently")

	now = now.Add(time.Second)
	ok, _ = s.Allow("10.0.0.1")
	assert.True(t, ok, "one token refills per second")

	now = now.Add(2 * time.Hour)
	s.Allow("10.0.0.3")
	assert.Len(t, s.limiters, 1, "limiters are forgotten after the reset interval")
}
