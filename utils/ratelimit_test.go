package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.Equal(t, 0, rl.GetRemaining("10.0.0.1"))

	// Другой ключ учитывается отдельно
	assert.True(t, rl.Allow("10.0.0.2"))

	// После окна запросы снова разрешены
	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.Equal(t, 1, rl.GetRemaining("10.0.0.1"))
}

func TestRateLimiter_ResetTimeAndCleanup(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	assert.Equal(t, start, rl.GetResetTime("k"))
	rl.Allow("k")
	assert.Equal(t, start.Add(time.Minute), rl.GetResetTime("k"))

	now = start.Add(2 * time.Minute)
	rl.Allow("other")
	assert.Equal(t, 1, rl.Cleanup())
	assert.Equal(t, 1, rl.GetRemaining("k"))
}
