package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTurnLimiter(t *testing.T) {
	t.Run("allows turns under the limits", func(t *testing.T) {
		limiter := NewTurnLimiter(10, 5)

		for i := 0; i < 5; i++ {
			allowed, reason := limiter.Begin()
			assert.True(t, allowed)
			assert.Empty(t, reason)
		}
	})

	t.Run("rejects past the concurrency limit", func(t *testing.T) {
		limiter := NewTurnLimiter(100, 2)
		limiter.Begin()
		limiter.Begin()

		allowed, reason := limiter.Begin()
		assert.False(t, allowed)
		assert.Equal(t, "too many concurrent turns", reason)

		limiter.End()
		allowed, _ = limiter.Begin()
		assert.True(t, allowed)
	})

	t.Run("rejects past the per-minute limit", func(t *testing.T) {
		limiter := NewTurnLimiter(3, 10)
		for i := 0; i < 3; i++ {
			limiter.Begin()
			limiter.End()
		}

		allowed, reason := limiter.Begin()
		assert.False(t, allowed)
		assert.Equal(t, "rate limit exceeded", reason)
	})

	t.Run("window slides", func(t *testing.T) {
		now := time.Now()
		limiter := NewTurnLimiter(2, 10)
		limiter.now = func() time.Time { return now }

		limiter.Begin()
		limiter.End()
		limiter.Begin()
		limiter.End()
		allowed, _ := limiter.Begin()
		assert.False(t, allowed)

		now = now.Add(turnLimiterWindow + time.Second)
		allowed, _ = limiter.Begin()
		assert.True(t, allowed)
	})

	t.Run("defaults", func(t *testing.T) {
		limiter := NewTurnLimiter(0, -1)
		assert.Equal(t, DefaultTurnsPerMinute, limiter.perMinute)
		assert.Equal(t, DefaultConcurrentTurns, limiter.maxConcurrent)
	})

	t.Run("stats", func(t *testing.T) {
		limiter := NewTurnLimiter(10, 10)
		limiter.Begin()
		limiter.Begin()
		limiter.End()
		limiter.End()
		limiter.End()

		started, running := limiter.Stats()
		assert.Equal(t, 2, started)
		assert.Equal(t, 0, running)
	})
}
