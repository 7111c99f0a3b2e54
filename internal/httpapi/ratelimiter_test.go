package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.CheckLimit("10.0.0.1"), "request %d must pass", i)
	}
	assert.False(t, rl.CheckLimit("10.0.0.1"))
}

func TestRateLimiter_TracksIPsIndependently(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.True(t, rl.CheckLimit("10.0.0.1"))
	assert.False(t, rl.CheckLimit("10.0.0.1"))
	assert.True(t, rl.CheckLimit("10.0.0.2"))
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	rl := NewRateLimiter(1)
	defer rl.Stop()

	assert.Equal(t, 0, rl.GetRetryAfter("10.0.0.1"), "unknown IP has nothing to wait for")

	rl.CheckLimit("10.0.0.1")
	retryAfter := rl.GetRetryAfter("10.0.0.1")
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 60)
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		assert.True(t, rl.CheckLimit("10.0.0.1"))
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Stop()
	rl.Stop()
}
