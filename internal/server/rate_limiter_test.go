package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newRateLimiter(RateLimitConfig{Burst: 3, RefillInterval: 3 * time.Second})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowN(now, 1), "frame %d within burst", i)
	}
	assert.False(t, rl.AllowN(now, 1))

	now = now.Add(500 * time.Millisecond)
	assert.False(t, rl.AllowN(now, 1))

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.AllowN(now, 1))
	assert.False(t, rl.AllowN(now, 1))

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowN(now, 1))
	}
	assert.False(t, rl.AllowN(now, 1), "refill is capped at burst")
}

func TestRateLimiterDefaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := newRateLimiter(RateLimitConfig{})

	assert.Equal(t, 1, rl.Burst())
	assert.True(t, rl.AllowN(now, 1))
	assert.False(t, rl.AllowN(now, 1))
	assert.True(t, rl.AllowN(now.Add(time.Second), 1))
}
