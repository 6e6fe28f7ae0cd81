package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetConfigForPathMatchesParameterizedRoutes(t *testing.T) {
	mgr := NewRateLimitConfigManager()

	exact := mgr.GetConfigForPath("/v1/calls")
	assert.Equal(t, 60, exact.Requests)

	parameterized := mgr.GetConfigForPath("/v1/calls/8f2c7d1e-0000-0000-0000-000000000000")
	assert.Equal(t, 60, parameterized.Requests)

	attachments := mgr.GetConfigForPath("/v1/consultations/abc/attachments")
	assert.Equal(t, 20, attachments.Requests)

	unknown := mgr.GetConfigForPath("/v1/something-else")
	assert.Equal(t, 100, unknown.Requests)
}

func TestInMemoryWindowCountsAndResets(t *testing.T) {
	rl := &AdvancedRateLimiter{mem: make(map[string]*memoryWindow)}

	for i := 0; i < 3; i++ {
		allowed, _, _ := rl.checkInMemory("user:a", 3, time.Minute)
		assert.True(t, allowed)
	}

	allowed, remaining, _ := rl.checkInMemory("user:a", 3, time.Minute)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	// A different identifier gets its own window
	allowed, _, _ = rl.checkInMemory("user:b", 3, time.Minute)
	assert.True(t, allowed)

	// An expired window starts over
	rl.mem["user:a"].windowStart = time.Now().Add(-2 * time.Minute).Unix()
	allowed, remaining, _ = rl.checkInMemory("user:a", 3, time.Minute)
	assert.True(t, allowed)
	assert.Equal(t, 2, remaining)
}
