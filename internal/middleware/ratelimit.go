package middleware

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"medconnect-backend/internal/database"
	"medconnect-backend/pkg/env"
	"medconnect-backend/pkg/metrics"
)

// RateLimitConfig holds the per-endpoint request budget.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// RateLimitConfigManager resolves the rate limit budget for a request path.
type RateLimitConfigManager struct {
	configs map[string]RateLimitConfig
}

// NewRateLimitConfigManager builds the per-endpoint budgets. Overridable
// via environment:
// - RATELIMIT_CALLS: requests/min for /v1/calls (default 60)
// - RATELIMIT_CONSULTATIONS: requests/min for /v1/consultations (default 30)
// - RATELIMIT_ATTACHMENTS: requests/min for attachment URL issuance (default 20)
// - RATELIMIT_PUSH_TOKENS: requests/min for /v1/push/tokens (default 10)
// - RATELIMIT_DEFAULT: requests/min for everything else (default 100)
func NewRateLimitConfigManager() *RateLimitConfigManager {
	return &RateLimitConfigManager{
		configs: map[string]RateLimitConfig{
			// Call history endpoints
			"/v1/calls": {
				Requests: env.GetInt("RATELIMIT_CALLS", 60),
				Window:   time.Minute,
			},
			"/v1/calls/:id": {
				Requests: env.GetInt("RATELIMIT_CALLS", 60),
				Window:   time.Minute,
			},

			// Consultation record endpoints
			"/v1/consultations": {
				Requests: env.GetInt("RATELIMIT_CONSULTATIONS", 30),
				Window:   time.Minute,
			},
			"/v1/consultations/:id": {
				Requests: env.GetInt("RATELIMIT_CONSULTATIONS", 30),
				Window:   time.Minute,
			},

			// Attachment presigned URLs are the most expensive to abuse
			"/v1/consultations/attachments": {
				Requests: env.GetInt("RATELIMIT_ATTACHMENTS", 20),
				Window:   time.Minute,
			},
			"/v1/consultations/:id/attachments": {
				Requests: env.GetInt("RATELIMIT_ATTACHMENTS", 20),
				Window:   time.Minute,
			},

			// Push token registration
			"/v1/push/tokens": {
				Requests: env.GetInt("RATELIMIT_PUSH_TOKENS", 10),
				Window:   time.Minute,
			},
		},
	}
}

// GetConfigForPath resolves the budget for a concrete request path, trying
// an exact match first and then the parameterized patterns.
func (m *RateLimitConfigManager) GetConfigForPath(path string) RateLimitConfig {
	if config, exists := m.configs[path]; exists {
		return config
	}

	for pattern, config := range m.configs {
		if isPathMatch(path, pattern) {
			return config
		}
	}

	return RateLimitConfig{
		Requests: env.GetInt("RATELIMIT_DEFAULT", 100),
		Window:   time.Minute,
	}
}

// isPathMatch reports whether path matches a gin-style pattern, e.g.
// /v1/calls/:id matches /v1/calls/123.
func isPathMatch(path, pattern string) bool {
	pathParts := splitPath(path)
	patternParts := splitPath(pattern)

	if len(patternParts) == 0 || len(pathParts) != len(patternParts) {
		return false
	}

	for i, part := range patternParts {
		if strings.HasPrefix(part, ":") {
			continue
		}
		if pathParts[i] != part {
			return false
		}
	}

	return true
}

func splitPath(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// memoryWindow tracks one identifier's count for the in-memory fallback.
type memoryWindow struct {
	count       int
	windowStart int64
}

// AdvancedRateLimiter enforces per-endpoint budgets keyed by user (when
// authenticated) or client IP, tracked in Redis. When Redis is degraded
// it falls back to a per-instance in-memory window rather than failing
// open entirely.
type AdvancedRateLimiter struct {
	rdb       *database.RedisClient
	configMgr *RateLimitConfigManager

	memMu sync.Mutex
	mem   map[string]*memoryWindow
}

// NewAdvancedRateLimiter creates a rate limiter over the shared Redis
// client.
func NewAdvancedRateLimiter(rdb *database.RedisClient) *AdvancedRateLimiter {
	return &AdvancedRateLimiter{
		rdb:       rdb,
		configMgr: NewRateLimitConfigManager(),
		mem:       make(map[string]*memoryWindow),
	}
}

// Middleware returns the gin middleware enforcing the budgets.
func (rl *AdvancedRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			c.JSON(500, gin.H{"error": "Unable to determine client IP"})
			c.Abort()
			return
		}

		// Rate limit per user when authenticated, per IP otherwise
		var identifier string
		if userID, exists := c.Get("user_id"); exists {
			identifier = fmt.Sprintf("user:%v", userID)
		} else {
			identifier = "ip:" + clientIP
		}

		config := rl.configMgr.GetConfigForPath(c.Request.URL.Path)

		var allowed bool
		var remaining int
		var resetTime int64
		var err error

		if rl.rdb.IsDegraded() {
			allowed, remaining, resetTime = rl.checkInMemory(identifier, config.Requests, config.Window)
		} else {
			allowed, remaining, resetTime, err = rl.checkRedis(c.Request.Context(), identifier, config.Requests, config.Window)
			if err != nil {
				// Redis errored without being marked degraded yet; the
				// in-memory window still bounds abuse on this instance.
				allowed, remaining, resetTime = rl.checkInMemory(identifier, config.Requests, config.Window)
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
		c.Header("X-RateLimit-Window", config.Window.String())

		if !allowed {
			c.JSON(429, gin.H{
				"error":       "Rate limit exceeded",
				"limit":       config.Requests,
				"remaining":   remaining,
				"reset_at":    resetTime,
				"retry_after": config.Window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkRedis tracks the identifier's count in a fixed Redis window.
func (rl *AdvancedRateLimiter) checkRedis(ctx context.Context, identifier string, requests int, window time.Duration) (bool, int, int64, error) {
	now := time.Now().Unix()
	windowStart := now - int64(window.Seconds())

	key := fmt.Sprintf("ratelimit:%s", identifier)
	windowKey := fmt.Sprintf("ratelimit:%s:window", identifier)

	pipe := rl.rdb.Client.Pipeline()
	getWindow := pipe.Get(ctx, windowKey)
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return false, 0, 0, fmt.Errorf("failed to execute rate limit pipeline: %w", err)
	}

	count, err := incr.Result()
	if err != nil && err != redis.Nil {
		return false, 0, 0, fmt.Errorf("failed to get request count: %w", err)
	}

	lastWindowStart, parseErr := strconv.ParseInt(getWindow.Val(), 10, 64)
	if parseErr != nil || lastWindowStart < windowStart {
		// New window
		if err := rl.rdb.Client.Set(ctx, windowKey, windowStart, window).Err(); err != nil {
			return false, 0, 0, fmt.Errorf("failed to set window start: %w", err)
		}
		if err := rl.rdb.Client.Set(ctx, key, 1, window).Err(); err != nil {
			return false, 0, 0, fmt.Errorf("failed to reset request count: %w", err)
		}
		count = 1
		lastWindowStart = windowStart
	}

	remaining := requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return int(count) <= requests, remaining, lastWindowStart + int64(window.Seconds()), nil
}

// checkInMemory bounds the identifier on this instance only; counts are
// not shared across replicas and reset on restart.
func (rl *AdvancedRateLimiter) checkInMemory(identifier string, requests int, window time.Duration) (bool, int, int64) {
	metrics.RecordRedisFallbackHit()

	rl.memMu.Lock()
	defer rl.memMu.Unlock()

	now := time.Now().Unix()
	windowStart := now - int64(window.Seconds())

	w, exists := rl.mem[identifier]
	if !exists || w.windowStart < windowStart {
		rl.mem[identifier] = &memoryWindow{count: 1, windowStart: now}
		return true, requests - 1, now + int64(window.Seconds())
	}

	w.count++
	remaining := requests - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w.count <= requests, remaining, w.windowStart + int64(window.Seconds())
}
