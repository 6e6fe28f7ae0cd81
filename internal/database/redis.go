package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings for presence, device tokens,
// rate limiting and the cross-instance signaling bridge.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// RedisClient wraps go-redis with degraded-mode support. When Redis is
// unreachable the Safe* methods return errors immediately instead of
// blocking callers; signaling keeps working single-instance and features
// backed purely by Redis (presence, rate limits) shed load.
type RedisClient struct {
	Client *redis.Client

	stateMu  sync.RWMutex
	degraded bool

	checkMu sync.Mutex
	metrics *redisHealthMetrics
}

type redisHealthMetrics struct {
	degraded prometheus.Gauge
	checks   prometheus.Counter
}

var (
	healthMetrics     *redisHealthMetrics
	healthMetricsOnce sync.Once
)

// InitRedisMetrics registers the Redis health metrics. Call once from main
// before creating clients.
func InitRedisMetrics() {
	healthMetricsOnce.Do(func() {
		healthMetrics = &redisHealthMetrics{
			degraded: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "redis_degraded_mode",
				Help: "Whether Redis is in degraded mode (1 = degraded, 0 = healthy)",
			}),
			checks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "redis_health_check_total",
				Help: "Total number of Redis health checks performed",
			}),
		}
		prometheus.MustRegister(healthMetrics.degraded, healthMetrics.checks)
	})
}

// NewRedisDB creates a Redis client from cfg. The connection is lazy; call
// SafePing to verify reachability.
func NewRedisDB(cfg *RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	return &RedisClient{
		Client:  client,
		metrics: healthMetrics,
	}, nil
}

// Close releases the underlying connection pool.
func (r *RedisClient) Close() {
	r.Client.Close()
}

// StartHealthCheck pings Redis on the given interval until ctx is
// cancelled, flipping degraded mode as reachability changes.
func (r *RedisClient) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.HealthCheck(context.Background())
		}
	}
}

// IsDegraded reports whether the client is currently in degraded mode.
func (r *RedisClient) IsDegraded() bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.degraded
}

func (r *RedisClient) setDegraded(degraded bool) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	if r.degraded == degraded {
		return
	}
	r.degraded = degraded
	if r.metrics != nil {
		if degraded {
			r.metrics.degraded.Set(1)
		} else {
			r.metrics.degraded.Set(0)
		}
	}
}

// HealthCheck pings Redis with a short timeout and updates degraded mode.
// Serialized so overlapping checks cannot pile up on a slow server.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.checkMu.Lock()
	defer r.checkMu.Unlock()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(pingCtx).Err(); err != nil {
		r.setDegraded(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	r.setDegraded(false)
	if r.metrics != nil {
		r.metrics.checks.Inc()
	}
	return nil
}

func degradedErr(op string) error {
	return fmt.Errorf("redis is in degraded mode, %s skipped", op)
}

// SafePing pings Redis unless the client is degraded.
func (r *RedisClient) SafePing(ctx context.Context) error {
	if r.IsDegraded() {
		return degradedErr("ping")
	}
	return r.Client.Ping(ctx).Err()
}

// SafeGet is GET with degraded-mode short-circuit.
func (r *RedisClient) SafeGet(ctx context.Context, key string) *redis.StringCmd {
	if r.IsDegraded() {
		return redis.NewStringResult("", degradedErr("get"))
	}
	return r.Client.Get(ctx, key)
}

// SafeSet is SET with degraded-mode short-circuit.
func (r *RedisClient) SafeSet(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if r.IsDegraded() {
		return redis.NewStatusResult("", degradedErr("set"))
	}
	return r.Client.Set(ctx, key, value, expiration)
}

// SafeDel is DEL with degraded-mode short-circuit.
func (r *RedisClient) SafeDel(ctx context.Context, keys ...string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, degradedErr("del"))
	}
	return r.Client.Del(ctx, keys...)
}

// SafeExists is EXISTS with degraded-mode short-circuit.
func (r *RedisClient) SafeExists(ctx context.Context, keys ...string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, degradedErr("exists"))
	}
	return r.Client.Exists(ctx, keys...)
}

// SafeExpire is EXPIRE with degraded-mode short-circuit.
func (r *RedisClient) SafeExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if r.IsDegraded() {
		return redis.NewBoolResult(false, degradedErr("expire"))
	}
	return r.Client.Expire(ctx, key, expiration)
}

// SafeSAdd is SADD with degraded-mode short-circuit. Presence sets and
// device-token sets go through here.
func (r *RedisClient) SafeSAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, degradedErr("sadd"))
	}
	return r.Client.SAdd(ctx, key, members...)
}

// SafeSRem is SREM with degraded-mode short-circuit.
func (r *RedisClient) SafeSRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, degradedErr("srem"))
	}
	return r.Client.SRem(ctx, key, members...)
}

// SafeSMembers is SMEMBERS with degraded-mode short-circuit.
func (r *RedisClient) SafeSMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	if r.IsDegraded() {
		return redis.NewStringSliceResult([]string{}, degradedErr("smembers"))
	}
	return r.Client.SMembers(ctx, key)
}

// SafeSCard is SCARD with degraded-mode short-circuit.
func (r *RedisClient) SafeSCard(ctx context.Context, key string) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, degradedErr("scard"))
	}
	return r.Client.SCard(ctx, key)
}

// SafePublish is PUBLISH with degraded-mode short-circuit. The signaling
// hub falls back to single-instance routing when this errors.
func (r *RedisClient) SafePublish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	if r.IsDegraded() {
		return redis.NewIntResult(0, degradedErr("publish"))
	}
	return r.Client.Publish(ctx, channel, message)
}

// SafeSubscribe is SUBSCRIBE with degraded-mode short-circuit; returns nil
// when degraded, which callers must treat as "no cross-instance feed".
func (r *RedisClient) SafeSubscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if r.IsDegraded() {
		return nil
	}
	return r.Client.Subscribe(ctx, channels...)
}
