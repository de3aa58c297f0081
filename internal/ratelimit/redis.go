package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisOptions configures the Redis connection backing a RedisLimiter. It
// mirrors config.RedisConfig's fields so callers can pass that struct's
// values through without this package importing config.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int

	// HealthCheckInterval, when positive, starts a background ping loop
	// that logs connectivity failures. Zero disables it.
	HealthCheckInterval time.Duration
}

// tokenBucketScript implements the same token-bucket algorithm as
// InProcessLimiter, but atomically inside Redis: refill based on elapsed
// time since the bucket's last touch, then take one token if available.
// KEYS[1] is the bucket's hash key; ARGV is rps, burst, now (unix seconds,
// float), and the key's TTL in seconds.
const tokenBucketScript = `
local key = KEYS[1]
local rps = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "timestamp")
local tokens = tonumber(bucket[1])
local last = tonumber(bucket[2])

if tokens == nil then
  tokens = burst
  last = now
end

local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rps)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "timestamp", now)
redis.call("EXPIRE", key, ttl)

return allowed
`

// RedisLimiter shares one token bucket per key across every gateway
// instance pointed at the same Redis database, using tokenBucketScript for
// atomicity under concurrent replicas.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	rps    float64
	burst  int
	ttl    time.Duration
	logger *zap.Logger
	done   chan struct{}
}

// NewRedisLimiter dials Redis and verifies connectivity before returning.
func NewRedisLimiter(opts RedisOptions, rps float64, burst int, logger *zap.Logger) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := time.Duration(float64(burst)/rps*float64(time.Second)) + 10*time.Second
	if ttl < time.Minute {
		ttl = time.Minute
	}

	l := &RedisLimiter{
		client: client,
		script: redis.NewScript(tokenBucketScript),
		rps:    rps,
		burst:  burst,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "ratelimit")),
		done:   make(chan struct{}),
	}

	if opts.HealthCheckInterval > 0 {
		go l.healthCheckLoop(opts.HealthCheckInterval)
	}

	logger.Info("redis rate limiter initialized", zap.String("addr", opts.Addr), zap.Float64("rps", rps), zap.Int("burst", burst))
	return l, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	res, err := l.script.Run(ctx, l.client, []string{"ratelimit:" + key}, l.rps, l.burst, now, int(l.ttl.Seconds())).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}

func (l *RedisLimiter) healthCheckLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := l.client.Ping(ctx).Err(); err != nil {
				l.logger.Error("redis rate limiter health check failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (l *RedisLimiter) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return l.client.Close()
}
