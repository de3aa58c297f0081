// Package ratelimit implements per-key token-bucket rate limiting, either
// held in a single process or shared across gateway instances through
// Redis, grounded on internal/cache's client lifecycle and
// cmd/gateway/middleware.go's original per-IP limiter.
//
// InProcessLimiter keeps one bucket per key in memory and is the right
// choice for a single gateway replica. RedisLimiter stores the same bucket
// state in Redis via an atomic Lua script, so a fleet of replicas behind a
// load balancer share one limit per client instead of each replica
// enforcing its own. Server wiring picks RedisLimiter when
// config.RedisConfig.Addr is set and falls back to InProcessLimiter
// otherwise.
package ratelimit
