package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	// Allow reports whether a request for key is within its rate limit. It
	// never blocks.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases any background goroutines or connections held by the
	// limiter.
	Close() error
}

// InProcessLimiter holds one token bucket per key in memory. It is the
// fallback used when no Redis backing store is configured.
type InProcessLimiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
	done     chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInProcessLimiter creates an InProcessLimiter allowing rps requests per
// second per key, with bursts up to burst. A background goroutine evicts
// keys idle for more than 3 minutes; call Close to stop it.
func NewInProcessLimiter(rps float64, burst int) *InProcessLimiter {
	l := &InProcessLimiter{
		rps:      rps,
		burst:    burst,
		visitors: make(map[string]*visitor),
		done:     make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

func (l *InProcessLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	allowed := v.limiter.Allow()
	l.mu.Unlock()
	return allowed, nil
}

func (l *InProcessLimiter) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			for k, v := range l.visitors {
				if time.Since(v.lastSeen) > 3*time.Minute {
					delete(l.visitors, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *InProcessLimiter) Close() error {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return nil
}
