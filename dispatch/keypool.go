package dispatch

import (
	"math/rand"
	"sync"
	"time"

	"github.com/openrelay/gateway/store"
)

// Strategy is a key-balancing strategy: FirstAvailable,
// RoundRobin, or Random. Simplified from a four-way
// round_robin/weighted_random/priority/least_used set, which has no
// referent for per-key weight/priority in this domain's ApiKey model.
type Strategy string

const (
	StrategyFirstAvailable Strategy = "first_available"
	StrategyRoundRobin     Strategy = "round_robin"
	StrategyRandom         Strategy = "random"
)

// KeyPool selects among a provider's enabled API keys under a configured
// strategy, grounded on llm/apikey_pool.go's APIKeyPool (round-robin
// counter with wraparound, random selection), narrowed to the three
// strategies the gateway supports.
type KeyPool struct {
	mu            sync.Mutex
	strategy      Strategy
	roundRobinIdx int
	rng           *rand.Rand
}

// NewKeyPool builds a KeyPool for one provider.
func NewKeyPool(strategy Strategy) *KeyPool {
	if strategy == "" {
		strategy = StrategyFirstAvailable
	}
	return &KeyPool{
		strategy: strategy,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Order returns keys in the order attempts should try them: the first
// selection according to the strategy, followed by the remaining keys in
// their original order (so failover always has a deterministic
// next candidate).
func (p *KeyPool) Order(keys []store.APIKey) []store.APIKey {
	if len(keys) <= 1 {
		return keys
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var first int
	switch p.strategy {
	case StrategyRoundRobin:
		first = p.roundRobinIdx % len(keys)
		p.roundRobinIdx++
	case StrategyRandom:
		first = p.rng.Intn(len(keys))
	default: // StrategyFirstAvailable
		first = 0
	}

	ordered := make([]store.APIKey, 0, len(keys))
	ordered = append(ordered, keys[first])
	for i, k := range keys {
		if i != first {
			ordered = append(ordered, k)
		}
	}
	return ordered
}
