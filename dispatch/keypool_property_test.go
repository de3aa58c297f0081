package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/openrelay/gateway/store"
)

func genAPIKeys(rt *rapid.T) []store.APIKey {
	n := rapid.IntRange(1, 12).Draw(rt, "n")
	keys := make([]store.APIKey, n)
	for i := range keys {
		keys[i] = store.APIKey{
			ID:  uint(i + 1),
			Key: rapid.StringMatching(`[a-z0-9]{8,16}`).Draw(rt, "key"),
		}
	}
	return keys
}

func keyIDs(keys []store.APIKey) []uint {
	ids := make([]uint, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	return ids
}

// Order must never drop, duplicate, or invent a key regardless of strategy.
func TestProperty_KeyPool_OrderIsAPermutation(t *testing.T) {
	strategies := []Strategy{StrategyFirstAvailable, StrategyRoundRobin, StrategyRandom}

	rapid.Check(t, func(rt *rapid.T) {
		strategy := strategies[rapid.IntRange(0, len(strategies)-1).Draw(rt, "strategy")]
		keys := genAPIKeys(rt)
		calls := rapid.IntRange(1, 8).Draw(rt, "calls")

		pool := NewKeyPool(strategy)
		for i := 0; i < calls; i++ {
			ordered := pool.Order(keys)
			assert.Len(t, ordered, len(keys))
			assert.ElementsMatch(t, keyIDs(keys), keyIDs(ordered))
		}
	})
}

// FirstAvailable always tries the same key first, every call.
func TestProperty_KeyPool_FirstAvailableIsStable(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := genAPIKeys(rt)
		pool := NewKeyPool(StrategyFirstAvailable)

		first := pool.Order(keys)[0].ID
		calls := rapid.IntRange(1, 5).Draw(rt, "calls")
		for i := 0; i < calls; i++ {
			assert.Equal(t, first, pool.Order(keys)[0].ID)
		}
	})
}

// RoundRobin advances its first pick by exactly one position per call,
// wrapping modulo the number of keys.
func TestProperty_KeyPool_RoundRobinAdvances(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		keys := genAPIKeys(rt)
		pool := NewKeyPool(StrategyRoundRobin)

		seen := make(map[uint]bool, len(keys))
		for i := 0; i < len(keys); i++ {
			seen[pool.Order(keys)[0].ID] = true
		}
		assert.Len(t, seen, len(keys), "round robin must cycle through every key within len(keys) calls")
	})
}
