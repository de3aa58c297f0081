package dispatch

import (
	"context"
	"sync"

	"github.com/openrelay/gateway/modelid"
	"github.com/openrelay/gateway/store"
)

// Registry caches providers and their enabled keys in memory, refreshed
// from the store on demand, grounded on llm/apikey_pool.go's LoadKeys
// pattern (load-then-select, rather than a query per selection).
type Registry struct {
	providers store.ProviderStore
	cache     store.ModelCache

	mu       sync.RWMutex
	byName   map[string]*providerEntry
	strategy Strategy
}

type providerEntry struct {
	provider store.Provider
	keys     []store.APIKey
	pool     *KeyPool
}

// NewRegistry builds a Registry over the given stores with a fixed
// key-balancing strategy (configured globally; there is no per-provider
// override).
func NewRegistry(providers store.ProviderStore, cache store.ModelCache, strategy Strategy) *Registry {
	return &Registry{
		providers: providers,
		cache:     cache,
		byName:    make(map[string]*providerEntry),
		strategy:  strategy,
	}
}

// Reload refreshes the in-memory provider/key cache from the store. Call
// on startup and after any admin provider/key mutation.
func (r *Registry) Reload(ctx context.Context) error {
	providers, err := r.providers.ListProviders(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]*providerEntry, len(providers))
	for _, p := range providers {
		keys, err := r.providers.ListAPIKeys(ctx, p.ID)
		if err != nil {
			return err
		}
		enabled := make([]store.APIKey, 0, len(keys))
		for _, k := range keys {
			if !k.Disabled {
				enabled = append(enabled, k)
			}
		}
		existing := r.lookupLocked(p.Name)
		var pool *KeyPool
		if existing != nil {
			pool = existing.pool
		} else {
			pool = NewKeyPool(r.strategy)
		}
		byName[p.Name] = &providerEntry{provider: p, keys: enabled, pool: pool}
	}

	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()
	return nil
}

func (r *Registry) lookupLocked(name string) *providerEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Get returns the cached provider entry by name, or false if unknown.
func (r *Registry) get(name string) (*providerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Candidates returns the providers eligible for parsed:
// the single named provider if parsed carries one, else every provider
// whose cached model catalog contains parsed.UpstreamName.
func (r *Registry) Candidates(ctx context.Context, parsed modelid.Parsed) ([]store.Provider, error) {
	if parsed.HasProvider() {
		e, ok := r.get(parsed.Provider)
		if !ok {
			return nil, nil
		}
		return []store.Provider{e.provider}, nil
	}

	r.mu.RLock()
	all := make([]*providerEntry, 0, len(r.byName))
	for _, e := range r.byName {
		all = append(all, e)
	}
	r.mu.RUnlock()

	var candidates []store.Provider
	for _, e := range all {
		models, err := r.cache.CachedModels(ctx, e.provider.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			if m.ModelID == parsed.UpstreamName {
				candidates = append(candidates, e.provider)
				break
			}
		}
	}
	return candidates, nil
}

// OrderedKeys returns the given provider's enabled keys ordered for
// dispatch attempts (first selection per strategy, then the rest).
func (r *Registry) OrderedKeys(providerName string) ([]store.APIKey, bool) {
	e, ok := r.get(providerName)
	if !ok {
		return nil, false
	}
	return e.pool.Order(e.keys), true
}
