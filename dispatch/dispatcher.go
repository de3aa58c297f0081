package dispatch

import (
	"context"

	"github.com/openrelay/gateway/modelid"
	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// Attempt is one (provider, api key) pair the caller should try, in
// failover order.
type Attempt struct {
	Provider store.Provider
	APIKey   string
}

// Dispatcher implements the provider-and-key selection algorithm:
// redirect -> parse -> candidate providers -> balanced key order ->
// bounded failover attempt list.
type Dispatcher struct {
	registry  *Registry
	redirects *modelid.Redirects
}

// NewDispatcher builds a Dispatcher over a Registry and a redirect table.
func NewDispatcher(registry *Registry, redirects *modelid.Redirects) *Dispatcher {
	return &Dispatcher{registry: registry, redirects: redirects}
}

// maxAttempts bounds failover attempts per request to
// min(3, keys.len()) attempts total.
const maxAttempts = 3

// Select resolves requestedModel into a parsed model id and the ordered
// list of (provider, key) attempts to try, most specific error first:
// NoKey > ModelNotSupported > NoProvider.
func (d *Dispatcher) Select(ctx context.Context, requestedModel string) (modelid.Parsed, []Attempt, error) {
	redirected := requestedModel
	if d.redirects != nil {
		redirected = d.redirects.Apply(requestedModel)
	}
	parsed := modelid.Parse(redirected)

	candidates, err := d.registry.Candidates(ctx, parsed)
	if err != nil {
		return parsed, nil, types.NewError(types.ErrStorage, "failed to list candidate providers").WithCause(err)
	}

	if len(candidates) == 0 {
		if parsed.HasProvider() {
			return parsed, nil, types.NewError(types.ErrNoProvider, "unknown provider: "+parsed.Provider)
		}
		return parsed, nil, types.NewError(types.ErrModelNotSupported, "no provider serves model: "+parsed.UpstreamName)
	}

	var attempts []Attempt
	for _, p := range candidates {
		keys, ok := d.registry.OrderedKeys(p.Name)
		if !ok || len(keys) == 0 {
			continue
		}
		n := len(keys)
		if n > maxAttempts {
			n = maxAttempts
		}
		for i := 0; i < n; i++ {
			attempts = append(attempts, Attempt{Provider: p, APIKey: keys[i].Key})
		}
		break // take the first successful provider's keys
	}

	if len(attempts) == 0 {
		return parsed, nil, types.NewError(types.ErrNoKey, "no enabled API key for any candidate provider")
	}

	if len(attempts) > maxAttempts {
		attempts = attempts[:maxAttempts]
	}

	return parsed, attempts, nil
}
