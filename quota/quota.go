package quota

import (
	"context"
	"strings"
	"time"

	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// Accountant enforces the pre-check and post-update quota rules against
// an AdminToken (the client-facing credential).
type Accountant struct {
	tokens    store.TokenStore
	providers store.ProviderStore
}

// NewAccountant builds an Accountant over the token and provider stores.
func NewAccountant(tokens store.TokenStore, providers store.ProviderStore) *Accountant {
	return &Accountant{tokens: tokens, providers: providers}
}

// PreCheck validates a client token is usable and, if set, that model is
// among its allowed models. model is the post-redirect, post-prefix-strip
// upstream model name.
func (a *Accountant) PreCheck(ctx context.Context, token, model string) (*store.AdminToken, error) {
	t, err := a.tokens.GetToken(ctx, token)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to load token").WithCause(err)
	}
	if t == nil {
		return nil, types.NewError(types.ErrUnauthorized, "unknown token")
	}

	if reason, ok := usable(t); !ok {
		return nil, types.NewError(types.ErrQuotaExceeded, reason)
	}

	if model != "" && t.AllowedModels != "" {
		allowed := strings.Split(t.AllowedModels, ",")
		if !contains(allowed, model) {
			return nil, types.NewError(types.ErrQuotaExceeded, "model not permitted for this token")
		}
	}

	return t, nil
}

// usable implements the token usability predicate:
// enabled ∧ (expires_at is null ∨ now < expires_at) ∧
// (max_tokens is null ∨ total_tokens_spent < max_tokens) ∧
// (max_amount is null ∨ amount_spent < max_amount).
func usable(t *store.AdminToken) (string, bool) {
	if !t.Enabled {
		return "token disabled", false
	}
	if t.ExpiresAt != nil && !time.Now().Before(*t.ExpiresAt) {
		return "token expired", false
	}
	if t.MaxTokens != nil && t.TotalTokensSpent >= *t.MaxTokens {
		return "token total-token cap reached", false
	}
	if t.MaxAmount != nil && t.AmountSpent >= *t.MaxAmount {
		return "token spend cap reached", false
	}
	return "", true
}

func contains(set []string, want string) bool {
	for _, s := range set {
		if strings.TrimSpace(s) == want {
			return true
		}
	}
	return false
}

// PostUpdate applies the accounting formula after a completed request and
// atomically updates the token's counters.
//
// amount = (prompt*price.PromptPerMillion + completion*price.CompletionPerMillion) / 1e6
// using the (provider, upstreamModel) price row, or 0 if absent. A log
// missing provider or model still gets a RequestLog row (written by the
// caller) but contributes zero to amount_spent here.
func (a *Accountant) PostUpdate(ctx context.Context, token, provider, upstreamModel string, promptTokens, completionTokens, totalTokens int) error {
	amount := 0.0
	if provider != "" && upstreamModel != "" {
		price, err := a.providers.GetModelPrice(ctx, provider, upstreamModel)
		if err != nil {
			return types.NewError(types.ErrStorage, "failed to load model price").WithCause(err)
		}
		if price != nil {
			amount = (float64(promptTokens)*price.PromptPerMillion + float64(completionTokens)*price.CompletionPerMillion) / 1_000_000
		}
	}

	if err := a.tokens.ApplyUsage(ctx, token, promptTokens, completionTokens, totalTokens, amount); err != nil {
		return types.NewError(types.ErrStorage, "failed to apply usage").WithCause(err)
	}
	return nil
}
