package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/openrelay/gateway/api"
	"github.com/openrelay/gateway/internal/ctxkeys"
	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// TokenHandler serves the client-facing self-service endpoints:
// balance and recent usage for the bearer token the request authenticated
// with.
type TokenHandler struct {
	tokens store.TokenStore
	logs   store.RequestLogStore
	logger *zap.Logger
}

// NewTokenHandler builds a TokenHandler over the token and request-log
// stores.
func NewTokenHandler(tokens store.TokenStore, logs store.RequestLogStore, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logs: logs, logger: logger}
}

// HandleBalance implements GET /v1/token/balance.
func (h *TokenHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	clientToken, ok := ctxkeys.ClientToken(r.Context())
	if !ok {
		WriteErrorf(w, types.ErrUnauthorized, "missing bearer token", h.logger)
		return
	}

	t, err := h.tokens.GetToken(r.Context(), clientToken)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load token").WithCause(err), h.logger)
		return
	}
	if t == nil {
		WriteErrorf(w, types.ErrUnauthorized, "unknown token", h.logger)
		return
	}

	resp := api.TokenBalanceResponse{AmountSpent: t.AmountSpent, MaxAmount: t.MaxAmount}
	if t.MaxAmount != nil {
		remaining := *t.MaxAmount - t.AmountSpent
		if remaining < 0 {
			remaining = 0
		}
		resp.Remaining = &remaining
	}

	WriteJSON(w, http.StatusOK, resp)
}

// HandleUsage implements GET /v1/token/usage?limit=N, N in [1, 1000],
// defaulting to 100, returned oldest first ("newest last").
func (h *TokenHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	clientToken, ok := ctxkeys.ClientToken(r.Context())
	if !ok {
		WriteErrorf(w, types.ErrUnauthorized, "missing bearer token", h.logger)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			WriteErrorf(w, types.ErrBadRequest, "limit must be an integer in [1, 1000]", h.logger)
			return
		}
		limit = n
	}

	logs, err := h.logs.RecentLogs(r.Context(), clientToken, limit)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load usage log").WithCause(err), h.logger)
		return
	}

	out := make([]api.UsageLogEntry, len(logs))
	for i, l := range logs {
		out[i] = api.UsageLogEntry{
			Timestamp:        l.Timestamp,
			Model:            l.Model,
			Provider:         l.Provider,
			StatusCode:       l.StatusCode,
			PromptTokens:     l.PromptTokens,
			CompletionTokens: l.CompletionTokens,
			TotalTokens:      l.TotalTokens,
		}
	}

	WriteJSON(w, http.StatusOK, out)
}
