package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openrelay/gateway/api"
	"github.com/openrelay/gateway/dispatch"
	"github.com/openrelay/gateway/provider"
	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// AdminHandler serves the operator-facing CRUD surface: client
// tokens and upstream providers/keys. Every provider/key mutation reloads
// the dispatch Registry so the in-memory candidate cache never serves a
// stale view of the store.
type AdminHandler struct {
	tokens    store.TokenStore
	providers store.ProviderStore
	registry  *dispatch.Registry
	logger    *zap.Logger
}

// NewAdminHandler builds an AdminHandler over the token/provider stores and
// the dispatch Registry they keep in sync.
func NewAdminHandler(tokens store.TokenStore, providers store.ProviderStore, registry *dispatch.Registry, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{tokens: tokens, providers: providers, registry: registry, logger: logger}
}

// HandleListTokens implements GET /admin/tokens.
func (h *AdminHandler) HandleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.tokens.ListTokens(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to list tokens").WithCause(err), h.logger)
		return
	}
	out := make([]api.AdminTokenResponse, len(tokens))
	for i, t := range tokens {
		out[i] = tokenToResponse(&t)
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleGetToken implements GET /admin/tokens/:tok.
func (h *AdminHandler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	t, err := h.tokens.GetToken(r.Context(), pathParam(r, "tok"))
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load token").WithCause(err), h.logger)
		return
	}
	if t == nil {
		WriteErrorf(w, types.ErrNotFound, "token not found", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, tokenToResponse(t))
}

// HandleCreateToken implements POST /admin/tokens. A token value is
// generated server-side when the request omits one.
func (h *AdminHandler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.AdminTokenRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	value := req.Token
	if value == "" {
		value = "tok_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	t := &store.AdminToken{
		Token:         value,
		AllowedModels: strings.Join(req.AllowedModels, ","),
		MaxTokens:     req.MaxTokens,
		MaxAmount:     req.MaxAmount,
		Enabled:       enabled,
		ExpiresAt:     req.ExpiresAt,
		CreatedAt:     time.Now(),
	}
	if err := h.tokens.CreateToken(r.Context(), t); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to create token").WithCause(err), h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, tokenToResponse(t))
}

// HandleUpdateToken implements PATCH /admin/tokens/:tok, replacing only the
// fields present in the request body.
func (h *AdminHandler) HandleUpdateToken(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	value := pathParam(r, "tok")
	t, err := h.tokens.GetToken(r.Context(), value)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load token").WithCause(err), h.logger)
		return
	}
	if t == nil {
		WriteErrorf(w, types.ErrNotFound, "token not found", h.logger)
		return
	}

	var req api.AdminTokenRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.AllowedModels != nil {
		t.AllowedModels = strings.Join(req.AllowedModels, ",")
	}
	if req.MaxTokens != nil {
		t.MaxTokens = req.MaxTokens
	}
	if req.MaxAmount != nil {
		t.MaxAmount = req.MaxAmount
	}
	if req.Enabled != nil {
		t.Enabled = *req.Enabled
	}
	if req.ExpiresAt != nil {
		t.ExpiresAt = req.ExpiresAt
	}

	if err := h.tokens.UpdateToken(r.Context(), t); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to update token").WithCause(err), h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, tokenToResponse(t))
}

// HandleDeleteToken implements DELETE /admin/tokens/:tok.
func (h *AdminHandler) HandleDeleteToken(w http.ResponseWriter, r *http.Request) {
	if err := h.tokens.DeleteToken(r.Context(), pathParam(r, "tok")); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to delete token").WithCause(err), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func tokenToResponse(t *store.AdminToken) api.AdminTokenResponse {
	resp := api.AdminTokenResponse{
		Token:                 t.Token,
		MaxTokens:             t.MaxTokens,
		MaxAmount:             t.MaxAmount,
		Enabled:               t.Enabled,
		ExpiresAt:             t.ExpiresAt,
		CreatedAt:             t.CreatedAt,
		AmountSpent:           t.AmountSpent,
		PromptTokensSpent:     t.PromptTokensSpent,
		CompletionTokensSpent: t.CompletionTokensSpent,
		TotalTokensSpent:      t.TotalTokensSpent,
	}
	if t.AllowedModels != "" {
		resp.AllowedModels = strings.Split(t.AllowedModels, ",")
	}
	return resp
}

// HandleListProviders implements GET /admin/providers.
func (h *AdminHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providers.ListProviders(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to list providers").WithCause(err), h.logger)
		return
	}
	out := make([]api.ProviderResponse, len(providers))
	for i, p := range providers {
		keys, err := h.providers.ListAPIKeys(r.Context(), p.ID)
		if err != nil {
			WriteError(w, types.NewError(types.ErrStorage, "failed to list API keys").WithCause(err), h.logger)
			return
		}
		out[i] = providerToResponse(&p, len(keys))
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleGetProvider implements GET /admin/providers/:name.
func (h *AdminHandler) HandleGetProvider(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	p, err := h.providers.GetProvider(r.Context(), name)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load provider").WithCause(err), h.logger)
		return
	}
	if p == nil {
		WriteErrorf(w, types.ErrNotFound, "provider not found", h.logger)
		return
	}
	keys, err := h.providers.ListAPIKeys(r.Context(), p.ID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to list API keys").WithCause(err), h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, providerToResponse(p, len(keys)))
}

// HandleCreateProvider implements POST /admin/providers.
func (h *AdminHandler) HandleCreateProvider(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ProviderRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" || req.APIType == "" || req.BaseURL == "" {
		WriteErrorf(w, types.ErrBadRequest, "name, api_type and base_url are required", h.logger)
		return
	}

	p := &store.Provider{
		Name:           req.Name,
		APIType:        req.APIType,
		BaseURL:        req.BaseURL,
		ModelsEndpoint: req.ModelsEndpoint,
	}
	if err := h.providers.CreateProvider(r.Context(), p); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to create provider").WithCause(err), h.logger)
		return
	}
	h.reloadRegistry(r)

	WriteJSON(w, http.StatusCreated, providerToResponse(p, 0))
}

// HandleDeleteProvider implements DELETE /admin/providers/:name, cascading
// to the provider's keys and cached models per store.ProviderStore's
// documented contract.
func (h *AdminHandler) HandleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.providers.DeleteProvider(r.Context(), pathParam(r, "name")); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to delete provider").WithCause(err), h.logger)
		return
	}
	h.reloadRegistry(r)
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddKey implements POST /admin/providers/:name/keys.
func (h *AdminHandler) HandleAddKey(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	name := pathParam(r, "name")
	p, err := h.providers.GetProvider(r.Context(), name)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load provider").WithCause(err), h.logger)
		return
	}
	if p == nil {
		WriteErrorf(w, types.ErrNotFound, "provider not found", h.logger)
		return
	}

	var req api.APIKeyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Key == "" {
		WriteErrorf(w, types.ErrBadRequest, "key is required", h.logger)
		return
	}

	key, err := h.providers.AddAPIKey(r.Context(), p.ID, req.Key, req.Priority, req.Weight)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to add API key").WithCause(err), h.logger)
		return
	}
	h.reloadRegistry(r)

	WriteJSON(w, http.StatusCreated, api.APIKeyResponse{
		KeyMasked: provider.MaskAPIKey(key.Key),
		Priority:  key.Priority,
		Weight:    key.Weight,
		Disabled:  key.Disabled,
	})
}

// HandleDeleteKey implements DELETE /admin/providers/:name/keys/:key.
func (h *AdminHandler) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	p, err := h.providers.GetProvider(r.Context(), name)
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load provider").WithCause(err), h.logger)
		return
	}
	if p == nil {
		WriteErrorf(w, types.ErrNotFound, "provider not found", h.logger)
		return
	}

	if err := h.providers.DeleteAPIKey(r.Context(), p.ID, pathParam(r, "key")); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to delete API key").WithCause(err), h.logger)
		return
	}
	h.reloadRegistry(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) reloadRegistry(r *http.Request) {
	if h.registry == nil {
		return
	}
	if err := h.registry.Reload(r.Context()); err != nil {
		h.logger.Error("failed to reload dispatch registry", zap.Error(err))
	}
}

func providerToResponse(p *store.Provider, keyCount int) api.ProviderResponse {
	return api.ProviderResponse{
		Name:           p.Name,
		APIType:        p.APIType,
		BaseURL:        p.BaseURL,
		ModelsEndpoint: p.ModelsEndpoint,
		KeyCount:       keyCount,
	}
}
