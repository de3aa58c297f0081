package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrelay/gateway/api"
	"github.com/openrelay/gateway/dispatch"
	"github.com/openrelay/gateway/store"
)

func newAdminTestHandler(t *testing.T) (*AdminHandler, store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := store.NewGormStore(db)
	registry := dispatch.NewRegistry(s, s, dispatch.StrategyFirstAvailable)
	require.NoError(t, registry.Reload(context.Background()))
	return NewAdminHandler(s, s, registry, zap.NewNop()), s
}

func TestHandleCreateToken_GeneratesValueWhenOmitted(t *testing.T) {
	h, _ := newAdminTestHandler(t)

	body, _ := json.Marshal(api.AdminTokenRequest{AllowedModels: []string{"openai/gpt-4o"}})
	req := httptest.NewRequest(http.MethodPost, "/admin/tokens", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleCreateToken(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp api.AdminTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.True(t, strings.HasPrefix(resp.Token, "tok_"))
	assert.True(t, resp.Enabled)
	assert.Equal(t, []string{"openai/gpt-4o"}, resp.AllowedModels)
}

func TestHandleUpdateToken_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	h, s := newAdminTestHandler(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "tok_abc", Enabled: true}))

	disabled := false
	body, _ := json.Marshal(api.AdminTokenRequest{Enabled: &disabled})
	req := httptest.NewRequest(http.MethodPatch, "/admin/tokens/tok_abc", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("tok", "tok_abc")
	w := httptest.NewRecorder()

	h.HandleUpdateToken(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	tok, err := s.GetToken(ctx, "tok_abc")
	require.NoError(t, err)
	assert.False(t, tok.Enabled)
}

func TestHandleGetToken_NotFoundReturns404(t *testing.T) {
	h, _ := newAdminTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/tokens/nope", nil)
	req.SetPathValue("tok", "nope")
	w := httptest.NewRecorder()

	h.HandleGetToken(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleDeleteToken(t *testing.T) {
	ctx := context.Background()
	h, s := newAdminTestHandler(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "tok_abc", Enabled: true}))

	req := httptest.NewRequest(http.MethodDelete, "/admin/tokens/tok_abc", nil)
	req.SetPathValue("tok", "tok_abc")
	w := httptest.NewRecorder()

	h.HandleDeleteToken(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	tok, err := s.GetToken(ctx, "tok_abc")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestHandleCreateProvider_RequiresFields(t *testing.T) {
	h, _ := newAdminTestHandler(t)

	body, _ := json.Marshal(api.ProviderRequest{Name: "openai"})
	req := httptest.NewRequest(http.MethodPost, "/admin/providers", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.HandleCreateProvider(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCreateProvider_ThenAddKeyReloadsRegistry(t *testing.T) {
	ctx := context.Background()
	h, s := newAdminTestHandler(t)

	body, _ := json.Marshal(api.ProviderRequest{Name: "openai", APIType: "openai", BaseURL: "https://openai.example.com"})
	req := httptest.NewRequest(http.MethodPost, "/admin/providers", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleCreateProvider(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	keyBody, _ := json.Marshal(api.APIKeyRequest{Key: "sk-live-key"})
	keyReq := httptest.NewRequest(http.MethodPost, "/admin/providers/openai/keys", strings.NewReader(string(keyBody)))
	keyReq.Header.Set("Content-Type", "application/json")
	keyReq.SetPathValue("name", "openai")
	keyW := httptest.NewRecorder()
	h.HandleAddKey(keyW, keyReq)

	assert.Equal(t, http.StatusCreated, keyW.Code)
	var resp api.APIKeyResponse
	require.NoError(t, json.Unmarshal(keyW.Body.Bytes(), &resp))
	assert.NotEqual(t, "sk-live-key", resp.KeyMasked)

	p, err := s.GetProvider(ctx, "openai")
	require.NoError(t, err)
	keys, err := s.ListAPIKeys(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	orderedKeys, ok := h.registry.OrderedKeys("openai")
	require.True(t, ok)
	assert.Len(t, orderedKeys, 1)
}

func TestHandleDeleteProvider_NotFoundOnKeysStillReturnsNoContent(t *testing.T) {
	h, s := newAdminTestHandler(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProvider(ctx, &store.Provider{Name: "openai", APIType: "openai", BaseURL: "https://openai.example.com"}))

	req := httptest.NewRequest(http.MethodDelete, "/admin/providers/openai", nil)
	req.SetPathValue("name", "openai")
	w := httptest.NewRecorder()

	h.HandleDeleteProvider(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
