package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/openrelay/gateway/api"
	"github.com/openrelay/gateway/internal/ctxkeys"
	"github.com/openrelay/gateway/store"
)

func newTokenTestStore(t *testing.T) store.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return store.NewGormStore(db)
}

func TestHandleBalance(t *testing.T) {
	ctx := context.Background()
	s := newTokenTestStore(t)
	maxAmount := 10.0
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{
		Token: "client-tok", Enabled: true, MaxAmount: &maxAmount, AmountSpent: 4,
	}))

	h := NewTokenHandler(s, s, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/token/balance", nil)
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleBalance(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp api.TokenBalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4.0, resp.AmountSpent)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 6.0, *resp.Remaining)
}

func TestHandleBalance_UnknownTokenReturns401(t *testing.T) {
	s := newTokenTestStore(t)
	h := NewTokenHandler(s, s, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/token/balance", nil)
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "nope"))
	w := httptest.NewRecorder()

	h.HandleBalance(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleBalance_MissingTokenReturns401(t *testing.T) {
	s := newTokenTestStore(t)
	h := NewTokenHandler(s, s, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/token/balance", nil)
	w := httptest.NewRecorder()

	h.HandleBalance(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleUsage_DefaultsAndOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTokenTestStore(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "client-tok", Enabled: true}))
	require.NoError(t, s.LogRequest(ctx, &store.RequestLog{ClientToken: "client-tok", Model: "gpt-4o", Provider: "openai", StatusCode: 200}))
	require.NoError(t, s.LogRequest(ctx, &store.RequestLog{ClientToken: "client-tok", Model: "gpt-4o-mini", Provider: "openai", StatusCode: 200}))

	h := NewTokenHandler(s, s, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/token/usage", nil)
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleUsage(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var out []api.UsageLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "gpt-4o", out[0].Model)
	assert.Equal(t, "gpt-4o-mini", out[1].Model)
}

func TestHandleUsage_RejectsOutOfRangeLimit(t *testing.T) {
	s := newTokenTestStore(t)
	require.NoError(t, s.CreateToken(context.Background(), &store.AdminToken{Token: "client-tok", Enabled: true}))

	h := NewTokenHandler(s, s, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/token/usage?limit=5000", nil)
	req = req.WithContext(ctxkeys.WithClientToken(req.Context(), "client-tok"))
	w := httptest.NewRecorder()

	h.HandleUsage(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
