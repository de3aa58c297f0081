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

	"github.com/openrelay/gateway/store"
)

func TestHandleList_AggregatesAcrossProviders(t *testing.T) {
	ctx := context.Background()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	s := store.NewGormStore(db)

	p1 := &store.Provider{Name: "openai", APIType: "openai", BaseURL: "https://openai.example.com"}
	require.NoError(t, s.CreateProvider(ctx, p1))
	require.NoError(t, s.CacheModels(ctx, p1.ID, []store.CachedModel{
		{ModelID: "gpt-4o", Created: 1, OwnedBy: "openai"},
	}))

	p2 := &store.Provider{Name: "anthropic", APIType: "anthropic", BaseURL: "https://anthropic.example.com"}
	require.NoError(t, s.CreateProvider(ctx, p2))
	require.NoError(t, s.CacheModels(ctx, p2.ID, []store.CachedModel{
		{ModelID: "claude-3-opus", Created: 2, OwnedBy: ""},
	}))

	h := NewModelsHandler(s, s, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	w := httptest.NewRecorder()

	h.HandleList(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var out modelList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "list", out.Object)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "openai/gpt-4o", out.Data[0].ID)
	assert.Equal(t, "openai", out.Data[0].OwnedBy)
	assert.Equal(t, "anthropic/claude-3-opus", out.Data[1].ID)
	assert.Equal(t, "anthropic", out.Data[1].OwnedBy)
}

func TestOwnedByOrDefault(t *testing.T) {
	assert.Equal(t, "acme", ownedByOrDefault("acme", "openai"))
	assert.Equal(t, "openai", ownedByOrDefault("", "openai"))
}
