package quota

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

func newTestAccountant(t *testing.T) (*Accountant, store.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := store.NewGormStore(db)
	return NewAccountant(s, s), s
}

func TestPreCheckRejectsDisabledToken(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: false}))

	_, err := a.PreCheck(ctx, "t1", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrQuotaExceeded, types.Kind(err))
}

func TestPreCheckRejectsExpiredToken(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: true, ExpiresAt: &past}))

	_, err := a.PreCheck(ctx, "t1", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrQuotaExceeded, types.Kind(err))
}

func TestPreCheckRejectsModelNotAllowed(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: true, AllowedModels: "gpt-4o,gpt-4o-mini"}))

	_, err := a.PreCheck(ctx, "t1", "claude-3-opus")
	require.Error(t, err)
	assert.Equal(t, types.ErrQuotaExceeded, types.Kind(err))

	got, err := a.PreCheck(ctx, "t1", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.Token)
}

func TestPreCheckRejectsMaxTokensBreach(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	limit := int64(100)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: true, MaxTokens: &limit, TotalTokensSpent: 100}))

	_, err := a.PreCheck(ctx, "t1", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrQuotaExceeded, types.Kind(err))
}

func TestPostUpdateComputesAmountFromPrice(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: true}))
	require.NoError(t, s.SetModelPrice(ctx, &store.ModelPrice{Provider: "openai", Model: "gpt-4o", PromptPerMillion: 5, CompletionPerMillion: 15}))

	require.NoError(t, a.PostUpdate(ctx, "t1", "openai", "gpt-4o", 1_000_000, 1_000_000, 2_000_000))

	got, err := s.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, got.AmountSpent, 1e-9)
	assert.Equal(t, int64(2_000_000), got.TotalTokensSpent)
}

func TestPostUpdateZeroAmountWithoutPriceRow(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: true}))

	require.NoError(t, a.PostUpdate(ctx, "t1", "openai", "gpt-4o", 10, 10, 20))

	got, err := s.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.AmountSpent)
}

func TestPostUpdateZeroAmountWhenProviderOrModelMissing(t *testing.T) {
	ctx := context.Background()
	a, s := newTestAccountant(t)
	require.NoError(t, s.CreateToken(ctx, &store.AdminToken{Token: "t1", Enabled: true}))

	require.NoError(t, a.PostUpdate(ctx, "t1", "", "", 10, 10, 20))

	got, err := s.GetToken(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, got.AmountSpent)
	assert.Equal(t, int64(20), got.TotalTokensSpent)
}
