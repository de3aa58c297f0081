package store

import (
	"context"
	"time"
)

// RequestLogStore persists RequestLog rows and serves recent-usage queries,
// grounded on original_source's RequestLogStore trait.
type RequestLogStore interface {
	LogRequest(ctx context.Context, entry *RequestLog) error
	RecentLogs(ctx context.Context, clientToken string, limit int) ([]RequestLog, error)
}

// ModelCache persists and serves a provider's cached model catalog,
// grounded on original_source's ModelCache trait.
type ModelCache interface {
	CacheModels(ctx context.Context, providerID uint, models []CachedModel) error
	AppendCachedModels(ctx context.Context, providerID uint, models []CachedModel) error
	CachedModels(ctx context.Context, providerID uint) ([]CachedModel, error)
	IsCacheFresh(ctx context.Context, providerID uint, ttl time.Duration) (bool, error)
	RemoveCachedModels(ctx context.Context, providerID uint) error
}

// ProviderStore manages Provider, APIKey and ModelPrice rows.
type ProviderStore interface {
	CreateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, name string) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	DeleteProvider(ctx context.Context, name string) error // cascades to keys and cached models

	AddAPIKey(ctx context.Context, providerID uint, key string, priority, weight int) (*APIKey, error)
	ListAPIKeys(ctx context.Context, providerID uint) ([]APIKey, error)
	DeleteAPIKey(ctx context.Context, providerID uint, key string) error

	SetModelPrice(ctx context.Context, price *ModelPrice) error
	GetModelPrice(ctx context.Context, provider, model string) (*ModelPrice, error)
}

// TokenStore manages AdminToken rows and their atomic counter updates.
type TokenStore interface {
	GetToken(ctx context.Context, token string) (*AdminToken, error)
	CreateToken(ctx context.Context, t *AdminToken) error
	UpdateToken(ctx context.Context, t *AdminToken) error
	DeleteToken(ctx context.Context, token string) error
	ListTokens(ctx context.Context) ([]AdminToken, error)

	// ApplyUsage atomically adds the given deltas to the token's spend
	// counters. Implementations MUST serialize concurrent calls for the
	// same token (single transaction or compare-and-swap).
	ApplyUsage(ctx context.Context, token string, promptTokens, completionTokens, totalTokens int, amount float64) error
}

// AdminKeyStore manages registered Ed25519 admin public keys.
type AdminKeyStore interface {
	GetAdminKey(ctx context.Context, fingerprint string) (*AdminKey, error)
	ListAdminKeys(ctx context.Context) ([]AdminKey, error)
	CreateAdminKey(ctx context.Context, k *AdminKey) error
	DeleteAdminKey(ctx context.Context, fingerprint string) error
	TouchLastUsed(ctx context.Context, fingerprint string, when time.Time) error
}

// ChallengeStore manages single-use TUI challenges.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *Challenge) error
	GetChallenge(ctx context.Context, id string) (*Challenge, error)
	// ConsumeChallenge atomically marks the challenge consumed and returns
	// false if it was already consumed (or absent), guaranteeing invariant
	// 4: at most one verify call observes consumed=false.
	ConsumeChallenge(ctx context.Context, id string) (bool, error)
}

// SessionStore manages AdminSession rows issued by both the challenge flow
// and login-code redemption.
type SessionStore interface {
	CreateSession(ctx context.Context, s *AdminSession) error
	GetSession(ctx context.Context, token string) (*AdminSession, error)
	DeleteSession(ctx context.Context, token string) error
}

// LoginCodeStore manages one-time web login codes.
type LoginCodeStore interface {
	CreateLoginCode(ctx context.Context, c *LoginCode) error
	GetLoginCode(ctx context.Context, code string) (*LoginCode, error)
	// RedeemLoginCode atomically checks disabled/expiry/uses<max_uses and
	// increments uses, returning false if the code was not usable.
	RedeemLoginCode(ctx context.Context, code string, now time.Time) (bool, error)
	LatestLoginCode(ctx context.Context) (*LoginCode, error)
}

// Store aggregates every persistence interface the gateway depends on. The
// GORM-backed implementation in gorm_store.go satisfies all of them from a
// single *gorm.DB.
type Store interface {
	RequestLogStore
	ModelCache
	ProviderStore
	TokenStore
	AdminKeyStore
	ChallengeStore
	SessionStore
	LoginCodeStore
}
