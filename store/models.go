// Package store defines the gateway's persisted entities and the storage
// interfaces the rest of the gateway depends on, plus a GORM-backed
// implementation, grounded on internal/database/pool.go and llm/db_init.go.
package store

import "time"

// Provider is an upstream LLM endpoint plus its credentials and catalog.
type Provider struct {
	ID             uint   `gorm:"primarykey"`
	Name           string `gorm:"uniqueIndex;not null"`
	APIType        string `gorm:"not null"` // "openai", "anthropic", "zhipu"
	BaseURL        string `gorm:"not null"`
	ModelsEndpoint string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	APIKeys      []APIKey      `gorm:"constraint:OnDelete:CASCADE"`
	CachedModels []CachedModel `gorm:"constraint:OnDelete:CASCADE"`
}

// APIKey is an opaque credential bound to a provider.
type APIKey struct {
	ID         uint `gorm:"primarykey"`
	ProviderID uint `gorm:"uniqueIndex:idx_provider_key;not null"`
	Key        string `gorm:"uniqueIndex:idx_provider_key;not null"`
	Priority   int    // lower is tried first under the Priority-adjacent ordering
	Weight     int    // reserved for future weighted strategies
	Disabled   bool
	CreatedAt  time.Time
}

// ModelPrice prices a (provider, model) pair. Monotonically replaceable;
// a missing row means cost is zero.
type ModelPrice struct {
	ID                 uint `gorm:"primarykey"`
	Provider           string `gorm:"uniqueIndex:idx_provider_model;not null"`
	Model              string `gorm:"uniqueIndex:idx_provider_model;not null"`
	PromptPerMillion   float64
	CompletionPerMillion float64
	Currency           string
	UpdatedAt          time.Time
}

// CachedModel is one entry of a provider's model catalog cache.
type CachedModel struct {
	ID         uint   `gorm:"primarykey"`
	ProviderID uint   `gorm:"uniqueIndex:idx_provider_model_id;not null"`
	ModelID    string `gorm:"uniqueIndex:idx_provider_model_id;not null"`
	Object     string
	Created    int64
	OwnedBy    string
	CachedAt   time.Time
}

// RequestLog is an immutable record of one handled request.
type RequestLog struct {
	ID               uint      `gorm:"primarykey"`
	Timestamp        time.Time `gorm:"index"`
	Method           string
	Path             string
	RequestType      string // "chat", "chat_stream", "models", "provider_op"
	Model            string
	Provider         string
	APIKeyDisplay    string
	ClientToken      string `gorm:"index"`
	StatusCode       int
	ResponseTimeMs   int64
	PromptTokens     *int
	CompletionTokens *int
	TotalTokens      *int
}

// AdminToken is a client token: the credential an end-user application
// authenticates chat requests with.
type AdminToken struct {
	ID                      uint   `gorm:"primarykey"`
	Token                   string `gorm:"uniqueIndex;not null"`
	AllowedModels           string // comma-joined; empty means unrestricted
	MaxTokens               *int64
	MaxAmount                *float64
	Enabled                 bool
	ExpiresAt               *time.Time
	CreatedAt               time.Time
	AmountSpent             float64
	PromptTokensSpent       int64
	CompletionTokensSpent   int64
	TotalTokensSpent        int64
}

// AdminKey is an operator's registered Ed25519 public key for the TUI
// challenge flow.
type AdminKey struct {
	ID          uint   `gorm:"primarykey"`
	Fingerprint string `gorm:"uniqueIndex;not null"` // hex SHA-256 of the raw public key
	PublicKey   []byte `gorm:"not null"`
	Comment     string
	Enabled     bool
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// Challenge is a single-use nonce issued for an admin to sign.
type Challenge struct {
	ID          string `gorm:"primarykey"` // random opaque id
	Fingerprint string `gorm:"index;not null"`
	Nonce       []byte `gorm:"not null"`
	ExpiresAt   time.Time
	Consumed    bool
}

// AdminSession is a bearer session issued after a successful challenge
// verification or login-code redemption.
type AdminSession struct {
	Token       string `gorm:"primarykey"` // random 40-char session token / cookie value
	Fingerprint string // empty for sessions issued via login-code redemption
	ExpiresAt   time.Time
}

// LoginCode is a short-lived, use-limited credential redeemable for an
// AdminSession.
type LoginCode struct {
	Code      string `gorm:"primarykey"`
	CreatedAt time.Time
	ExpiresAt time.Time
	MaxUses   int
	Uses      int
	Disabled  bool
}
