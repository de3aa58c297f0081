package api

import "time"

// ChallengeRequest is the body of POST /auth/tui/challenge.
type ChallengeRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// ChallengeResponse is the response of POST /auth/tui/challenge.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Nonce       []byte    `json:"nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
	Algorithm   string    `json:"alg"`
}

// VerifyRequest is the body of POST /auth/tui/verify.
type VerifyRequest struct {
	ChallengeID string `json:"challenge_id"`
	Fingerprint string `json:"fingerprint"`
	Signature   []byte `json:"signature"`
}

// SessionResponse describes an admin session, returned by verify/redeem and
// GET /auth/session.
type SessionResponse struct {
	Token       string    `json:"token,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AdminKeyRequest is the body of POST /auth/keys.
type AdminKeyRequest struct {
	Fingerprint string `json:"fingerprint"`
	PublicKey   []byte `json:"public_key"`
	Comment     string `json:"comment,omitempty"`
}

// AdminKeyResponse describes a registered admin public key.
type AdminKeyResponse struct {
	Fingerprint string     `json:"fingerprint"`
	Comment     string     `json:"comment,omitempty"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// LoginCodeCreateRequest is the body of POST /auth/login-codes.
type LoginCodeCreateRequest struct {
	TTLSeconds int    `json:"ttl_secs"`
	MaxUses    int    `json:"max_uses"`
	Length     int    `json:"length"`
	MagicURL   bool   `json:"magic_url"`
	BaseURL    string `json:"base_url,omitempty"`
}

// LoginCodeCreateResponse is the response of POST /auth/login-codes.
type LoginCodeCreateResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	MaxUses   int       `json:"max_uses"`
	LoginURL  string    `json:"login_url,omitempty"`
}

// LoginCodeStatusResponse is the response of GET /auth/login-codes/status.
type LoginCodeStatusResponse struct {
	CodePreview string    `json:"code_preview"`
	ExpiresAt   time.Time `json:"expires_at"`
	MaxUses     int       `json:"max_uses"`
	Uses        int       `json:"uses"`
	Disabled    bool      `json:"disabled"`
}

// RedeemRequest is the body of POST /auth/redeem.
type RedeemRequest struct {
	Code string `json:"code"`
}

// TokenBalanceResponse is the response of GET /v1/token/balance.
type TokenBalanceResponse struct {
	AmountSpent float64  `json:"amount_spent"`
	MaxAmount   *float64 `json:"max_amount,omitempty"`
	Remaining   *float64 `json:"remaining,omitempty"`
}

// UsageLogEntry is one row of GET /v1/token/usage.
type UsageLogEntry struct {
	Timestamp        time.Time `json:"timestamp"`
	Model            string    `json:"model"`
	Provider         string    `json:"provider"`
	StatusCode       int       `json:"status_code"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	TotalTokens      *int      `json:"total_tokens,omitempty"`
}

// AdminTokenRequest is the body of POST/PATCH /admin/tokens[/:tok].
type AdminTokenRequest struct {
	Token         string   `json:"token,omitempty"` // generated server-side if omitted on create
	AllowedModels []string `json:"allowed_models,omitempty"`
	MaxTokens     *int64   `json:"max_tokens,omitempty"`
	MaxAmount     *float64 `json:"max_amount,omitempty"`
	Enabled       *bool    `json:"enabled,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// AdminTokenResponse describes a client token for admin consumption.
type AdminTokenResponse struct {
	Token                 string     `json:"token"`
	AllowedModels         []string   `json:"allowed_models,omitempty"`
	MaxTokens             *int64     `json:"max_tokens,omitempty"`
	MaxAmount             *float64   `json:"max_amount,omitempty"`
	Enabled               bool       `json:"enabled"`
	ExpiresAt             *time.Time `json:"expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	AmountSpent           float64    `json:"amount_spent"`
	PromptTokensSpent     int64      `json:"prompt_tokens_spent"`
	CompletionTokensSpent int64      `json:"completion_tokens_spent"`
	TotalTokensSpent      int64      `json:"total_tokens_spent"`
}

// ProviderRequest is the body of POST /admin/providers.
type ProviderRequest struct {
	Name           string `json:"name"`
	APIType        string `json:"api_type"` // "openai", "anthropic", "zhipu"
	BaseURL        string `json:"base_url"`
	ModelsEndpoint string `json:"models_endpoint,omitempty"`
}

// ProviderResponse describes a provider for admin consumption.
type ProviderResponse struct {
	Name           string `json:"name"`
	APIType        string `json:"api_type"`
	BaseURL        string `json:"base_url"`
	ModelsEndpoint string `json:"models_endpoint,omitempty"`
	KeyCount       int    `json:"key_count"`
}

// APIKeyRequest is the body of POST /admin/providers/:name/keys.
type APIKeyRequest struct {
	Key      string `json:"key"`
	Priority int    `json:"priority,omitempty"`
	Weight   int    `json:"weight,omitempty"`
}

// APIKeyResponse describes a provider's key, masked, for admin consumption.
type APIKeyResponse struct {
	KeyMasked string `json:"key"`
	Priority  int    `json:"priority"`
	Weight    int    `json:"weight"`
	Disabled  bool   `json:"disabled"`
}

// ErrorEnvelope is the JSON error body every failed request returns.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the inner payload of ErrorEnvelope.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
