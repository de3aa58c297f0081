package adminauth

import (
	"context"
	"fmt"
	"time"

	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// CreateLoginCodeParams are the admin-supplied bounds of the web
// login-code flow.
type CreateLoginCodeParams struct {
	TTLSeconds int    // ∈ [1, 86400]
	MaxUses    int    // ∈ [1, 1000]
	Length     int    // ∈ [25, 64]
	MagicURL   bool
	BaseURL    string // used to build login_url when MagicURL is set
}

// LoginCodeResult is the response payload of POST /auth/login-codes.
type LoginCodeResult struct {
	Code      string
	ExpiresAt time.Time
	MaxUses   int
	LoginURL  string // set only when MagicURL was requested
}

// CreateLoginCode implements the web login-code creation step, plus a
// magic_url extension: when MagicURL is set, the response also
// carries a hash-routed SPA link so operators can share a single clickable
// URL instead of dictating a code out of band.
func (a *Authenticator) CreateLoginCode(ctx context.Context, p CreateLoginCodeParams) (*LoginCodeResult, error) {
	if p.TTLSeconds < 1 || p.TTLSeconds > 86400 {
		return nil, types.NewError(types.ErrBadRequest, "ttl_secs must be in [1, 86400]")
	}
	if p.MaxUses < 1 || p.MaxUses > 1000 {
		return nil, types.NewError(types.ErrBadRequest, "max_uses must be in [1, 1000]")
	}
	if p.Length < 25 || p.Length > 64 {
		return nil, types.NewError(types.ErrBadRequest, "length must be in [25, 64]")
	}

	code, err := randomAlphanumeric(p.Length)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to generate login code").WithCause(err)
	}

	c := &store.LoginCode{
		Code:      code,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Duration(p.TTLSeconds) * time.Second),
		MaxUses:   p.MaxUses,
	}
	if err := a.codes.CreateLoginCode(ctx, c); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to create login code").WithCause(err)
	}

	result := &LoginCodeResult{Code: code, ExpiresAt: c.ExpiresAt, MaxUses: c.MaxUses}
	if p.MagicURL {
		result.LoginURL = fmt.Sprintf("%s/#/auth/magic?code=%s", p.BaseURL, code)
	}
	return result, nil
}

// RedeemLoginCode atomically checks and increments uses, returning
// InvalidCode-shaped failure on any unusable state, and
// issue a fresh AdminSession on success.
func (a *Authenticator) RedeemLoginCode(ctx context.Context, code string) (*store.AdminSession, error) {
	ok, err := a.codes.RedeemLoginCode(ctx, code, time.Now())
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to redeem login code").WithCause(err)
	}
	if !ok {
		return nil, types.NewError(types.ErrBadRequest, "invalid or expired login code")
	}
	return a.issueSession(ctx, "")
}

// CodePreview implements the audit-logging rule of the login-code flow:
// never log the full code, only a short preview.
func CodePreview(code string) string {
	const keep = 4
	if len(code) <= 2*keep {
		return code
	}
	return code[:keep] + "..." + code[len(code)-keep:]
}
