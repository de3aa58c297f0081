package adminauth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/openrelay/gateway/types"
)

// identityTokenDisplay is the literal string logged in place of the
// configured admin identity token: logs display it as the literal
// string "admin_token".
const identityTokenDisplay = "admin_token"

// IsIdentityToken reports whether token is the configured static admin
// identity token, using a constant-time comparison since this is a bearer
// credential comparison.
func (a *Authenticator) IsIdentityToken(token string) bool {
	if a.identityToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(a.identityToken)) == 1
}

// IdentityTokenDisplay returns the literal display string a caller should
// log in place of the real identity token value.
func IdentityTokenDisplay() string { return identityTokenDisplay }

// Authenticate resolves a bearer token to an admin principal: either the
// static identity token bypass, or a live, unexpired AdminSession.
// Returns (fingerprint, isIdentityToken, error). fingerprint is empty for
// sessions issued via login-code redemption, matching AdminSession's
// documented invariant.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (fingerprint string, isIdentity bool, err error) {
	if a.IsIdentityToken(token) {
		return "", true, nil
	}

	session, err := a.sessions.GetSession(ctx, token)
	if err != nil {
		return "", false, types.NewError(types.ErrStorage, "failed to load session").WithCause(err)
	}
	if session == nil {
		return "", false, types.NewError(types.ErrUnauthorized, "invalid session")
	}
	if time.Now().After(session.ExpiresAt) {
		return "", false, types.NewError(types.ErrUnauthorized, "session expired")
	}
	return session.Fingerprint, false, nil
}

// Logout invalidates a session token (GET /auth/session's companion
// POST /auth/logout).
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return types.NewError(types.ErrStorage, "failed to delete session").WithCause(err)
	}
	return nil
}
