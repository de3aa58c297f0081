package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/openrelay/gateway/adminauth"
	"github.com/openrelay/gateway/api"
	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

// sessionCookieName is the cookie the web login-code flow issues a session
// under, read back by GET /auth/session and cleared by POST /auth/logout.
const sessionCookieName = "gw_session"

// AdminAuthHandler serves the TUI challenge/verify flow, admin key
// management, and the web login-code flow.
type AdminAuthHandler struct {
	auth  *adminauth.Authenticator
	keys  store.AdminKeyStore
	codes store.LoginCodeStore

	logger *zap.Logger
}

// NewAdminAuthHandler builds an AdminAuthHandler over the authenticator and
// the stores its list/status endpoints read directly.
func NewAdminAuthHandler(auth *adminauth.Authenticator, keys store.AdminKeyStore, codes store.LoginCodeStore, logger *zap.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{auth: auth, keys: keys, codes: codes, logger: logger}
}

// HandleChallenge implements POST /auth/tui/challenge.
func (h *AdminAuthHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ChallengeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.auth.CreateChallenge(r.Context(), req.Fingerprint)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	nonce, decodeErr := base64.StdEncoding.DecodeString(result.Nonce)
	if decodeErr != nil {
		WriteError(w, types.NewError(types.ErrInternal, "failed to encode nonce").WithCause(decodeErr), h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.ChallengeResponse{
		ChallengeID: result.ChallengeID,
		Nonce:       nonce,
		ExpiresAt:   result.ExpiresAt,
		Algorithm:   result.Algorithm,
	})
}

// HandleVerify implements POST /auth/tui/verify.
func (h *AdminAuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.VerifyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	session, err := h.auth.VerifyChallenge(r.Context(), req.ChallengeID, req.Fingerprint, req.Signature)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.SessionResponse{
		Token:       session.Token,
		Fingerprint: session.Fingerprint,
		ExpiresAt:   session.ExpiresAt,
	})
}

// HandleListKeys implements GET /auth/keys.
func (h *AdminAuthHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListAdminKeys(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to list admin keys").WithCause(err), h.logger)
		return
	}
	out := make([]api.AdminKeyResponse, len(keys))
	for i, k := range keys {
		out[i] = api.AdminKeyResponse{
			Fingerprint: k.Fingerprint,
			Comment:     k.Comment,
			Enabled:     k.Enabled,
			CreatedAt:   k.CreatedAt,
			LastUsedAt:  k.LastUsedAt,
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

// HandleCreateKey implements POST /auth/keys. The fingerprint is always
// derived server-side from the supplied public key (hex SHA-256), never
// trusted from the request body, so a stale or forged fingerprint can never
// be registered against a different key.
func (h *AdminAuthHandler) HandleCreateKey(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.AdminKeyRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.PublicKey) == 0 {
		WriteErrorf(w, types.ErrBadRequest, "public_key is required", h.logger)
		return
	}

	sum := sha256.Sum256(req.PublicKey)
	fingerprint := hex.EncodeToString(sum[:])

	k := &store.AdminKey{
		Fingerprint: fingerprint,
		PublicKey:   req.PublicKey,
		Comment:     req.Comment,
		Enabled:     true,
		CreatedAt:   time.Now(),
	}
	if err := h.keys.CreateAdminKey(r.Context(), k); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to create admin key").WithCause(err), h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, api.AdminKeyResponse{
		Fingerprint: k.Fingerprint,
		Comment:     k.Comment,
		Enabled:     k.Enabled,
		CreatedAt:   k.CreatedAt,
	})
}

// HandleDeleteKey implements DELETE /auth/keys/:fp.
func (h *AdminAuthHandler) HandleDeleteKey(w http.ResponseWriter, r *http.Request) {
	fingerprint := pathParam(r, "fp")
	if fingerprint == "" {
		WriteErrorf(w, types.ErrBadRequest, "fingerprint is required", h.logger)
		return
	}
	if err := h.keys.DeleteAdminKey(r.Context(), fingerprint); err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to delete admin key").WithCause(err), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateLoginCode implements POST /auth/login-codes.
func (h *AdminAuthHandler) HandleCreateLoginCode(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.LoginCodeCreateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.auth.CreateLoginCode(r.Context(), adminauth.CreateLoginCodeParams{
		TTLSeconds: req.TTLSeconds,
		MaxUses:    req.MaxUses,
		Length:     req.Length,
		MagicURL:   req.MagicURL,
		BaseURL:    req.BaseURL,
	})
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	WriteJSON(w, http.StatusCreated, api.LoginCodeCreateResponse{
		Code:      result.Code,
		ExpiresAt: result.ExpiresAt,
		MaxUses:   result.MaxUses,
		LoginURL:  result.LoginURL,
	})
}

// HandleLoginCodeStatus implements GET /auth/login-codes/status: the most
// recently created code's use count and expiry, never the code itself.
func (h *AdminAuthHandler) HandleLoginCodeStatus(w http.ResponseWriter, r *http.Request) {
	code, err := h.codes.LatestLoginCode(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrStorage, "failed to load login code").WithCause(err), h.logger)
		return
	}
	if code == nil {
		WriteErrorf(w, types.ErrNotFound, "no login code has been created", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, api.LoginCodeStatusResponse{
		CodePreview: adminauth.CodePreview(code.Code),
		ExpiresAt:   code.ExpiresAt,
		MaxUses:     code.MaxUses,
		Uses:        code.Uses,
		Disabled:    code.Disabled,
	})
}

// HandleRedeem implements POST /auth/redeem: exchange a one-time login code
// for a browser session, delivered as an HttpOnly cookie.
func (h *AdminAuthHandler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.RedeemRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	session, err := h.auth.RedeemLoginCode(r.Context(), req.Code)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	setSessionCookie(w, session.Token, session.ExpiresAt)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession implements GET /auth/session: report whether the caller's
// cookie or bearer token is a live admin session.
func (h *AdminAuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	if token == "" {
		WriteErrorf(w, types.ErrUnauthorized, "no session", h.logger)
		return
	}

	fingerprint, isIdentity, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		WriteError(w, asAPIError(err), h.logger)
		return
	}

	resp := api.SessionResponse{Fingerprint: fingerprint}
	if isIdentity {
		resp.Fingerprint = ""
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleLogout implements POST /auth/logout: revoke the session and clear
// the cookie, regardless of which form the token arrived in.
func (h *AdminAuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	if token != "" {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			WriteError(w, asAPIError(err), h.logger)
			return
		}
	}
	clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionTokenFromRequest reads a bearer token from the Authorization
// header, falling back to the session cookie the web redeem flow sets.
func sessionTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
