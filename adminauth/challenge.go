package adminauth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/openrelay/gateway/store"
	"github.com/openrelay/gateway/types"
)

const (
	challengeNonceSize = 32
	challengeTTL       = 60 * time.Second
	sessionTTL         = 12 * time.Hour
	sessionTokenLength = 40
)

// ChallengeResult is the response payload of the first TUI challenge step.
type ChallengeResult struct {
	ChallengeID string
	Nonce       string // base64
	ExpiresAt   time.Time
	Algorithm   string
}

// CreateChallenge verifies the fingerprint exists and is enabled, then
// issues a single-use nonce with a 60-second TTL.
func (a *Authenticator) CreateChallenge(ctx context.Context, fingerprint string) (*ChallengeResult, error) {
	key, err := a.keys.GetAdminKey(ctx, fingerprint)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to load admin key").WithCause(err)
	}
	if key == nil || !key.Enabled {
		return nil, types.NewError(types.ErrUnauthorized, "unknown or disabled admin key")
	}

	nonce, err := randomNonce(challengeNonceSize)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to generate nonce").WithCause(err)
	}

	c := &store.Challenge{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Nonce:       nonce,
		ExpiresAt:   time.Now().Add(challengeTTL),
	}
	if err := a.challenges.CreateChallenge(ctx, c); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to create challenge").WithCause(err)
	}

	return &ChallengeResult{
		ChallengeID: c.ID,
		Nonce:       base64.StdEncoding.EncodeToString(nonce),
		ExpiresAt:   c.ExpiresAt,
		Algorithm:   "ed25519",
	}, nil
}

// VerifyChallenge looks up the challenge (failing on
// expiry/consumption/fingerprint mismatch), verifies the Ed25519
// signature over the nonce against the registered public key, consume the
// challenge atomically, issue a 12-hour AdminSession, and touch the key's
// last-used timestamp.
func (a *Authenticator) VerifyChallenge(ctx context.Context, challengeID, fingerprint string, signature []byte) (*store.AdminSession, error) {
	c, err := a.challenges.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to load challenge").WithCause(err)
	}
	if c == nil {
		return nil, types.NewError(types.ErrUnauthorized, "unknown challenge")
	}
	if c.Fingerprint != fingerprint {
		return nil, types.NewError(types.ErrUnauthorized, "fingerprint mismatch")
	}
	if time.Now().After(c.ExpiresAt) {
		return nil, types.NewError(types.ErrUnauthorized, "challenge expired")
	}
	if c.Consumed {
		return nil, types.NewError(types.ErrUnauthorized, "challenge already consumed")
	}

	key, err := a.keys.GetAdminKey(ctx, fingerprint)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to load admin key").WithCause(err)
	}
	if key == nil || !key.Enabled {
		return nil, types.NewError(types.ErrUnauthorized, "unknown or disabled admin key")
	}
	if !ed25519.Verify(ed25519.PublicKey(key.PublicKey), c.Nonce, signature) {
		return nil, types.NewError(types.ErrUnauthorized, "invalid signature")
	}

	// Consume after verifying the signature so a forged/expired signature
	// never burns the single-use challenge a legitimate retry could still
	// need.
	consumed, err := a.challenges.ConsumeChallenge(ctx, challengeID)
	if err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to consume challenge").WithCause(err)
	}
	if !consumed {
		return nil, types.NewError(types.ErrUnauthorized, "challenge already consumed")
	}

	session, err := a.issueSession(ctx, fingerprint)
	if err != nil {
		return nil, err
	}

	if err := a.keys.TouchLastUsed(ctx, fingerprint, time.Now()); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to update last-used timestamp").WithCause(err)
	}

	return session, nil
}

func (a *Authenticator) issueSession(ctx context.Context, fingerprint string) (*store.AdminSession, error) {
	token, err := randomAlphanumeric(sessionTokenLength)
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to generate session token").WithCause(err)
	}
	session := &store.AdminSession{
		Token:       token,
		Fingerprint: fingerprint,
		ExpiresAt:   time.Now().Add(sessionTTL),
	}
	if err := a.sessions.CreateSession(ctx, session); err != nil {
		return nil, types.NewError(types.ErrStorage, "failed to create session").WithCause(err)
	}
	return session, nil
}
