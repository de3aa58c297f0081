package adminauth

import (
	"github.com/openrelay/gateway/store"
)

// Authenticator wires together the store interfaces the admin
// authentication flows depend on, plus the static admin identity token
// from config.
type Authenticator struct {
	keys       store.AdminKeyStore
	challenges store.ChallengeStore
	sessions   store.SessionStore
	codes      store.LoginCodeStore

	identityToken string
}

// NewAuthenticator builds an Authenticator. identityToken may be empty to
// disable the identity-token bypass entirely.
func NewAuthenticator(keys store.AdminKeyStore, challenges store.ChallengeStore, sessions store.SessionStore, codes store.LoginCodeStore, identityToken string) *Authenticator {
	return &Authenticator{keys: keys, challenges: challenges, sessions: sessions, codes: codes, identityToken: identityToken}
}
