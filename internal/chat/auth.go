package chat

import (
	"crypto/subtle"

	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator decides whether a passkey/username pair may open a session.
type Authenticator interface {
	Authenticate(passkey, username string) error
}

// PasskeyAuth checks a shared secret and an optional username allow-list.
type PasskeyAuth struct {
	passkey []byte
	hash    []byte
	allowed []string
}

// NewPasskeyAuth builds the shared-secret predicate. When hash is non-empty it
// is a bcrypt hash and replaces the plain passkey. An empty allow-list admits
// every username.
func NewPasskeyAuth(passkey, hash string, allowed []string) *PasskeyAuth {
	auth := &PasskeyAuth{
		passkey: []byte(passkey),
		allowed: lo.Compact(allowed),
	}
	if hash != "" {
		auth.hash = []byte(hash)
	}
	return auth
}

func (a *PasskeyAuth) Authenticate(passkey, username string) error {
	if !a.passkeyMatches(passkey) {
		return &AuthError{Reason: "Invalid passkey!"}
	}
	if len(a.allowed) > 0 && !lo.Contains(a.allowed, username) {
		return &AuthError{Reason: "User is not allowed in this chat"}
	}
	return nil
}

func (a *PasskeyAuth) passkeyMatches(passkey string) bool {
	if a.hash != nil {
		return bcrypt.CompareHashAndPassword(a.hash, []byte(passkey)) == nil
	}
	return subtle.ConstantTimeCompare(a.passkey, []byte(passkey)) == 1
}
