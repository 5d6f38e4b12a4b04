// Package credentials keeps the backend bearer token between requests.
//
// Stores never return errors to their callers. A store that cannot read or
// write its backing medium logs the failure and behaves as if no token is
// present.
package credentials

import "time"

const (
	// CookieName is the cookie holding the bearer token in browsers.
	CookieName = "auth_token"
	// TokenTTL is the rolling lifetime of a stored token.
	TokenTTL = 30 * 24 * time.Hour
)

// Store persists a single bearer token. Get returns "" when no token is held.
type Store interface {
	Set(token string)
	Get() string
	Clear()
}

// Toucher is implemented by stores with a rolling expiry.
type Toucher interface {
	Touch()
}

// Touch extends the expiry of the stored token when the store supports it.
func Touch(s Store) {
	if t, ok := s.(Toucher); ok {
		t.Touch()
	}
}
