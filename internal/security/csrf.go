package security

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/hex"
	"errors"
)

var ErrInvalidToken = errors.New("invalid CSRF token")

// TokenManager issues CSRF tokens for the double-submit cookie check.
// The web tier sets the token as a readable cookie and expects the same value
// back in the X-CSRF-Token header on state-changing requests.
type TokenManager struct{}

func NewTokenManager() *TokenManager {
	return &TokenManager{}
}

// Generate returns 32 random bytes as a 64-character hex string.
func (tm *TokenManager) Generate() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Verify compares the cookie and submitted values in constant time.
func (tm *TokenManager) Verify(cookieValue, submitted string) error {
	if cookieValue == "" || submitted == "" {
		return ErrInvalidToken
	}
	if !hmac.Equal([]byte(cookieValue), []byte(submitted)) {
		return ErrInvalidToken
	}
	return nil
}
