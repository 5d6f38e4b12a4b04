package security

import (
	"crypto/hmac"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprinter derives a keyed BLAKE2b-256 digest of a bearer token. Stored
// session snapshots carry the digest so they can be matched to the token
// cookie later without the token itself ever being persisted.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter keys the digest with secret. BLAKE2b accepts keys up to 64
// bytes; longer secrets are hashed down first.
func NewFingerprinter(secret string) *Fingerprinter {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &Fingerprinter{key: key}
}

// Fingerprint returns the hex digest of token, or "" for an empty token.
func (f *Fingerprinter) Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		// Only reachable with a key longer than 64 bytes, which the
		// constructor rules out.
		panic(err)
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}

// Matches reports whether token produces fingerprint.
func (f *Fingerprinter) Matches(token, fingerprint string) bool {
	if token == "" || fingerprint == "" {
		return false
	}
	return hmac.Equal([]byte(f.Fingerprint(token)), []byte(fingerprint))
}
