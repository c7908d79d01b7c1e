package crypto

import (
	"crypto/sha256"
	"encoding/base64"
)

// HashToken gives a fixed-size key for a bearer token, used when denylisting
// tokens on logout so the raw token never reaches the cache.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
