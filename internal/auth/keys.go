// Package auth verifies the bearer token that guards enqueue.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashToken returns the hex SHA-256 of the trimmed token.
func HashToken(token string) string {
	token = strings.TrimSpace(token)

	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Verifier compares presented tokens against one configured token.
// Only the hash is kept in memory.
type Verifier struct {
	hash string
}

// NewVerifier returns nil for an empty token, meaning no check is required.
func NewVerifier(token string) *Verifier {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	return &Verifier{hash: HashToken(token)}
}

// Verify reports whether presented matches the configured token in constant time.
func (v *Verifier) Verify(presented string) bool {
	if v == nil {
		return true
	}
	got := HashToken(presented)
	return subtle.ConstantTimeCompare([]byte(got), []byte(v.hash)) == 1
}
