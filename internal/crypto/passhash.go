// Package crypto implements server-side password hashing, verification and token entropy.
package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// TokenEntropyBytes is the random payload size of refresh/reset tokens.
const TokenEntropyBytes = 48

// Hasher hashes and verifies secrets with a fixed bcrypt work factor.
type Hasher struct {
	Cost int
}

// DefaultHasher uses bcrypt.DefaultCost.
var DefaultHasher = Hasher{Cost: bcrypt.DefaultCost}

// Hash returns a self-describing bcrypt hash of plaintext (salt and cost embedded).
func (h Hasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify compares plaintext against hash. Any failure, including a malformed
// hash, yields false.
func (h Hasher) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// HashPassword hashes plaintext with the default work factor.
func HashPassword(plaintext string) (string, error) { return DefaultHasher.Hash(plaintext) }

// VerifyPassword verifies plaintext against a stored bcrypt hash.
func VerifyPassword(plaintext, hash string) bool { return DefaultHasher.Verify(plaintext, hash) }

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandToken returns a hex-encoded opaque token with TokenEntropyBytes of entropy.
func RandToken() (string, error) {
	b, err := RandBytes(TokenEntropyBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
