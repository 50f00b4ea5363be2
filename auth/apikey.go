package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// apiKeyBytes is the entropy of a raw key; the encoded key is twice as long.
const apiKeyBytes = 24

// DefaultAPIKeyRateLimit is the per-minute request allowance when a key
// declares none.
const DefaultAPIKeyRateLimit = 60

// GenerateRawAPIKey produces a new raw API key. The raw key is handed to the
// caller exactly once; storage keeps only HashAPIKey(raw) and a display
// prefix.
func GenerateRawAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sk_" + hex.EncodeToString(b), nil
}

// HashAPIKey hashes a raw key for storage and lookup. SHA-256 rather than
// bcrypt: the hash doubles as the lookup index, so it must be deterministic.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the display prefix stored alongside the hash so users can
// tell their keys apart.
func KeyPrefix(raw string) string {
	if len(raw) <= 10 {
		return raw
	}
	return raw[:10]
}
