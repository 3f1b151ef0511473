package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// APIKeyPrefix marks keys issued by this service so leaked keys are easy to
// attribute in scanners.
const APIKeyPrefix = "sm_"

const apiKeyRandomBytes = 24

// GenerateAPIKey returns a new plaintext API key and the hash stored for lookup.
// The plaintext is shown to the caller exactly once.
func GenerateAPIKey() (plaintext string, hash string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating api key: %w", err)
	}
	plaintext = APIKeyPrefix + hex.EncodeToString(buf)
	return plaintext, HashAPIKey(plaintext), nil
}

// HashAPIKey returns the hex SHA-256 digest used to store and look up keys.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// LooksLikeAPIKey reports whether the value carries this service's key prefix.
func LooksLikeAPIKey(value string) bool {
	return strings.HasPrefix(value, APIKeyPrefix)
}
