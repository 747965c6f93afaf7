// Package auth provides the authentication primitives for the marketplace:
// long-lived API keys (bcrypt-hashed, shown once at creation) and short-lived
// session tokens. Request-time enforcement lives in internal/middleware.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// apiKeyBytes is the length of the random part of an API key.
	apiKeyBytes = 32

	// DisplayPrefixLength is how much of a key is safe to echo in listings.
	DisplayPrefixLength = 10

	bcryptCost = 12
)

// GenerateAPIKey creates a new random API key carrying the given prefix.
// Returns the full key (shown to the user exactly once), the bcrypt hash to
// store, and a short display prefix for listings.
func GenerateAPIKey(prefix string) (key string, hash string, displayPrefix string, err error) {
	randomBytes := make([]byte, apiKeyBytes)
	if _, err = rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	fullKey := prefix + base64.RawURLEncoding.EncodeToString(randomBytes)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash API key: %w", err)
	}

	display := fullKey
	if len(display) > DisplayPrefixLength {
		display = display[:DisplayPrefixLength]
	}

	return fullKey, string(hashBytes), display, nil
}

// ValidateAPIKey reports whether the provided key matches the stored hash.
func ValidateAPIKey(providedKey, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedKey)) == nil
}

// ExtractBearerToken pulls the credential out of an Authorization header.
// Expected format: "Bearer mkt_abc123..." or "Bearer <jwt>".
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("credential is empty after Bearer prefix")
	}
	return token, nil
}
