package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = bcrypt.DefaultCost

// HashAdminKey returns a bcrypt hash suitable for the admin_api_key setting.
func HashAdminKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

// IsHashed reports whether configured looks like a bcrypt hash.
func IsHashed(configured string) bool {
	return strings.HasPrefix(configured, "$2a$") ||
		strings.HasPrefix(configured, "$2b$") ||
		strings.HasPrefix(configured, "$2y$")
}

// CheckAdminKey compares a provided key against the configured one, which may
// be plain text or a bcrypt hash.
func CheckAdminKey(provided, configured string) bool {
	if provided == "" || configured == "" {
		return false
	}
	if IsHashed(configured) {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}
