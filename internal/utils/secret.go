package utils

import (
	"errors"
	"fmt"
)

// Secrets that show up in sample configs and must never sign production tokens.
var knownWeakSecrets = map[string]bool{
	"changeme":    true,
	"secret":      true,
	"password":    true,
	"test":        true,
	"dev":         true,
	"development": true,
	"jwt-secret":  true,
}

const minSecretLen = 32

// ValidateSecret checks the JWT signing key. Development environments may
// use short or well-known secrets; production requires at least 32 bytes.
func ValidateSecret(secret string, isDev bool) error {
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if isDev {
		return nil
	}
	if knownWeakSecrets[secret] {
		return errors.New("default/weak JWT secret not allowed outside development")
	}
	if len(secret) < minSecretLen {
		return fmt.Errorf("JWT secret must be at least %d characters (got %d)", minSecretLen, len(secret))
	}
	return nil
}
