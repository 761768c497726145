package model

import "time"

// TokenType distinguishes the rows kept in the `auth_tokens` ledger.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
	TokenReset   TokenType = "reset"
)

// DeviceMeta is advisory client information captured at issuance.
// It is never used for security decisions.
type DeviceMeta struct {
	UserAgent string
	IP        string
}

// TokenRecord models one row of the `auth_tokens` table. Only the
// SHA-256 hash of the raw token is stored.
//
// A record is mutated only to set IsRevoked or UsedAt.
type TokenRecord struct {
	ID        uint64     // auth_tokens.id
	UserID    uint64     // auth_tokens.user_id
	Type      TokenType  // auth_tokens.token_type
	TokenHash string     // auth_tokens.token_hash
	ExpiresAt time.Time  // auth_tokens.expires_at
	IsRevoked bool       // auth_tokens.is_revoked
	CreatedAt time.Time  // auth_tokens.created_at
	UsedAt    *time.Time // auth_tokens.used_at (nullable)
	Device    DeviceMeta // auth_tokens.user_agent, ip
}

// ActiveAt reports whether the record can still be presented at now.
func (t TokenRecord) ActiveAt(now time.Time) bool {
	if t.IsRevoked || !now.Before(t.ExpiresAt) {
		return false
	}
	if t.Type == TokenReset && t.UsedAt != nil {
		return false
	}
	return true
}
