package utils

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// MinBcryptCost is the lowest cost accepted by configuration.
const MinBcryptCost = 10

// bcrypt ignores input past 72 bytes and newer versions reject it outright.
const maxPasswordBytes = 72

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PasswordPolicy describes the strength rules for new passwords. The
// thresholds come from configuration.
type PasswordPolicy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// Check returns one message per violated rule; nil means the password
// is acceptable.
func (p PasswordPolicy) Check(password string) []string {
	var out []string
	if n := len([]rune(password)); n < p.MinLength {
		out = append(out, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if len(password) > maxPasswordBytes {
		out = append(out, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if p.RequireUpper && !upper {
		out = append(out, "must contain an uppercase letter")
	}
	if p.RequireLower && !lower {
		out = append(out, "must contain a lowercase letter")
	}
	if p.RequireDigit && !digit {
		out = append(out, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		out = append(out, "must contain a symbol")
	}
	return out
}
