package model

import (
	"strings"
	"time"
)

// Role is the closed set of account roles. The value is what gets
// embedded in access tokens and stored in users.role.
type Role string

const (
	RoleCustomer  Role = "CUSTOMER"
	RoleDeveloper Role = "DEVELOPER"
	RoleAdmin     Role = "ADMIN"
)

// ParseRole normalises s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleCustomer, RoleDeveloper, RoleAdmin:
		return r, true
	}
	return "", false
}

func (r Role) String() string { return string(r) }

// Profile holds the user-editable fields of an account.
type Profile struct {
	FirstName string
	LastName  string
	Company   string
	Phone     string
}

// ProfileUpdate is a partial profile edit. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Company   *string
	Phone     *string
}

// Empty reports whether the update would change nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Company == nil && u.Phone == nil
}

// Apply copies the non-nil fields of u onto p.
func (u ProfileUpdate) Apply(p Profile) Profile {
	if u.FirstName != nil {
		p.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		p.LastName = *u.LastName
	}
	if u.Company != nil {
		p.Company = *u.Company
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	return p
}

// User mirrors a row of the `users` table.
//
// Email is stored lower-cased so uniqueness and lookups are
// case-insensitive. Users are never deleted; IsActive=false marks a
// deactivated account.
type User struct {
	ID           uint64     // users.id
	Email        string     // users.email
	PasswordHash string     // users.password_hash
	Role         Role       // users.role
	IsActive     bool       // users.is_active
	IsVerified   bool       // users.is_verified
	Profile      Profile    // users.first_name, last_name, company, phone
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
	LastLoginAt  *time.Time // users.last_login_at (nullable)
}

// NormalizeEmail is the canonical form used for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
