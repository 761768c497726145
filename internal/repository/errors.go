// Package repository implements persistence for accounts, the token
// ledger, the audit trail and the developer earnings read model. The MySQL
// repositories express every mutation as a single conditional statement so
// concurrent requests cannot lose updates; MemoryStore mirrors the same
// semantics under a mutex for development and tests.
package repository

import "errors"

// ErrEmailExists is returned by Create when the normalised email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrTokenNotFound is returned when a token hash is unknown or no longer
// active (revoked, expired or used).
var ErrTokenNotFound = errors.New("token not found")

// ErrAlreadyUsed is returned by MarkUsed when the conditional update found
// no unused, unrevoked, unexpired reset token for the hash.
var ErrAlreadyUsed = errors.New("token already used")
