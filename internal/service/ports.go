package service

import (
	"context"
	"time"

	"github.com/capecontrol/capecontrol-auth/internal/model"
	"github.com/capecontrol/capecontrol-auth/internal/queue"
)

// UserStore is the credential store. repository.UserRepo and
// repository.MemoryStore implement it.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string, role model.Role, p model.Profile) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByID(ctx context.Context, id uint64) (model.User, error)
	UpdateProfile(ctx context.Context, id uint64, upd model.ProfileUpdate) (model.User, error)
	SetPasswordHash(ctx context.Context, id uint64, hash string) error
	TouchLogin(ctx context.Context, id uint64, at time.Time) error
	Deactivate(ctx context.Context, id uint64) error
}

// TokenLedger tracks refresh and reset tokens by hash. MarkUsed and
// RevokeActive must be atomic compare-and-set operations at the storage
// layer.
type TokenLedger interface {
	Record(ctx context.Context, userID uint64, typ model.TokenType, tokenHash string, exp time.Time, dev model.DeviceMeta) (model.TokenRecord, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeActive(ctx context.Context, tokenHash string, typ model.TokenType) error
	RevokeAll(ctx context.Context, userID uint64) (int64, error)
	IsActive(ctx context.Context, tokenHash string) (bool, error)
	FindActive(ctx context.Context, tokenHash string, typ model.TokenType) (model.TokenRecord, error)
	MarkUsed(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuditLog is the append-only audit trail.
type AuditLog interface {
	Append(ctx context.Context, e model.AuditEntry) error
	ListByUser(ctx context.Context, userID uint64, limit int) ([]model.AuditEntry, error)
}

// EarningsSource aggregates developer payouts owned by the billing service.
type EarningsSource interface {
	Summary(ctx context.Context, developerID uint64) (model.Earnings, error)
}

// ResetNotifier hands password reset events to the mail system.
type ResetNotifier interface {
	PublishPasswordReset(ctx context.Context, ev queue.PasswordResetRequested) error
}

// Denylist holds revoked access-token ids until they expire.
type Denylist interface {
	Add(ctx context.Context, jti string, until time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}
