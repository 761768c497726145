package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

const tokenColumns = "id,user_id,token_type,token_hash,expires_at,is_revoked,created_at,used_at,user_agent,ip"

// activeClause matches rows that can still be presented.
const activeClause = "is_revoked=0 AND used_at IS NULL AND expires_at > UTC_TIMESTAMP()"

// TokenRepo is the MySQL token ledger backed by `auth_tokens`. Raw tokens
// never reach this layer; callers pass SHA-256 hashes.
type TokenRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, now: time.Now} }

// Record inserts a ledger row for a freshly issued token.
func (r *TokenRepo) Record(ctx context.Context, userID uint64, typ model.TokenType, tokenHash string, exp time.Time, dev model.DeviceMeta) (model.TokenRecord, error) {
	now := r.now().UTC()
	if !exp.After(now) {
		return model.TokenRecord{}, fmt.Errorf("record %s token: expiry %s is not in the future", typ, exp)
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO auth_tokens (user_id,token_type,token_hash,expires_at,user_agent,ip) VALUES (?,?,?,?,?,?)",
		userID, string(typ), tokenHash, exp.UTC(), truncate(dev.UserAgent, 255), truncate(dev.IP, 64))
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("record %s token: %w", typ, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.TokenRecord{}, fmt.Errorf("record %s token: %w", typ, err)
	}
	return model.TokenRecord{
		ID:        uint64(id),
		UserID:    userID,
		Type:      typ,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: now,
		Device:    dev,
	}, nil
}

// Revoke marks a token revoked. Revoking twice is a no-op.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE auth_tokens SET is_revoked=1 WHERE token_hash=? AND is_revoked=0", tokenHash)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// RevokeActive revokes a live token of the given type. The update is
// conditional on the row still being active, so of two concurrent callers
// presenting the same token exactly one gets nil; the other gets
// ErrTokenNotFound.
func (r *TokenRepo) RevokeActive(ctx context.Context, tokenHash string, typ model.TokenType) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE auth_tokens SET is_revoked=1 WHERE token_hash=? AND token_type=? AND "+activeClause,
		tokenHash, string(typ))
	if err != nil {
		return fmt.Errorf("revoke active token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke active token: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// RevokeAll revokes every active refresh token of a user and reports how
// many rows changed.
func (r *TokenRepo) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE auth_tokens SET is_revoked=1 WHERE user_id=? AND token_type=? AND "+activeClause,
		userID, string(model.TokenRefresh))
	if err != nil {
		return 0, fmt.Errorf("revoke all tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// IsActive reports whether the hash belongs to a live token of any type.
func (r *TokenRepo) IsActive(ctx context.Context, tokenHash string) (bool, error) {
	var ok bool
	err := r.DB.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM auth_tokens WHERE token_hash=? AND "+activeClause+")",
		tokenHash).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return ok, nil
}

// FindActive returns the live token of the given type for the hash.
func (r *TokenRepo) FindActive(ctx context.Context, tokenHash string, typ model.TokenType) (model.TokenRecord, error) {
	var (
		t      model.TokenRecord
		ttype  string
		usedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM auth_tokens WHERE token_hash=? AND token_type=? AND "+activeClause+" LIMIT 1",
		tokenHash, string(typ)).
		Scan(&t.ID, &t.UserID, &ttype, &t.TokenHash, &t.ExpiresAt, &t.IsRevoked, &t.CreatedAt, &usedAt, &t.Device.UserAgent, &t.Device.IP)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.TokenRecord{}, ErrTokenNotFound
		}
		return model.TokenRecord{}, fmt.Errorf("find token: %w", err)
	}
	t.Type = model.TokenType(ttype)
	if usedAt.Valid {
		u := usedAt.Time
		t.UsedAt = &u
	}
	return t, nil
}

// MarkUsed consumes a reset token. The conditional update only moves
// used_at away from NULL, so of two concurrent callers exactly one wins.
func (r *TokenRepo) MarkUsed(ctx context.Context, tokenHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE auth_tokens SET used_at=UTC_TIMESTAMP() WHERE token_hash=? AND token_type=? AND "+activeClause,
		tokenHash, string(model.TokenReset))
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	if n == 0 {
		return ErrAlreadyUsed
	}
	return nil
}

// DeleteExpired removes rows that expired before the cutoff. It backs the
// periodic sweep run by `server migrate --sweep`.
func (r *TokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM auth_tokens WHERE expires_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
