package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

var tokenCols = []string{"id", "user_id", "token_type", "token_hash", "expires_at", "is_revoked", "created_at", "used_at", "user_agent", "ip"}

func TestTokenRepo_Record(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)
	exp := time.Now().UTC().Add(time.Hour)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_tokens")).
		WithArgs(uint64(1), "refresh", "h1", exp, "curl/8", "10.0.0.1").
		WillReturnResult(sqlmock.NewResult(11, 1))

	rec, err := repo.Record(context.Background(), 1, model.TokenRefresh, "h1", exp,
		model.DeviceMeta{UserAgent: "curl/8", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, uint64(11), rec.ID)
	assert.Equal(t, model.TokenRefresh, rec.Type)
	assert.True(t, rec.ExpiresAt.After(rec.CreatedAt))
}

func TestTokenRepo_RecordRejectsPastExpiry(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewTokenRepo(db)

	_, err := repo.Record(context.Background(), 1, model.TokenReset, "h", time.Now().Add(-time.Minute), model.DeviceMeta{})
	assert.Error(t, err)
}

func TestTokenRepo_RevokeIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE auth_tokens SET is_revoked=1 WHERE token_hash=? AND is_revoked=0")).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE auth_tokens SET is_revoked=1 WHERE token_hash=? AND is_revoked=0")).
		WithArgs("h1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Revoke(context.Background(), "h1"))
	require.NoError(t, repo.Revoke(context.Background(), "h1"), "second revoke is a no-op")
}

func TestTokenRepo_RevokeActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)
	q := regexp.QuoteMeta("UPDATE auth_tokens SET is_revoked=1 WHERE token_hash=? AND token_type=? AND is_revoked=0 AND used_at IS NULL")

	mock.ExpectExec(q).WithArgs("r1", "refresh").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("r1", "refresh").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.RevokeActive(context.Background(), "r1", model.TokenRefresh))
	assert.ErrorIs(t, repo.RevokeActive(context.Background(), "r1", model.TokenRefresh), ErrTokenNotFound,
		"the losing caller sees no row")
}

func TestTokenRepo_RevokeAllOnlyTouchesRefreshTokens(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE auth_tokens SET is_revoked=1 WHERE user_id=? AND token_type=?")).
		WithArgs(uint64(2), "refresh").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeAll(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestTokenRepo_MarkUsed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)
	q := regexp.QuoteMeta("UPDATE auth_tokens SET used_at=UTC_TIMESTAMP() WHERE token_hash=? AND token_type=? AND is_revoked=0 AND used_at IS NULL")

	mock.ExpectExec(q).WithArgs("reset-h", "reset").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("reset-h", "reset").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkUsed(context.Background(), "reset-h"))
	assert.ErrorIs(t, repo.MarkUsed(context.Background(), "reset-h"), ErrAlreadyUsed)
}

func TestTokenRepo_FindActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_tokens WHERE token_hash=? AND token_type=?")).
		WithArgs("h1", "refresh").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow(5, 9, "refresh", "h1", now.Add(time.Hour), false, now, nil, "ua", "ip"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM auth_tokens WHERE token_hash=? AND token_type=?")).
		WithArgs("gone", "refresh").
		WillReturnRows(sqlmock.NewRows(tokenCols))

	rec, err := repo.FindActive(context.Background(), "h1", model.TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), rec.UserID)
	assert.Nil(t, rec.UsedAt)
	assert.Equal(t, "ua", rec.Device.UserAgent)

	_, err = repo.FindActive(context.Background(), "gone", model.TokenRefresh)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRepo_IsActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(")).
		WithArgs("h1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(")).
		WithArgs("h2").
		WillReturnError(errors.New("connection reset"))

	ok, err := repo.IsActive(context.Background(), "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.IsActive(context.Background(), "h2")
	assert.Error(t, err)
}

func TestTokenRepo_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTokenRepo(db)
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_tokens WHERE expires_at < ?")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
