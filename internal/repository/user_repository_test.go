package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

var userCols = []string{"id", "email", "password_hash", "role", "is_active", "is_verified",
	"first_name", "last_name", "company", "phone", "created_at", "updated_at", "last_login_at"}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func TestUserRepo_CreateNormalisesEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("alice@example.com", "hash", "CUSTOMER", "Alice", "Doe", "", "").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(7, "alice@example.com", "hash", "CUSTOMER", true, false, "Alice", "Doe", "", "", now, now, nil))

	u, err := repo.Create(context.Background(), "  Alice@Example.COM ", "hash", model.RoleCustomer,
		model.Profile{FirstName: "Alice", LastName: "Doe"})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, model.RoleCustomer, u.Role)
	assert.True(t, u.IsActive)
	assert.Nil(t, u.LastLoginAt)
}

func TestUserRepo_CreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice@example.com' for key 'users.email'"})

	_, err := repo.Create(context.Background(), "ALICE@example.com", "hash", model.RoleCustomer, model.Profile{})
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserRepo_FindByEmailNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email=?")).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := repo.FindByEmail(context.Background(), "Ghost@Example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepo_FindByIDScansLastLogin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(3, "dev@example.com", "hash", "DEVELOPER", true, true, "", "", "Acme", "", now, now, now))

	u, err := repo.FindByID(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, model.RoleDeveloper, u.Role)
	assert.Equal(t, "Acme", u.Profile.Company)
	require.NotNil(t, u.LastLoginAt)
	assert.Equal(t, now, *u.LastLoginAt)
}

func TestUserRepo_UpdateProfilePartial(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)
	now := time.Now().UTC()
	company := "Cape Labs"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET")).
		WithArgs(nil, nil, "Cape Labs", nil, uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).
		WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(4, "bob@example.com", "hash", "CUSTOMER", true, false, "Bob", "", "Cape Labs", "", now, now, nil))

	u, err := repo.UpdateProfile(context.Background(), 4, model.ProfileUpdate{Company: &company})
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.Profile.FirstName)
	assert.Equal(t, "Cape Labs", u.Profile.Company)
}

func TestUserRepo_SetPasswordHashUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash=?")).
		WithArgs("new-hash", uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetPasswordHash(context.Background(), 99, "new-hash")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepo_Deactivate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET is_active=0")).
		WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), 5))
}
