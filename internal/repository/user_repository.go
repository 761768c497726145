package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const userColumns = "id,email,password_hash,role,is_active,is_verified,first_name,last_name,company,phone,created_at,updated_at,last_login_at"

// UserRepo is the MySQL credential store backed by the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns the stored row.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash string, role model.Role, p model.Profile) (model.User, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email,password_hash,role,first_name,last_name,company,phone) VALUES (?,?,?,?,?,?,?)",
		model.NormalizeEmail(email), passwordHash, string(role), p.FirstName, p.LastName, p.Company, p.Phone)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return r.FindByID(ctx, uint64(id))
}

// FindByEmail fetches a user by normalised email.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", model.NormalizeEmail(email))
	return scanUser(row)
}

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// UpdateProfile applies the non-nil fields of upd in one statement and
// returns the updated row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, upd model.ProfileUpdate) (model.User, error) {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET
			first_name=COALESCE(?, first_name),
			last_name=COALESCE(?, last_name),
			company=COALESCE(?, company),
			phone=COALESCE(?, phone),
			updated_at=UTC_TIMESTAMP()
		WHERE id=?`,
		upd.FirstName, upd.LastName, upd.Company, upd.Phone, id)
	if err != nil {
		return model.User{}, fmt.Errorf("update profile: %w", err)
	}
	return r.FindByID(ctx, id)
}

// SetPasswordHash replaces the stored bcrypt hash.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, updated_at=UTC_TIMESTAMP() WHERE id=?", hash, id)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// TouchLogin records a successful login time.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

// Deactivate soft-disables an account. The row is never deleted.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_active=0, updated_at=UTC_TIMESTAMP() WHERE id=? AND is_active=1", id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.IsActive, &u.IsVerified,
		&u.Profile.FirstName, &u.Profile.LastName, &u.Profile.Company, &u.Profile.Phone,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}
