package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

// MemoryStore implements the credential store, token ledger, audit log and
// earnings reader in process memory. It backs STORE_DRIVER=memory in
// development and the service tests. Each method holds the lock for its
// whole read-check-write so it has the same atomicity as the conditional
// SQL statements.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	nextUser uint64
	nextTok  uint64
	nextAud  uint64
	users    map[uint64]model.User
	byEmail  map[string]uint64
	tokens   map[string]model.TokenRecord // keyed by hash
	audit    []model.AuditEntry
	earnings map[uint64][]earning
}

type earning struct {
	cents int64
	at    time.Time
}

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		users:    map[uint64]model.User{},
		byEmail:  map[string]uint64{},
		tokens:   map[string]model.TokenRecord{},
		earnings: map[uint64][]earning{},
	}
}

// SetClock replaces the time source; used by tests to age tokens.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Create(_ context.Context, email, passwordHash string, role model.Role, p model.Profile) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = model.NormalizeEmail(email)
	if _, ok := m.byEmail[email]; ok {
		return model.User{}, ErrEmailExists
	}
	m.nextUser++
	now := m.now().UTC()
	u := model.User{
		ID:           m.nextUser,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		Profile:      p,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[u.ID] = u
	m.byEmail[email] = u.ID
	return u, nil
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) FindByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) UpdateProfile(_ context.Context, id uint64, upd model.ProfileUpdate) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrUserNotFound
	}
	u.Profile = upd.Apply(u.Profile)
	u.UpdatedAt = m.now().UTC()
	m.users[id] = u
	return u, nil
}

func (m *MemoryStore) SetPasswordHash(_ context.Context, id uint64, hash string) error {
	return m.mutateUser(id, func(u *model.User) { u.PasswordHash = hash })
}

func (m *MemoryStore) TouchLogin(_ context.Context, id uint64, at time.Time) error {
	at = at.UTC()
	return m.mutateUser(id, func(u *model.User) { u.LastLoginAt = &at })
}

func (m *MemoryStore) Deactivate(_ context.Context, id uint64) error {
	return m.mutateUser(id, func(u *model.User) { u.IsActive = false })
}

func (m *MemoryStore) mutateUser(id uint64, fn func(*model.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(&u)
	u.UpdatedAt = m.now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemoryStore) Record(_ context.Context, userID uint64, typ model.TokenType, tokenHash string, exp time.Time, dev model.DeviceMeta) (model.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	if !exp.After(now) {
		return model.TokenRecord{}, fmt.Errorf("record %s token: expiry %s is not in the future", typ, exp)
	}
	if _, ok := m.users[userID]; !ok {
		return model.TokenRecord{}, fmt.Errorf("record %s token: %w", typ, ErrUserNotFound)
	}
	if _, dup := m.tokens[tokenHash]; dup {
		return model.TokenRecord{}, fmt.Errorf("record %s token: duplicate hash", typ)
	}
	m.nextTok++
	rec := model.TokenRecord{
		ID:        m.nextTok,
		UserID:    userID,
		Type:      typ,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: now,
		Device:    dev,
	}
	m.tokens[tokenHash] = rec
	return rec, nil
}

func (m *MemoryStore) Revoke(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.tokens[tokenHash]; ok && !rec.IsRevoked {
		rec.IsRevoked = true
		m.tokens[tokenHash] = rec
	}
	return nil
}

func (m *MemoryStore) RevokeActive(_ context.Context, tokenHash string, typ model.TokenType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[tokenHash]
	if !ok || rec.Type != typ || !rec.ActiveAt(m.now()) {
		return ErrTokenNotFound
	}
	rec.IsRevoked = true
	m.tokens[tokenHash] = rec
	return nil
}

func (m *MemoryStore) RevokeAll(_ context.Context, userID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var n int64
	for h, rec := range m.tokens {
		if rec.UserID == userID && rec.Type == model.TokenRefresh && rec.ActiveAt(now) {
			rec.IsRevoked = true
			m.tokens[h] = rec
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) IsActive(_ context.Context, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[tokenHash]
	return ok && rec.ActiveAt(m.now()), nil
}

func (m *MemoryStore) FindActive(_ context.Context, tokenHash string, typ model.TokenType) (model.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[tokenHash]
	if !ok || rec.Type != typ || !rec.ActiveAt(m.now()) {
		return model.TokenRecord{}, ErrTokenNotFound
	}
	return rec, nil
}

func (m *MemoryStore) MarkUsed(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	rec, ok := m.tokens[tokenHash]
	if !ok || rec.Type != model.TokenReset || !rec.ActiveAt(now) {
		return ErrAlreadyUsed
	}
	used := now.UTC()
	rec.UsedAt = &used
	m.tokens[tokenHash] = rec
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, rec := range m.tokens {
		if rec.ExpiresAt.Before(before) {
			delete(m.tokens, h)
			n++
		}
	}
	return n, nil
}

// Tokens returns a snapshot of a user's ledger rows ordered by id.
func (m *MemoryStore) Tokens(userID uint64) []model.TokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TokenRecord
	for _, rec := range m.tokens {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TokenCount reports how many ledger rows exist in total.
func (m *MemoryStore) TokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

func (m *MemoryStore) Append(_ context.Context, e model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAud++
	e.ID = m.nextAud
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now().UTC()
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID uint64, limit int) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	var out []model.AuditEntry
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if e := m.audit[i]; e.UserID != nil && *e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AuditEntries returns every entry in insertion order.
func (m *MemoryStore) AuditEntries() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry(nil), m.audit...)
}

// AddEarning seeds a payout row for a developer.
func (m *MemoryStore) AddEarning(developerID uint64, cents int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earnings[developerID] = append(m.earnings[developerID], earning{cents: cents, at: at.UTC()})
}

func (m *MemoryStore) Summary(_ context.Context, developerID uint64) (model.Earnings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Earnings{DeveloperID: developerID}
	for _, e := range m.earnings[developerID] {
		s.TotalCents += e.cents
		s.Entries++
		if s.LastEarnedAt == nil || e.at.After(*s.LastEarnedAt) {
			at := e.at
			s.LastEarnedAt = &at
		}
	}
	return s, nil
}
