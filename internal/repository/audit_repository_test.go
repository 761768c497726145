package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

func TestAuditRepo_AppendWithoutUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_entries")).
		WithArgs(nil, "auth.login.failure", false, []byte(`{"email":"ghost@example.com","reason":"unknown_email"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Append(context.Background(), model.AuditEntry{
		Event:    model.AuditLoginFailure,
		Metadata: map[string]any{"email": "ghost@example.com", "reason": "unknown_email"},
	})
	require.NoError(t, err)
}

func TestAuditRepo_ListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAuditRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_entries WHERE user_id=?")).
		WithArgs(uint64(3), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_type", "success", "created_at", "metadata"}).
			AddRow(2, 3, "auth.logout", true, now, []byte(`{"all_sessions":true}`)).
			AddRow(1, 3, "auth.login.success", true, now, []byte(`{}`)))

	entries, err := repo.ListByUser(context.Background(), 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AuditLogout, entries[0].Event)
	assert.Equal(t, true, entries[0].Metadata["all_sessions"])
	require.NotNil(t, entries[1].UserID)
	assert.Equal(t, uint64(3), *entries[1].UserID)
}

func TestEarningsRepo_Summary(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEarningsRepo(db)
	last := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM developer_earnings WHERE developer_id=?")).
		WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"total", "count", "last"}).AddRow(12500, 3, last))

	s, err := repo.Summary(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, int64(12500), s.TotalCents)
	assert.Equal(t, int64(3), s.Entries)
	require.NotNil(t, s.LastEarnedAt)
	assert.Equal(t, last, *s.LastEarnedAt)
}
