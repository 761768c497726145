package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

// EarningsRepo reads the `developer_earnings` table, which is owned and
// written by the billing service.
type EarningsRepo struct{ DB *sql.DB }

func NewEarningsRepo(db *sql.DB) *EarningsRepo { return &EarningsRepo{DB: db} }

// Summary aggregates all earnings rows for a developer.
func (r *EarningsRepo) Summary(ctx context.Context, developerID uint64) (model.Earnings, error) {
	var (
		s    = model.Earnings{DeveloperID: developerID}
		last sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount_cents),0), COUNT(*), MAX(earned_at) FROM developer_earnings WHERE developer_id=?",
		developerID).Scan(&s.TotalCents, &s.Entries, &last)
	if err != nil {
		return model.Earnings{}, fmt.Errorf("sum earnings: %w", err)
	}
	if last.Valid {
		t := last.Time
		s.LastEarnedAt = &t
	}
	return s, nil
}
