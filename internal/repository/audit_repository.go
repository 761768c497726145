package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/capecontrol/capecontrol-auth/internal/model"
)

// AuditRepo appends to the `audit_entries` table. Rows are never updated.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Append stores one audit entry; metadata is serialised as JSON.
func (r *AuditRepo) Append(ctx context.Context, e model.AuditEntry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		meta = b
	}
	var uid sql.NullInt64
	if e.UserID != nil {
		uid = sql.NullInt64{Int64: int64(*e.UserID), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_entries (user_id,event_type,success,metadata) VALUES (?,?,?,?)",
		uid, string(e.Event), e.Success, meta)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByUser returns the newest entries for a user, newest first.
func (r *AuditRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,user_id,event_type,success,created_at,metadata FROM audit_entries WHERE user_id=? ORDER BY id DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var (
			e     model.AuditEntry
			uid   sql.NullInt64
			event string
			meta  []byte
		)
		if err := rows.Scan(&e.ID, &uid, &event, &e.Success, &e.CreatedAt, &meta); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Event = model.AuditEvent(event)
		if uid.Valid {
			v := uint64(uid.Int64)
			e.UserID = &v
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
