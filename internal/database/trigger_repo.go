package database

import (
	"context"
	"fmt"
	"time"

	"github.com/velmark/mailsearch/pkg/models"
)

// AppendTriggerLogs inserts all audit rows for one orchestration run in a
// single transaction. Every row is a fresh insert; matches are never
// de-duplicated or updated.
func (db *DB) AppendTriggerLogs(ctx context.Context, entries []*models.TriggerLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trigger log tx: %w", err)
	}

	query := `
		INSERT INTO trigger_log (user_id, rule_id, email_key, searched_email, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, e := range entries {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx, query, e.UserID, e.RuleID, e.EmailKey, e.SearchedEmail, e.CreatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert trigger log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to commit trigger log: %w", err)
	}
	return nil
}

// ListTriggerLogsByUser returns a user's audit rows, newest first. Consumed
// by the admin log viewer.
func (db *DB) ListTriggerLogsByUser(ctx context.Context, userID int64, limit int) ([]*models.TriggerLogEntry, error) {
	var entries []*models.TriggerLogEntry
	query := `SELECT * FROM trigger_log WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	if err := db.SelectContext(ctx, &entries, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list trigger logs: %w", err)
	}
	return entries, nil
}
