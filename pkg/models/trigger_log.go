package models

import "time"

// TriggerLogEntry is one append-only audit row: a non-admin user's search
// surfaced a mail matching a security rule. Every match is logged afresh,
// there is no de-duplication.
type TriggerLogEntry struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	RuleID        int64     `db:"rule_id"`
	EmailKey      string    `db:"email_key"` // Message-ID, or subject+date fallback
	SearchedEmail string    `db:"searched_email"`
	CreatedAt     time.Time `db:"created_at"`
}
