package models

import (
	"database/sql"
	"time"
)

// User is a search requester. A user with ParentID set is a sub-user
// delegated by a principal account and is constrained to the subset of
// rules the parent chose to propagate.
type User struct {
	ID        int64         `db:"id"`
	Username  string        `db:"username"`
	IsAdmin   bool          `db:"is_admin"`
	ParentID  sql.NullInt64 `db:"parent_id"`
	IsActive  bool          `db:"is_active"`
	CreatedAt time.Time     `db:"created_at"`

	// Allow-lists, loaded from join tables.
	FilterIDs []int64 `db:"-"`
	RegexIDs  []int64 `db:"-"`

	// Subset a parent propagates to its sub-users. Only meaningful when the
	// user acts as a parent.
	SubuserFilterIDs []int64 `db:"-"`
	SubuserRegexIDs  []int64 `db:"-"`
}

// IsSubuser reports whether the user is a delegated sub-account.
func (u *User) IsSubuser() bool {
	return u.ParentID.Valid
}
