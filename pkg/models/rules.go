package models

import "time"

// FilterRule selects a mail by sender and/or keyword substring and can
// optionally truncate the body around a marker.
type FilterRule struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Sender    string    `db:"sender"`  // substring of the From header, empty = any
	Keyword   string    `db:"keyword"` // substring of the body, empty = any
	CutAfter  string    `db:"cut_after"`
	CutBefore string    `db:"cut_before"`
	IsEnabled bool      `db:"is_enabled"`
	CreatedAt time.Time `db:"created_at"`
}

// RegexRule is a pattern-based existence/extraction match against the body.
type RegexRule struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Sender    string    `db:"sender"` // substring of the From header, empty = any
	Pattern   string    `db:"pattern"`
	IsEnabled bool      `db:"is_enabled"`
	CreatedAt time.Time `db:"created_at"`
}

// SecurityRule decides whether a matched mail generates an audit log entry.
type SecurityRule struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Sender    string    `db:"sender"`
	Pattern   string    `db:"pattern"`
	IsEnabled bool      `db:"is_enabled"`
	CreatedAt time.Time `db:"created_at"`
}

// Service scopes a search: only the service's enabled filters and regexes
// are candidates for matching.
type Service struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	IsEnabled  bool      `db:"is_enabled"`
	Visibility string    `db:"visibility"` // "public" or "private"
	CreatedAt  time.Time `db:"created_at"`
}

// ServiceRegex is the service<->regex association row. EscalationEligible
// marks regexes whose absence of a recent match justifies repeating the
// search with an unbounded history window.
type ServiceRegex struct {
	ServiceID          int64 `db:"service_id"`
	RegexID            int64 `db:"regex_id"`
	EscalationEligible bool  `db:"escalation_eligible"`
}
