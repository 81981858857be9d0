package models

import "time"

// ParsedMail is the in-memory record produced by the parser for a fetched
// message. It lives for one search request and is never persisted.
type ParsedMail struct {
	From          string `json:"from"`
	Subject       string `json:"subject"`
	Date          string `json:"date"` // original Date header, verbatim
	FormattedDate string `json:"formatted_date"`
	Text          string `json:"text"`
	HTML          string `json:"html"`
	MessageID     string `json:"message_id"`

	// InternalDate is the server-reported receipt time, used for ordering
	// results across servers before matching.
	InternalDate time.Time `json:"-"`

	// Derived during matching.
	FilterMatched bool               `json:"filter_matched"`
	RegexMatches  map[int64][]string `json:"regex_matches,omitempty"`
}

// Key identifies a mail for audit logging: the Message-ID when present,
// otherwise subject+date.
func (m *ParsedMail) Key() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return m.Subject + "|" + m.Date
}

// Body returns the concatenated text and HTML bodies, the haystack both the
// regex and keyword matchers scan.
func (m *ParsedMail) Body() string {
	return m.Text + m.HTML
}

// Clone returns a deep copy so matching never mutates a caller-held record.
func (m *ParsedMail) Clone() *ParsedMail {
	out := *m
	if m.RegexMatches != nil {
		out.RegexMatches = make(map[int64][]string, len(m.RegexMatches))
		for id, found := range m.RegexMatches {
			out.RegexMatches[id] = append([]string(nil), found...)
		}
	}
	return &out
}
