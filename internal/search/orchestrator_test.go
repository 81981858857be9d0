package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velmark/mailsearch/internal/database"
	"github.com/velmark/mailsearch/internal/permissions"
	"github.com/velmark/mailsearch/pkg/models"
)

type fakeStore struct {
	service    *models.Service
	filters    []*models.FilterRule
	regexes    []*models.RegexRule
	escalation map[int64]bool
	secRules   []*models.SecurityRule
	servers    []*models.MailServer

	logged    []*models.TriggerLogEntry
	appendErr error
}

func (s *fakeStore) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	if s.service == nil || s.service.ID != id {
		return nil, database.ErrNotFound
	}
	return s.service, nil
}

func (s *fakeStore) GetActiveServers(ctx context.Context, pool string) ([]*models.MailServer, error) {
	return s.servers, nil
}

func (s *fakeStore) GetEnabledSecurityRules(ctx context.Context) ([]*models.SecurityRule, error) {
	return s.secRules, nil
}

func (s *fakeStore) AppendTriggerLogs(ctx context.Context, entries []*models.TriggerLogEntry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.logged = append(s.logged, entries...)
	return nil
}

// fakeStore doubles as the permission resolver's rule source.

func (s *fakeStore) GetServiceFilters(ctx context.Context, serviceID int64) ([]*models.FilterRule, error) {
	return s.filters, nil
}

func (s *fakeStore) GetServiceRegexes(ctx context.Context, serviceID int64) ([]*models.RegexRule, map[int64]bool, error) {
	return s.regexes, s.escalation, nil
}

func (s *fakeStore) EnabledFilterIDs(ctx context.Context) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, f := range s.filters {
		ids[f.ID] = true
	}
	return ids, nil
}

func (s *fakeStore) EnabledRegexIDs(ctx context.Context) (map[int64]bool, error) {
	ids := make(map[int64]bool)
	for _, r := range s.regexes {
		ids[r.ID] = true
	}
	return ids, nil
}

func (s *fakeStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return nil, database.ErrNotFound
}

type fakeFetcher struct {
	recent []*models.ParsedMail // returned for bounded windows
	full   []*models.ParsedMail // returned for unbounded history

	calls []int // limitDays per SearchAll call
}

func (f *fakeFetcher) SearchAll(ctx context.Context, servers []*models.MailServer, to string, limitDays int) []*models.ParsedMail {
	f.calls = append(f.calls, limitDays)
	if limitDays > 0 {
		return f.recent
	}
	return f.full
}

func (f *fakeFetcher) RawByMessageID(ctx context.Context, servers []*models.MailServer, messageID string) ([]byte, error) {
	return nil, nil
}

func (f *fakeFetcher) SearchForObserver(ctx context.Context, servers []*models.MailServer, since time.Time, sender string) []*models.ParsedMail {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(store *fakeStore, fetcher *fakeFetcher) *Orchestrator {
	return New(store, permissions.NewResolver(store), fetcher, 2, testLogger())
}

func testMail(subject, text string, age time.Duration) *models.ParsedMail {
	return &models.ParsedMail{
		From:         "noreply@sender.example",
		Subject:      subject,
		Text:         text,
		InternalDate: time.Now().Add(-age),
	}
}

func TestSearchEndToEnd(t *testing.T) {
	// Server 1 contributes nothing; server 2 has one mail carrying the
	// keyword. The merged union must surface exactly that record.
	store := &fakeStore{
		service: &models.Service{ID: 1, IsEnabled: true},
		filters: []*models.FilterRule{{ID: 1, Keyword: "CODE123", IsEnabled: true}},
		servers: []*models.MailServer{{ID: 1}, {ID: 2}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("hit", "your code is CODE123", time.Hour)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "box@x.example"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.FilterMatched)
	assert.Equal(t, "hit", got.Subject)
}

func TestSearchFailsClosed(t *testing.T) {
	fetcher := &fakeFetcher{recent: []*models.ParsedMail{testMail("x", "CODE123", time.Hour)}}

	cases := []struct {
		name  string
		store *fakeStore
	}{
		{"missing service", &fakeStore{}},
		{"disabled service", &fakeStore{
			service: &models.Service{ID: 1, IsEnabled: false},
			filters: []*models.FilterRule{{ID: 1, Keyword: "CODE123", IsEnabled: true}},
		}},
		{"empty rule set", &fakeStore{
			service: &models.Service{ID: 1, IsEnabled: true},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher.calls = nil
			got, err := newOrchestrator(tc.store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
			require.NoError(t, err)
			assert.Nil(t, got)
			// Fail closed means no network I/O at all.
			assert.Empty(t, fetcher.calls)
		})
	}
}

func TestSearchNewestFirst(t *testing.T) {
	store := &fakeStore{
		service: &models.Service{ID: 1, IsEnabled: true},
		filters: []*models.FilterRule{{ID: 1, Keyword: "code", IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{
			testMail("older", "code aaa", 3*time.Hour),
			testMail("newest", "code bbb", time.Minute),
			testMail("middle", "code ccc", time.Hour),
		},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "newest", got.Subject)
}

func TestRegexOnlyMatchWipesBody(t *testing.T) {
	store := &fakeStore{
		service: &models.Service{ID: 1, IsEnabled: true},
		regexes: []*models.RegexRule{{ID: 9, Pattern: `\b\d{6}\b`, IsEnabled: true}},
	}
	m := testMail("otp", "your code is 482913", time.Minute)
	m.HTML = "<p>backup code 571204</p>"
	fetcher := &fakeFetcher{recent: []*models.ParsedMail{m}}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.FilterMatched)
	assert.Empty(t, got.Text)
	assert.Empty(t, got.HTML)
	// Extraction covers both bodies.
	assert.Equal(t, []string{"482913", "571204"}, got.RegexMatches[9])

	// The fetched record itself is untouched.
	assert.Equal(t, "your code is 482913", m.Text)
}

func TestPhaseTwoEscalation(t *testing.T) {
	store := &fakeStore{
		service:    &models.Service{ID: 1, IsEnabled: true},
		regexes:    []*models.RegexRule{{ID: 9, Pattern: `\b[A-Z]{2}\b`, IsEnabled: true}},
		escalation: map[int64]bool{9: true},
	}
	fetcher := &fakeFetcher{
		recent: nil, // phase 1 finds nothing
		full:   []*models.ParsedMail{testMail("old mail", "country US detected", 90*24*time.Hour)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old mail", got.Subject)
	assert.Equal(t, []int{2, 0}, fetcher.calls)
}

func TestNoEscalationWithoutFlag(t *testing.T) {
	store := &fakeStore{
		service: &models.Service{ID: 1, IsEnabled: true},
		regexes: []*models.RegexRule{{ID: 9, Pattern: `\b[A-Z]{2}\b`, IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		full: []*models.ParsedMail{testMail("old mail", "country US detected", 90*24*time.Hour)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, []int{2}, fetcher.calls)
}

func TestSearchIdempotent(t *testing.T) {
	store := &fakeStore{
		service: &models.Service{ID: 1, IsEnabled: true},
		filters: []*models.FilterRule{{ID: 1, Keyword: "code", CutAfter: "footer", IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("m", "code 123 footer junk", time.Minute)},
	}
	o := newOrchestrator(store, fetcher)

	first, err := o.Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)
	second, err := o.Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "code 123 ", first.Text)
}

func TestTriggerLogging(t *testing.T) {
	user := &models.User{ID: 7, FilterIDs: []int64{1}}
	store := &fakeStore{
		service:  &models.Service{ID: 1, IsEnabled: true},
		filters:  []*models.FilterRule{{ID: 1, Keyword: "password", IsEnabled: true}},
		secRules: []*models.SecurityRule{{ID: 3, Pattern: `reset your password`, IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("reset", "please reset your password now", time.Minute)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "victim@x.example", Requester: user})
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Len(t, store.logged, 1)
	entry := store.logged[0]
	assert.Equal(t, int64(7), entry.UserID)
	assert.Equal(t, int64(3), entry.RuleID)
	assert.Equal(t, "victim@x.example", entry.SearchedEmail)
	assert.NotEmpty(t, entry.EmailKey)
}

func TestTriggerLoggingRegexOnlyMatch(t *testing.T) {
	// Regex-only matches wipe the bodies the caller sees. Auditing must
	// still run over the fetched content.
	user := &models.User{ID: 7, RegexIDs: []int64{9}}
	store := &fakeStore{
		service:  &models.Service{ID: 1, IsEnabled: true},
		regexes:  []*models.RegexRule{{ID: 9, Pattern: `\b\d{6}\b`, IsEnabled: true}},
		secRules: []*models.SecurityRule{{ID: 3, Pattern: `reset your password`, IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("reset", "reset your password with code 482913", time.Minute)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "victim@x.example", Requester: user})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Text)

	require.Len(t, store.logged, 1)
	assert.Equal(t, int64(3), store.logged[0].RuleID)
}

func TestTriggerLoggingSeesBodyBeforeCut(t *testing.T) {
	// A cut marker ahead of the trigger pattern must not hide it from
	// the audit trail.
	user := &models.User{ID: 7, FilterIDs: []int64{1}}
	store := &fakeStore{
		service:  &models.Service{ID: 1, IsEnabled: true},
		filters:  []*models.FilterRule{{ID: 1, Keyword: "code", CutAfter: "footer", IsEnabled: true}},
		secRules: []*models.SecurityRule{{ID: 3, Pattern: `reset your password`, IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("m", "your code 123 footer reset your password", time.Minute)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "victim@x.example", Requester: user})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotContains(t, got.Text, "reset your password")

	require.Len(t, store.logged, 1)
	assert.Equal(t, int64(3), store.logged[0].RuleID)
}

func TestTriggerLoggingSkippedForAnonymousAndAdmin(t *testing.T) {
	store := &fakeStore{
		service:  &models.Service{ID: 1, IsEnabled: true},
		filters:  []*models.FilterRule{{ID: 1, Keyword: "password", IsEnabled: true}},
		secRules: []*models.SecurityRule{{ID: 3, Pattern: `password`, IsEnabled: true}},
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("reset", "reset your password", time.Minute)},
	}
	o := newOrchestrator(store, fetcher)

	_, err := o.Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c"})
	require.NoError(t, err)
	_, err = o.Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c", Requester: &models.User{ID: 1, IsAdmin: true}})
	require.NoError(t, err)

	assert.Empty(t, store.logged)
}

func TestTriggerLogFailureDoesNotFailSearch(t *testing.T) {
	user := &models.User{ID: 7, FilterIDs: []int64{1}}
	store := &fakeStore{
		service:   &models.Service{ID: 1, IsEnabled: true},
		filters:   []*models.FilterRule{{ID: 1, Keyword: "password", IsEnabled: true}},
		secRules:  []*models.SecurityRule{{ID: 3, Pattern: `password`, IsEnabled: true}},
		appendErr: errors.New("disk full"),
	}
	fetcher := &fakeFetcher{
		recent: []*models.ParsedMail{testMail("reset", "reset your password", time.Minute)},
	}

	got, err := newOrchestrator(store, fetcher).Search(context.Background(), Request{ServiceID: 1, Address: "a@b.c", Requester: user})
	require.NoError(t, err)
	assert.NotNil(t, got)
}
