// Package search composes permission resolution, the concurrent IMAP
// fetch, rule matching and trigger auditing into the one user-visible
// operation: find the single newest mail a requester may see.
package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/velmark/mailsearch/internal/database"
	"github.com/velmark/mailsearch/internal/permissions"
	"github.com/velmark/mailsearch/internal/rules"
	"github.com/velmark/mailsearch/pkg/models"
)

// Credential pools. The public pool backs the unrestricted search surface.
const (
	PoolMain   = "main"
	PoolPublic = "public"
)

// Fetcher is the IMAP fan-out the orchestrator drives.
type Fetcher interface {
	SearchAll(ctx context.Context, servers []*models.MailServer, to string, limitDays int) []*models.ParsedMail
	RawByMessageID(ctx context.Context, servers []*models.MailServer, messageID string) ([]byte, error)
	SearchForObserver(ctx context.Context, servers []*models.MailServer, since time.Time, sender string) []*models.ParsedMail
}

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetServiceByID(ctx context.Context, id int64) (*models.Service, error)
	GetActiveServers(ctx context.Context, pool string) ([]*models.MailServer, error)
	GetEnabledSecurityRules(ctx context.Context) ([]*models.SecurityRule, error)
	AppendTriggerLogs(ctx context.Context, entries []*models.TriggerLogEntry) error
}

// Orchestrator runs searches end to end.
type Orchestrator struct {
	store      Store
	resolver   *permissions.Resolver
	fetcher    Fetcher
	recentDays int
	logger     *slog.Logger
}

// New creates an orchestrator. recentDays is the phase-1 recency window.
func New(store Store, resolver *permissions.Resolver, fetcher Fetcher, recentDays int, logger *slog.Logger) *Orchestrator {
	if recentDays < 1 {
		recentDays = 2
	}
	return &Orchestrator{
		store:      store,
		resolver:   resolver,
		fetcher:    fetcher,
		recentDays: recentDays,
		logger:     logger.With("component", "search"),
	}
}

// Request describes one search.
type Request struct {
	ServiceID int64
	Address   string
	Requester *models.User // nil = anonymous
}

// Search returns the newest mail matching the requester's effective rules,
// or nil when nothing matches. Missing or disabled services and empty
// effective rule sets fail closed without any network I/O.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*models.ParsedMail, error) {
	return o.search(ctx, req, PoolMain)
}

// SearchPublic runs the identical algorithm against the public credential
// pool with no requester, so permission resolution always takes the
// anonymous path.
func (o *Orchestrator) SearchPublic(ctx context.Context, serviceID int64, address string) (*models.ParsedMail, error) {
	return o.search(ctx, Request{ServiceID: serviceID, Address: address}, PoolPublic)
}

func (o *Orchestrator) search(ctx context.Context, req Request, pool string) (*models.ParsedMail, error) {
	service, err := o.store.GetServiceByID(ctx, req.ServiceID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !service.IsEnabled {
		return nil, nil
	}

	set, err := o.resolver.Effective(ctx, service, req.Requester)
	if err != nil {
		return nil, err
	}
	if set.Empty() {
		return nil, nil
	}

	filters := rules.WrapFilters(set.Filters)
	regexes := rules.CompileRegexRules(set.Regexes, o.logger)

	servers, err := o.store.GetActiveServers(ctx, pool)
	if err != nil {
		return nil, err
	}

	// Phase 1: recent window only.
	mails := o.fetcher.SearchAll(ctx, servers, req.Address, o.recentDays)
	match, raw := scan(mails, filters, regexes)

	// Phase 2: unbounded history, only when the service carries a regex
	// flagged for escalation and the recent window came up empty.
	if match == nil && set.EscalationEligible() {
		o.logger.Debug("phase 1 empty, escalating to unbounded window", "service", service.ID)
		mails = o.fetcher.SearchAll(ctx, servers, req.Address, 0)
		match, raw = scan(mails, filters, regexes)
	}

	if match == nil {
		return nil, nil
	}

	o.logTriggers(ctx, req, raw)
	return match, nil
}

// scan walks results newest first and returns the first mail a filter or
// regex matches, in two forms: the post-processed copy handed to the
// caller (cut markers applied, regex-only bodies wiped) and the untouched
// fetched record. Security auditing runs over the latter, since cuts and
// wipes can remove the exact content a security rule looks for.
func scan(mails []*models.ParsedMail, filters []*rules.Filter, regexes []*rules.CompiledRegex) (match, raw *models.ParsedMail) {
	sortByInternalDateDesc(mails)

	for _, m := range mails {
		filter := rules.FirstMatchingFilter(m, filters)
		found := rules.ExtractRegexMatches(m, regexes)
		if filter == nil && len(found) == 0 {
			continue
		}

		// Work on a copy so repeated searches over the same fetched set
		// stay byte-identical.
		match = m.Clone()
		match.RegexMatches = found
		if filter != nil {
			match.FilterMatched = true
			rules.ApplyCut(match, filter)
		} else {
			rules.WipeBody(match)
		}
		return match, m
	}
	return nil, nil
}

// sortByInternalDateDesc orders newest first; mails without an internal
// date sort as oldest.
func sortByInternalDateDesc(mails []*models.ParsedMail) {
	sort.SliceStable(mails, func(i, j int) bool {
		return mails[i].InternalDate.After(mails[j].InternalDate)
	})
}

// RawLookup retrieves the original RFC822 bytes of a message by its
// Message-ID across the main pool. Nil bytes means no server has it.
func (o *Orchestrator) RawLookup(ctx context.Context, messageID string) ([]byte, error) {
	servers, err := o.store.GetActiveServers(ctx, PoolMain)
	if err != nil {
		return nil, err
	}
	return o.fetcher.RawByMessageID(ctx, servers, messageID)
}

// ObserverSweep runs the security-observer fan-out over the main pool:
// every mail received since the given instant, optionally narrowed to one
// sender.
func (o *Orchestrator) ObserverSweep(ctx context.Context, since time.Time, sender string) ([]*models.ParsedMail, error) {
	servers, err := o.store.GetActiveServers(ctx, PoolMain)
	if err != nil {
		return nil, err
	}
	return o.fetcher.SearchForObserver(ctx, servers, since, sender), nil
}

// logTriggers evaluates enabled security rules against the raw fetched
// mail, before any cut or wipe post-processing, and appends one audit row
// per hit, batched in a single transaction. Audit failure never fails the
// search.
func (o *Orchestrator) logTriggers(ctx context.Context, req Request, raw *models.ParsedMail) {
	if req.Requester == nil || req.Requester.IsAdmin {
		return
	}

	secRules, err := o.store.GetEnabledSecurityRules(ctx)
	if err != nil {
		o.logger.Error("failed to load security rules", "error", err)
		return
	}

	var entries []*models.TriggerLogEntry
	for _, rule := range rules.CompileSecurityRules(secRules, o.logger) {
		if rule.Matches(raw) {
			entries = append(entries, &models.TriggerLogEntry{
				UserID:        req.Requester.ID,
				RuleID:        rule.Rule.ID,
				EmailKey:      raw.Key(),
				SearchedEmail: req.Address,
			})
		}
	}
	if len(entries) == 0 {
		return
	}

	if err := o.store.AppendTriggerLogs(ctx, entries); err != nil {
		o.logger.Error("failed to write trigger log", "error", err, "user_id", req.Requester.ID)
	}
}
