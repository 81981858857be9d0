// Package permissions computes the effective rule set a requester may use
// for a service. Three authorities can each restrict access: the service's
// enabled set, the requester's personal allow-list, and, for sub-users,
// the parent's propagation choice. All three must agree.
package permissions

import (
	"context"
	"fmt"

	"github.com/velmark/mailsearch/pkg/models"
)

// RuleSource supplies live rule state. Global enabled state is re-queried
// on every resolution so a system-wide disable takes effect immediately.
type RuleSource interface {
	GetServiceFilters(ctx context.Context, serviceID int64) ([]*models.FilterRule, error)
	GetServiceRegexes(ctx context.Context, serviceID int64) ([]*models.RegexRule, map[int64]bool, error)
	EnabledFilterIDs(ctx context.Context) (map[int64]bool, error)
	EnabledRegexIDs(ctx context.Context) (map[int64]bool, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Resolver resolves effective rule sets.
type Resolver struct {
	source RuleSource
}

// NewResolver creates a resolver over a rule source.
func NewResolver(source RuleSource) *Resolver {
	return &Resolver{source: source}
}

// RuleSet is the outcome of a resolution: the filters and regexes the
// requester may use, plus the service's escalation-eligible regex IDs.
type RuleSet struct {
	Filters    []*models.FilterRule
	Regexes    []*models.RegexRule
	Escalation map[int64]bool
}

// Empty reports whether the requester has nothing to match with.
func (rs *RuleSet) Empty() bool {
	return len(rs.Filters) == 0 && len(rs.Regexes) == 0
}

// EscalationEligible reports whether any effective regex is flagged for
// the unbounded-window fallback search.
func (rs *RuleSet) EscalationEligible() bool {
	for _, r := range rs.Regexes {
		if rs.Escalation[r.ID] {
			return true
		}
	}
	return false
}

// Effective computes the rule set for a requester. A nil requester
// (anonymous) and the admin principal get the service's full enabled set;
// everyone else is intersected with their allow-list, the live global
// enabled set, and, for sub-users, the parent's propagated defaults.
func (r *Resolver) Effective(ctx context.Context, service *models.Service, requester *models.User) (*RuleSet, error) {
	filters, err := r.source.GetServiceFilters(ctx, service.ID)
	if err != nil {
		return nil, err
	}
	regexes, escalation, err := r.source.GetServiceRegexes(ctx, service.ID)
	if err != nil {
		return nil, err
	}

	set := &RuleSet{Filters: filters, Regexes: regexes, Escalation: escalation}
	if requester == nil || requester.IsAdmin {
		return set, nil
	}

	enabledFilters, err := r.source.EnabledFilterIDs(ctx)
	if err != nil {
		return nil, err
	}
	enabledRegexes, err := r.source.EnabledRegexIDs(ctx)
	if err != nil {
		return nil, err
	}

	allowedFilters := intersect(toSet(requester.FilterIDs), enabledFilters)
	allowedRegexes := intersect(toSet(requester.RegexIDs), enabledRegexes)

	if requester.IsSubuser() {
		parent, err := r.source.GetUserByID(ctx, requester.ParentID.Int64)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent user: %w", err)
		}
		allowedFilters = intersect(allowedFilters, toSet(parent.SubuserFilterIDs))
		allowedRegexes = intersect(allowedRegexes, toSet(parent.SubuserRegexIDs))
	}

	set.Filters = keepAllowedFilters(filters, allowedFilters)
	set.Regexes = keepAllowedRegexes(regexes, allowedRegexes)
	return set, nil
}

func keepAllowedFilters(in []*models.FilterRule, allowed map[int64]bool) []*models.FilterRule {
	out := make([]*models.FilterRule, 0, len(in))
	for _, f := range in {
		if allowed[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

func keepAllowedRegexes(in []*models.RegexRule, allowed map[int64]bool) []*models.RegexRule {
	out := make([]*models.RegexRule, 0, len(in))
	for _, r := range in {
		if allowed[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func intersect(a, b map[int64]bool) map[int64]bool {
	out := make(map[int64]bool)
	for id := range a {
		if b[id] {
			out[id] = true
		}
	}
	return out
}
