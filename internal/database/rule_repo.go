package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/velmark/mailsearch/pkg/models"
)

// GetServiceByID returns a service by ID.
func (db *DB) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	var svc models.Service
	query := `SELECT * FROM services WHERE id = ?`
	err := db.GetContext(ctx, &svc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

// GetServiceFilters returns the enabled filter rules attached to a service,
// in stable rule order. Rule order matters: the first matching filter wins.
func (db *DB) GetServiceFilters(ctx context.Context, serviceID int64) ([]*models.FilterRule, error) {
	var filters []*models.FilterRule
	query := `
		SELECT f.* FROM filters f
		JOIN service_filters sf ON sf.filter_id = f.id
		WHERE sf.service_id = ? AND f.is_enabled = true
		ORDER BY f.id
	`
	err := db.SelectContext(ctx, &filters, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get service filters: %w", err)
	}
	return filters, nil
}

// GetServiceRegexes returns the enabled regex rules attached to a service
// and the set of regex IDs flagged escalation-eligible for that service.
func (db *DB) GetServiceRegexes(ctx context.Context, serviceID int64) ([]*models.RegexRule, map[int64]bool, error) {
	var rows []struct {
		models.RegexRule
		EscalationEligible bool `db:"escalation_eligible"`
	}
	query := `
		SELECT r.*, sr.escalation_eligible FROM regexes r
		JOIN service_regexes sr ON sr.regex_id = r.id
		WHERE sr.service_id = ? AND r.is_enabled = true
		ORDER BY r.id
	`
	if err := db.SelectContext(ctx, &rows, query, serviceID); err != nil {
		return nil, nil, fmt.Errorf("failed to get service regexes: %w", err)
	}

	regexes := make([]*models.RegexRule, 0, len(rows))
	escalation := make(map[int64]bool)
	for i := range rows {
		rule := rows[i].RegexRule
		regexes = append(regexes, &rule)
		if rows[i].EscalationEligible {
			escalation[rule.ID] = true
		}
	}
	return regexes, escalation, nil
}

// EnabledFilterIDs returns the IDs of all globally enabled filter rules.
// Read live on every resolution so a system-wide disable takes effect
// immediately without touching any user's allow-list.
func (db *DB) EnabledFilterIDs(ctx context.Context) (map[int64]bool, error) {
	return db.enabledIDs(ctx, `SELECT id FROM filters WHERE is_enabled = true`)
}

// EnabledRegexIDs returns the IDs of all globally enabled regex rules.
func (db *DB) EnabledRegexIDs(ctx context.Context) (map[int64]bool, error) {
	return db.enabledIDs(ctx, `SELECT id FROM regexes WHERE is_enabled = true`)
}

func (db *DB) enabledIDs(ctx context.Context, query string) (map[int64]bool, error) {
	var ids []int64
	if err := db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to get enabled rule ids: %w", err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// GetEnabledSecurityRules returns all enabled security rules.
func (db *DB) GetEnabledSecurityRules(ctx context.Context) ([]*models.SecurityRule, error) {
	var rules []*models.SecurityRule
	query := `SELECT * FROM security_rules WHERE is_enabled = true ORDER BY id`
	err := db.SelectContext(ctx, &rules, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get security rules: %w", err)
	}
	return rules, nil
}
