// Package rules implements matching of parsed mail against filter, regex
// and security rules, plus the body truncation applied on a filter match.
package rules

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/velmark/mailsearch/pkg/models"
)

// Rule is the capability shared by all compiled rule variants.
type Rule interface {
	// Matches reports whether the rule applies to the mail.
	Matches(mail *models.ParsedMail) bool
}

// CompiledRegex is a regex rule whose pattern compiled successfully.
// Patterns run case-insensitive, multiline, with dot matching newlines.
type CompiledRegex struct {
	Rule models.RegexRule
	re   *regexp.Regexp
}

// Matches reports whether the sender constraint holds and the pattern is
// found in the mail body.
func (c *CompiledRegex) Matches(mail *models.ParsedMail) bool {
	if !senderMatches(c.Rule.Sender, mail.From) {
		return false
	}
	return c.re.MatchString(mail.Body())
}

// FindAll returns every pattern occurrence in the mail body.
func (c *CompiledRegex) FindAll(mail *models.ParsedMail) []string {
	if !senderMatches(c.Rule.Sender, mail.From) {
		return nil
	}
	return c.re.FindAllString(mail.Body(), -1)
}

// CompiledSecurity is a security rule with a compiled trigger pattern.
type CompiledSecurity struct {
	Rule models.SecurityRule
	re   *regexp.Regexp
}

// Matches reports whether the mail would trigger an audit log entry.
func (c *CompiledSecurity) Matches(mail *models.ParsedMail) bool {
	if !senderMatches(c.Rule.Sender, mail.From) {
		return false
	}
	return c.re.MatchString(mail.Body())
}

// Filter wraps a filter rule under the shared Rule capability.
type Filter struct {
	Rule models.FilterRule
}

// Matches reports whether both the sender and keyword constraints hold.
// An empty constraint always holds.
func (f *Filter) Matches(mail *models.ParsedMail) bool {
	if !senderMatches(f.Rule.Sender, mail.From) {
		return false
	}
	if f.Rule.Keyword == "" {
		return true
	}
	return containsFold(mail.Body(), f.Rule.Keyword)
}

// CompileRegexRules compiles a rule set once per load. Rules with invalid
// patterns are logged and skipped; they must never fail the set.
func CompileRegexRules(rulesIn []*models.RegexRule, logger *slog.Logger) []*CompiledRegex {
	compiled := make([]*CompiledRegex, 0, len(rulesIn))
	for _, r := range rulesIn {
		re, err := regexp.Compile("(?ims)" + r.Pattern)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping invalid regex rule", "rule_id", r.ID, "error", err)
			}
			continue
		}
		compiled = append(compiled, &CompiledRegex{Rule: *r, re: re})
	}
	return compiled
}

// CompileSecurityRules compiles security rules, skipping invalid patterns.
func CompileSecurityRules(rulesIn []*models.SecurityRule, logger *slog.Logger) []*CompiledSecurity {
	compiled := make([]*CompiledSecurity, 0, len(rulesIn))
	for _, r := range rulesIn {
		re, err := regexp.Compile("(?ims)" + r.Pattern)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping invalid security rule", "rule_id", r.ID, "error", err)
			}
			continue
		}
		compiled = append(compiled, &CompiledSecurity{Rule: *r, re: re})
	}
	return compiled
}

// WrapFilters wraps filter rows preserving iteration order.
func WrapFilters(rulesIn []*models.FilterRule) []*Filter {
	out := make([]*Filter, 0, len(rulesIn))
	for _, r := range rulesIn {
		out = append(out, &Filter{Rule: *r})
	}
	return out
}

func senderMatches(want, from string) bool {
	if want == "" {
		return true
	}
	return containsFold(from, want)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
