package rules

import "github.com/velmark/mailsearch/pkg/models"

// FirstMatchingFilter iterates filters in the given order and returns the
// first whose constraints hold. First wins; there is no scoring.
func FirstMatchingFilter(mail *models.ParsedMail, filters []*Filter) *Filter {
	for _, f := range filters {
		if f.Matches(mail) {
			return f
		}
	}
	return nil
}

// AnyRegexMatches reports whether at least one compiled regex matches.
func AnyRegexMatches(mail *models.ParsedMail, regexes []*CompiledRegex) bool {
	for _, r := range regexes {
		if r.Matches(mail) {
			return true
		}
	}
	return false
}

// ExtractRegexMatches runs every compiled regex against the mail and
// returns found substrings keyed by rule ID. Rules with no occurrences
// are omitted.
func ExtractRegexMatches(mail *models.ParsedMail, regexes []*CompiledRegex) map[int64][]string {
	matches := make(map[int64][]string)
	for _, r := range regexes {
		if found := r.FindAll(mail); len(found) > 0 {
			matches[r.Rule.ID] = found
		}
	}
	return matches
}
