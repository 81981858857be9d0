package rules

import (
	"strings"

	"github.com/velmark/mailsearch/pkg/models"
)

// ApplyCut applies a matched filter's truncation markers to both bodies.
func ApplyCut(mail *models.ParsedMail, f *Filter) {
	if f.Rule.CutAfter != "" {
		CutAfter(mail, f.Rule.CutAfter)
	}
	if f.Rule.CutBefore != "" {
		CutBefore(mail, f.Rule.CutBefore)
	}
}

// CutAfter discards everything from the first case-insensitive occurrence
// of marker onward, marker included, in both the HTML and text bodies.
func CutAfter(mail *models.ParsedMail, marker string) {
	mail.HTML = cutAfter(mail.HTML, marker)
	mail.Text = cutAfter(mail.Text, marker)
}

// CutBefore discards everything up to and including the first
// case-insensitive occurrence of marker, keeping the remainder. When
// nothing follows the marker the marker itself is kept so the body is
// never rendered empty.
func CutBefore(mail *models.ParsedMail, marker string) {
	mail.HTML = cutBefore(mail.HTML, marker)
	mail.Text = cutBefore(mail.Text, marker)
}

// WipeBody clears both bodies. Applied to regex-only matches: those are
// existence signals, not content-disclosure events.
func WipeBody(mail *models.ParsedMail) {
	mail.HTML = ""
	mail.Text = ""
}

func cutAfter(body, marker string) string {
	idx := indexFold(body, marker)
	if idx < 0 {
		return body
	}
	return body[:idx]
}

func cutBefore(body, marker string) string {
	idx := indexFold(body, marker)
	if idx < 0 {
		return body
	}
	rest := body[idx+len(marker):]
	if rest == "" {
		// Keep the marker as a placeholder rather than an empty body.
		return body[idx : idx+len(marker)]
	}
	return rest
}

// indexFold finds the first case-insensitive occurrence of needle,
// comparing windows of the original haystack so the returned offset is
// always a valid byte index into it. Lowercasing the haystack first would
// shift offsets whenever folding changes a rune's encoded length.
func indexFold(haystack, needle string) int {
	if needle == "" || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if strings.EqualFold(haystack[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}
