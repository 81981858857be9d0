package mailparse

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkRewriter redirects anchor targets in HTML bodies through an opaque
// proxy URL so rendered mail never links directly to the origin.
type LinkRewriter struct {
	proxyBase      string
	trustedSenders []string
}

// NewLinkRewriter creates a rewriter. An empty proxy base disables rewriting.
func NewLinkRewriter(proxyBase string, trustedSenders []string) *LinkRewriter {
	return &LinkRewriter{proxyBase: proxyBase, trustedSenders: trustedSenders}
}

// Rewrite rewrites every anchor href in the document, skipping mailto: and
// in-page anchors. Mail from a trusted sender keeps its original links.
// Any parse failure returns the HTML unchanged.
func (r *LinkRewriter) Rewrite(html, from string) string {
	if r.proxyBase == "" || html == "" || r.isTrusted(from) {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		s.SetAttr("href", r.proxyBase+url.QueryEscape(href))
		s.SetAttr("target", "_blank")
	})

	rewritten, err := doc.Html()
	if err != nil {
		return html
	}
	return rewritten
}

func (r *LinkRewriter) isTrusted(from string) bool {
	lower := strings.ToLower(from)
	for _, trusted := range r.trustedSenders {
		if trusted != "" && strings.Contains(lower, strings.ToLower(trusted)) {
			return true
		}
	}
	return false
}
