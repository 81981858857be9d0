// Package mailparse turns raw RFC822 bytes into a structured mail record.
// Parsing never fails: decode, charset and MIME errors degrade to empty
// fields instead of propagating.
package mailparse

import (
	"bytes"
	"io"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	// Register charset decoders (windows-1251, iso-8859-*, koi8-r, etc.)
	_ "github.com/emersion/go-message/charset"

	"github.com/velmark/mailsearch/pkg/models"
)

const displayDateFormat = "02.01.2006 15:04"

// Parser converts raw messages into ParsedMail records.
type Parser struct {
	rewriter *LinkRewriter
	logger   *slog.Logger
}

// Options configures a Parser.
type Options struct {
	// ProxyBaseURL is prepended to rewritten link targets,
	// e.g. "/go?url=". Empty disables link rewriting.
	ProxyBaseURL string

	// TrustedSenders lists From-header substrings whose HTML keeps its
	// original links.
	TrustedSenders []string

	Logger *slog.Logger
}

// NewParser creates a parser.
func NewParser(opts Options) *Parser {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		rewriter: NewLinkRewriter(opts.ProxyBaseURL, opts.TrustedSenders),
		logger:   logger.With("component", "mailparse"),
	}
}

// Parse decodes a raw message. It always returns a record; any part that
// cannot be decoded is skipped and the corresponding field stays empty.
func (p *Parser) Parse(raw []byte) *models.ParsedMail {
	out := &models.ParsedMail{}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		p.logger.Debug("mail reader failed, falling back to header-only parse", "error", err)
		p.parseHeadersOnly(raw, out)
		return out
	}

	p.fillHeaders(mr, out)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Debug("skipping unreadable part", "error", err)
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain"):
			// Multiple parts of the same type are concatenated.
			out.Text += decodeBody(body, inline.Get("Content-Transfer-Encoding"))
		case strings.HasPrefix(ct, "text/html"):
			html := decodeBody(body, inline.Get("Content-Transfer-Encoding"))
			out.HTML += p.rewriter.Rewrite(html, out.From)
		}
	}

	// HTML-only mail still gets a usable text body.
	if out.Text == "" && out.HTML != "" {
		out.Text = htmlToText(out.HTML)
	}

	return out
}

func (p *Parser) fillHeaders(mr *mail.Reader, out *models.ParsedMail) {
	h := mr.Header

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		out.From = formatAddress(from[0])
	} else {
		out.From = decodeHeader(h.Get("From"))
	}

	if subject, err := h.Subject(); err == nil {
		out.Subject = subject
	} else {
		out.Subject = decodeHeader(h.Get("Subject"))
	}

	out.Date = h.Get("Date")
	if t, err := h.Date(); err == nil && !t.IsZero() {
		out.FormattedDate = t.Local().Format(displayDateFormat)
	} else if t := parseDateFuzzy(out.Date); !t.IsZero() {
		out.FormattedDate = t.Local().Format(displayDateFormat)
	}

	out.MessageID = strings.Trim(h.Get("Message-Id"), "<> ")
}

// parseHeadersOnly is the last-resort path for messages go-message cannot
// read at all. It recovers what net/mail can and leaves the bodies empty.
func (p *Parser) parseHeadersOnly(raw []byte, out *models.ParsedMail) {
	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return
	}
	out.From = decodeHeader(msg.Header.Get("From"))
	out.Subject = decodeHeader(msg.Header.Get("Subject"))
	out.Date = msg.Header.Get("Date")
	if t, err := msg.Header.Date(); err == nil {
		out.FormattedDate = t.Local().Format(displayDateFormat)
	}
	out.MessageID = strings.Trim(msg.Header.Get("Message-Id"), "<> ")
}

func formatAddress(a *mail.Address) string {
	if a.Name != "" {
		return a.Name + " <" + a.Address + ">"
	}
	return a.Address
}

// parseDateFuzzy tries non-standard Date header layouts.
func parseDateFuzzy(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05",
		"2 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05",
		time.RFC822Z,
		time.RFC822,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
