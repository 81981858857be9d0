package mailparse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleMail = "From: Alice <alice@example.com>\r\n" +
	"To: box@example.org\r\n" +
	"Subject: Your code\r\n" +
	"Date: Mon, 02 Jan 2023 10:04:05 +0000\r\n" +
	"Message-ID: <abc123@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Your code is 482913.\r\n"

func newTestParser() *Parser {
	return NewParser(Options{ProxyBaseURL: "/go?url="})
}

func TestParseSimple(t *testing.T) {
	m := newTestParser().Parse([]byte(simpleMail))

	assert.Equal(t, "Alice <alice@example.com>", m.From)
	assert.Equal(t, "Your code", m.Subject)
	assert.Equal(t, "Mon, 02 Jan 2023 10:04:05 +0000", m.Date)
	assert.NotEmpty(t, m.FormattedDate)
	assert.Equal(t, "abc123@example.com", m.MessageID)
	assert.Contains(t, m.Text, "482913")
	assert.Empty(t, m.HTML)
}

func TestParseMultipart(t *testing.T) {
	raw := "From: shop@example.com\r\n" +
		"Subject: =?utf-8?q?Hello_=E2=82=AC?=\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain body\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html body <a href=\"https://example.com/x\">link</a></p>\r\n" +
		"--BOUND--\r\n"

	m := newTestParser().Parse([]byte(raw))

	assert.Equal(t, "Hello €", m.Subject)
	assert.Contains(t, m.Text, "plain body")
	assert.Contains(t, m.HTML, "html body")
	assert.Contains(t, m.HTML, "/go?url=https%3A%2F%2Fexample.com%2Fx")
	assert.Contains(t, m.HTML, `target="_blank"`)
}

func TestParseQuotedPrintable(t *testing.T) {
	raw := "From: a@b.c\r\n" +
		"Subject: qp\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"Caf=C3=A9 code =31=32=33=34\r\n"

	m := newTestParser().Parse([]byte(raw))
	assert.Contains(t, m.Text, "Café")
	assert.Contains(t, m.Text, "1234")
}

func TestParseGarbageNeverFails(t *testing.T) {
	for _, raw := range [][]byte{
		nil,
		[]byte(""),
		[]byte("\xff\xfe\x00garbage"),
		[]byte("no headers at all, just text"),
	} {
		m := newTestParser().Parse(raw)
		require.NotNil(t, m)
	}
}

func TestLinkRewriterSkipsMailtoAndAnchors(t *testing.T) {
	r := NewLinkRewriter("/go?url=", nil)
	html := `<a href="mailto:x@y.z">mail</a> <a href="#top">top</a> <a href="https://a.example/p">p</a>`
	out := r.Rewrite(html, "someone@example.com")

	assert.Contains(t, out, `href="mailto:x@y.z"`)
	assert.Contains(t, out, `href="#top"`)
	assert.Contains(t, out, "/go?url=https%3A%2F%2Fa.example%2Fp")
}

func TestLinkRewriterTrustedSender(t *testing.T) {
	r := NewLinkRewriter("/go?url=", []string{"billing@trusted.example"})
	html := `<a href="https://a.example/p">p</a>`
	out := r.Rewrite(html, "Billing <BILLING@trusted.example>")

	assert.Equal(t, html, out)
}

func TestEnsureUTF8Fallback(t *testing.T) {
	// "привет" in windows-1251
	cp1251 := []byte{0xEF, 0xF0, 0xE8, 0xE2, 0xE5, 0xF2}
	got := ensureUTF8(cp1251)
	assert.Equal(t, "привет", got)

	assert.Equal(t, "plain", ensureUTF8([]byte("plain")))
}

func TestHTMLOnlyMailGetsTextBody(t *testing.T) {
	raw := "From: a@b.c\r\n" +
		"Subject: html only\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><head><style>p{color:red}</style></head>" +
		"<body><p>Hello</p><p>Code: 9981</p></body></html>\r\n"

	m := newTestParser().Parse([]byte(raw))
	assert.Contains(t, m.Text, "Hello")
	assert.Contains(t, m.Text, "Code: 9981")
	assert.NotContains(t, m.Text, "color:red")
}

func TestHTMLToText(t *testing.T) {
	text := htmlToText("<div>one</div><div>two​</div>")
	assert.Equal(t, "one\ntwo", text)

	assert.Empty(t, htmlToText(""))
}

func TestLooksQuotedPrintable(t *testing.T) {
	assert.True(t, looksQuotedPrintable("a=C3=A9b =E2=82=AC x=0A"))
	assert.False(t, looksQuotedPrintable("2+2=4 and 3+3=6"))
	assert.False(t, looksQuotedPrintable(strings.Repeat("clean text ", 10)))
}
