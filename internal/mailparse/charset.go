package mailparse

import (
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Encodings tried, in order, when a body is not valid UTF-8 and no usable
// charset was declared.
var fallbackEncodings = []string{"windows-1251", "iso-8859-1", "koi8-r", "windows-1252"}

// qpResidue spots quoted-printable soft breaks and escapes that survived
// transfer decoding, a sign the part was mis-declared.
var qpResidue = regexp.MustCompile(`=(?:[0-9A-F]{2}|\r?\n)`)

var headerDecoder = &mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		cs := strings.ToLower(strings.TrimSpace(charset))
		if cs == "utf-8" || cs == "us-ascii" || cs == "ascii" {
			return input, nil
		}
		enc, err := htmlindex.Get(cs)
		if err != nil {
			return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
		}
		return transform.NewReader(input, enc.NewDecoder()), nil
	},
}

// decodeHeader decodes a possibly RFC 2047 encoded header value, falling
// back to the raw value when decoding fails.
func decodeHeader(raw string) string {
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		return ensureUTF8([]byte(raw))
	}
	return ensureUTF8([]byte(decoded))
}

// decodeBody normalises a body part to UTF-8 and undoes quoted-printable
// residue the transfer decoder missed.
func decodeBody(body []byte, transferEncoding string) string {
	text := ensureUTF8(body)

	if strings.EqualFold(strings.TrimSpace(transferEncoding), "quoted-printable") || looksQuotedPrintable(text) {
		if decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(text))); err == nil {
			text = ensureUTF8(decoded)
		}
	}
	return text
}

// looksQuotedPrintable reports whether the text still carries enough QP
// escapes to warrant a second decode pass.
func looksQuotedPrintable(text string) bool {
	if len(text) == 0 {
		return false
	}
	hits := qpResidue.FindAllStringIndex(text, 4)
	return len(hits) >= 3
}

// ensureUTF8 returns valid UTF-8: the input unchanged when already valid,
// otherwise the first fallback encoding that decodes cleanly, otherwise a
// byte-replace decode.
func ensureUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	for _, name := range fallbackEncodings {
		enc, err := htmlindex.Get(name)
		if err != nil {
			continue
		}
		decoded, _, err := transform.Bytes(enc.NewDecoder(), b)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return strings.ToValidUTF8(string(b), "�")
}
