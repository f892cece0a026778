// Package identity derives the two stable identifiers of an article from its
// source link. Both functions are pure and must stay byte-stable forever:
// DocID is the storage key and PublicID appears in already-shared URLs, so
// changing either scheme silently orphans existing documents and links.
package identity

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf16"
)

// docIDSafe is the set of characters left unescaped by DocID, matching the
// unreserved set of JavaScript's encodeURIComponent, which produced every
// document key already in the store.
const docIDSafe = "-_.!~*'()"

const upperhex = "0123456789ABCDEF"

// DocID returns the percent-encoded form of the source link, used as the
// document key. It is reversible via percent-decoding.
func DocID(link string) string {
	var b strings.Builder
	b.Grow(len(link))
	for i := 0; i < len(link); i++ {
		c := link[i]
		if isDocIDSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

// DecodeDocID reverses DocID. It fails only on malformed percent sequences.
func DecodeDocID(id string) (string, error) {
	return url.PathUnescape(id)
}

func isDocIDSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte(docIDSafe, c) >= 0
}

// PublicID returns the short shareable fingerprint of a link: two independent
// 32-bit rolling hashes over the link's UTF-16 code units, base36-encoded and
// concatenated behind an "n" prefix. Non-cryptographic; collisions are
// negligible at this corpus size (hundreds of articles).
func PublicID(link string) string {
	var h1, h2 int32
	for _, code := range utf16.Encode([]rune(link)) {
		h1 = h1<<5 - h1 + int32(code)
		h2 = h2<<7 - h2 + int32(code)
	}
	return "n" + base36Abs(h1) + base36Abs(h2)
}

func base36Abs(h int32) string {
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// Candidates expands a user-supplied article identifier into every document
// key it could denote: the literal value, its percent-decoded form, and the
// re-encoded form of the decoded value (covers callers passing the plain
// link). Detail lookup tries each in order.
func Candidates(raw string) []string {
	out := []string{raw}
	seen := map[string]bool{raw: true}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	if decoded, err := DecodeDocID(raw); err == nil {
		add(decoded)
		add(DocID(decoded))
	}
	return out
}
