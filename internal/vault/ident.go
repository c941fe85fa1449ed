package vault

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// idTimeLayout is the compact UTC timestamp embedded in item identifiers.
const idTimeLayout = "20060102T150405Z"

const maxSlugLength = 48

// NewID derives an item identifier from the source tag, a timestamp, and a
// stable slug of the subject: GMAIL_20260823T101500Z_reply-to-alice.
// Identifiers are assigned once and never change.
func NewID(source string, at time.Time, subject string) string {
	tag := strings.ToUpper(strings.TrimSpace(source))
	if tag == "" {
		tag = "ITEM"
	}
	tag = strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, tag)

	parts := []string{tag, at.UTC().Format(idTimeLayout)}
	if slug := Slugify(subject); slug != "" {
		parts = append(parts, slug)
	}
	return strings.Join(parts, "_")
}

// slugStripper decomposes to NFKD and drops combining marks so accented
// subjects slug to plain ASCII.
var slugStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases the subject, strips diacritics, and collapses every
// non-alphanumeric run into a single hyphen.
func Slugify(subject string) string {
	stripped, _, err := transform.String(slugStripper, subject)
	if err != nil {
		stripped = subject
	}
	var b strings.Builder
	b.Grow(len(stripped))
	lastHyphen := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	return slug
}
