package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeText canonicalizes raw document text before hashing: leading and
// trailing whitespace is trimmed and every interior whitespace run collapses
// to a single space. Upstream scrapers differ in how they render line breaks
// and indentation; without this the same content would hash differently
// per source.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}

	return b.String()
}

// HashText returns the deduplication key for raw document text: the hex
// SHA-256 digest of the normalized content.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}
