package graph

import (
	"strings"
	"unicode"

	"github.com/tradegraph/backend/pkg/extract"
)

// NaturalKey maps an extracted entity to its node kind and merge key. The
// key normalization is type-specific so that surface-form variants of the
// same real-world thing land on one node. Returns false for entity types
// that do not materialize as nodes.
func NaturalKey(entityType, text string) (NodeKind, string, bool) {
	switch entityType {
	case extract.EntityPartNumber, extract.EntityAdapter:
		// Adapters are parts; the original relation direction already
		// distinguishes them.
		key := normalizePartNumber(text)
		if key == "" {
			return "", "", false
		}
		return NodeKindPart, key, true
	case extract.EntityManufacturer:
		key := collapseLower(text)
		if key == "" {
			return "", "", false
		}
		return NodeKindManufacturer, key, true
	case extract.EntitySpecification:
		key := collapseLower(text)
		if key == "" {
			return "", "", false
		}
		return NodeKindSpec, key, true
	case extract.EntityEquipmentModel:
		key := strings.ToUpper(strings.TrimSpace(text))
		if key == "" {
			return "", "", false
		}
		return NodeKindEquipment, key, true
	default:
		return "", "", false
	}
}

// normalizePartNumber uppercases and strips everything except letters,
// digits, and dashes. Catalogs disagree on spacing and punctuation inside
// part numbers but not on the alphanumeric core.
func normalizePartNumber(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToUpper(strings.TrimSpace(text)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// collapseLower lowercases, trims, and collapses interior whitespace runs.
func collapseLower(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
