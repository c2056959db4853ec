package extract

import (
	"context"
	"fmt"
)

// Entity type labels the extraction capability may emit.
const (
	EntityPartNumber     = "PART_NUMBER"
	EntityManufacturer   = "MANUFACTURER"
	EntitySpecification  = "SPECIFICATION"
	EntityEquipmentModel = "EQUIPMENT_MODEL"
	EntityAdapter        = "ADAPTER"
)

// EntityTypes lists all valid entity type labels.
var EntityTypes = []string{
	EntityPartNumber,
	EntityManufacturer,
	EntitySpecification,
	EntityEquipmentModel,
	EntityAdapter,
}

// Relation type labels. REPLACES is directed new -> old and ADAPTER_REQUIRED
// part -> adapter; EQUIVALENT_TO and COMPATIBLE_WITH are logically symmetric
// but stored as a single directed instance.
const (
	RelationReplaces        = "REPLACES"
	RelationEquivalentTo    = "EQUIVALENT_TO"
	RelationCompatibleWith  = "COMPATIBLE_WITH"
	RelationAdapterRequired = "ADAPTER_REQUIRED"
	RelationHasSpec         = "HAS_SPEC"
)

// RelationTypes lists all valid relation type labels.
var RelationTypes = []string{
	RelationReplaces,
	RelationEquivalentTo,
	RelationCompatibleWith,
	RelationAdapterRequired,
	RelationHasSpec,
}

// Entity is a typed span located in the input text.
type Entity struct {
	Text       string
	Type       string
	StartChar  int
	EndChar    int
	Confidence float64
}

// Relation is a directed edge between two entities of the same result,
// referenced by index into Result.Entities.
type Relation struct {
	SourceIndex int
	TargetIndex int
	Type        string
	Confidence  float64
	Context     string
}

// Result is the output of one extraction run over a document.
type Result struct {
	Entities  []Entity
	Relations []Relation
}

// Client is the extraction capability boundary: text in, typed spans and
// typed relations with confidence out. Implementations wrap external NER/RE
// backends; the coordinator treats them as a black box and applies its own
// timeout and validation.
type Client interface {
	Extract(ctx context.Context, text string) (Result, error)
}

// ValidEntityType reports whether t is a known entity type label.
func ValidEntityType(t string) bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ValidRelationType reports whether t is a known relation type label.
func ValidRelationType(t string) bool {
	for _, known := range RelationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ValidateResult checks a capability result against the document text it was
// extracted from. A violation means the capability produced malformed output
// and the document must be failed, not persisted.
func ValidateResult(text string, res Result) error {
	for i, e := range res.Entities {
		if !ValidEntityType(e.Type) {
			return fmt.Errorf("entity %d: unknown entity type %q", i, e.Type)
		}
		if e.StartChar < 0 || e.StartChar >= e.EndChar || e.EndChar > len(text) {
			return fmt.Errorf("entity %d (%q): offsets [%d, %d) out of range for text length %d",
				i, e.Text, e.StartChar, e.EndChar, len(text))
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return fmt.Errorf("entity %d (%q): confidence %f outside [0, 1]", i, e.Text, e.Confidence)
		}
	}
	for i, r := range res.Relations {
		if !ValidRelationType(r.Type) {
			return fmt.Errorf("relation %d: unknown relation type %q", i, r.Type)
		}
		if r.SourceIndex < 0 || r.SourceIndex >= len(res.Entities) ||
			r.TargetIndex < 0 || r.TargetIndex >= len(res.Entities) {
			return fmt.Errorf("relation %d (%s): entity reference out of range", i, r.Type)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("relation %d (%s): confidence %f outside [0, 1]", i, r.Type, r.Confidence)
		}
	}
	return nil
}
