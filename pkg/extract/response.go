package extract

import (
	"fmt"
	"strings"

	"github.com/tradegraph/backend/pkg/logger"
)

// Wire format shared by the model-backed adapters. Models return entity text
// without offsets; offsets are recovered by locating the span in the source
// document, which keeps them valid by construction.

type responseEntity struct {
	EntityText string  `json:"entity_text" jsonschema_description:"Exact text of the entity as it appears in the document"`
	EntityType string  `json:"entity_type" jsonschema_description:"One of: PART_NUMBER, MANUFACTURER, SPECIFICATION, EQUIPMENT_MODEL, ADAPTER"`
	Confidence float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
}

type responseRelation struct {
	SourceEntity string  `json:"source_entity" jsonschema_description:"Exact text of the source entity, as listed in entities"`
	TargetEntity string  `json:"target_entity" jsonschema_description:"Exact text of the target entity, as listed in entities"`
	RelationType string  `json:"relation_type" jsonschema_description:"One of: REPLACES, EQUIVALENT_TO, COMPATIBLE_WITH, ADAPTER_REQUIRED, HAS_SPEC"`
	Confidence   float64 `json:"confidence" jsonschema_description:"Extraction confidence between 0 and 1"`
	Context      string  `json:"context" jsonschema_description:"The sentence or passage supporting this relation"`
}

type extractionResponse struct {
	Entities  []responseEntity   `json:"entities" jsonschema_description:"Entities identified in the document"`
	Relations []responseRelation `json:"relations" jsonschema_description:"Directed relations between identified entities"`
}

// ResponseSchema returns the JSON schema of the adapter wire format, for
// structured-output requests.
func ResponseSchema() any {
	return GenerateSchema(extractionResponse{})
}

// ParseResponse parses raw model output in the adapter wire format and
// grounds it in the source document text.
func ParseResponse(raw string, text string) (Result, error) {
	var resp extractionResponse
	if err := UnmarshalFlexible(raw, &resp); err != nil {
		return Result{}, fmt.Errorf("parse extraction response: %w", err)
	}
	return resp.toResult(text), nil
}

// toResult grounds a model response in the source text. Entities whose text
// cannot be located are dropped, as are relations whose endpoints did not
// survive; models occasionally paraphrase spans and a dropped mention is
// recoverable on reprocessing while a fabricated offset is not.
func (r extractionResponse) toResult(text string) Result {
	lowerText := strings.ToLower(text)

	var res Result
	indexByText := make(map[string]int)

	for _, e := range r.Entities {
		span := strings.TrimSpace(e.EntityText)
		if span == "" {
			continue
		}
		start := strings.Index(text, span)
		if start < 0 {
			start = strings.Index(lowerText, strings.ToLower(span))
		}
		if start < 0 {
			logger.Warn("[Extract] Entity text not found in document, dropping", "entity", span)
			continue
		}
		if _, dup := indexByText[span]; dup {
			continue
		}
		indexByText[span] = len(res.Entities)
		res.Entities = append(res.Entities, Entity{
			Text:       text[start : start+len(span)],
			Type:       e.EntityType,
			StartChar:  start,
			EndChar:    start + len(span),
			Confidence: clampConfidence(e.Confidence),
		})
	}

	for _, rel := range r.Relations {
		src, okSrc := indexByText[strings.TrimSpace(rel.SourceEntity)]
		dst, okDst := indexByText[strings.TrimSpace(rel.TargetEntity)]
		if !okSrc || !okDst {
			logger.Warn("[Extract] Relation endpoint not among extracted entities, dropping",
				"relation", rel.RelationType,
				"source", rel.SourceEntity,
				"target", rel.TargetEntity,
			)
			continue
		}
		res.Relations = append(res.Relations, Relation{
			SourceIndex: src,
			TargetIndex: dst,
			Type:        rel.RelationType,
			Confidence:  clampConfidence(rel.Confidence),
			Context:     rel.Context,
		})
	}

	return res
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
