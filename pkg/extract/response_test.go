package extract

import (
	"reflect"
	"strings"
	"testing"
)

const sampleDoc = "The A-100 fuel injector made by Bosch replaces the discontinued B-200. " +
	"It meets the ISO 9001 spec."

func TestParseResponseGroundsSpans(t *testing.T) {
	raw := `{
		"entities": [
			{"entity_text": "A-100", "entity_type": "PART_NUMBER", "confidence": 0.95},
			{"entity_text": "Bosch", "entity_type": "MANUFACTURER", "confidence": 0.9},
			{"entity_text": "B-200", "entity_type": "PART_NUMBER", "confidence": 0.85}
		],
		"relations": [
			{"source_entity": "A-100", "target_entity": "B-200", "relation_type": "REPLACES",
			 "confidence": 0.9, "context": "replaces the discontinued B-200"}
		]
	}`

	res, err := ParseResponse(raw, sampleDoc)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	if len(res.Entities) != 3 {
		t.Fatalf("got %d entities, want 3", len(res.Entities))
	}
	for _, e := range res.Entities {
		if sampleDoc[e.StartChar:e.EndChar] != e.Text {
			t.Errorf("entity %q offsets [%d, %d) do not slice back to the span", e.Text, e.StartChar, e.EndChar)
		}
	}

	if len(res.Relations) != 1 {
		t.Fatalf("got %d relations, want 1", len(res.Relations))
	}
	rel := res.Relations[0]
	if res.Entities[rel.SourceIndex].Text != "A-100" || res.Entities[rel.TargetIndex].Text != "B-200" {
		t.Errorf("relation endpoints resolved to %q -> %q, want A-100 -> B-200",
			res.Entities[rel.SourceIndex].Text, res.Entities[rel.TargetIndex].Text)
	}

	if err := ValidateResult(sampleDoc, res); err != nil {
		t.Errorf("parsed result fails validation: %v", err)
	}
}

func TestParseResponseDropsUngroundedEntities(t *testing.T) {
	raw := `{
		"entities": [
			{"entity_text": "A-100", "entity_type": "PART_NUMBER", "confidence": 0.95},
			{"entity_text": "X-999", "entity_type": "PART_NUMBER", "confidence": 0.9}
		],
		"relations": [
			{"source_entity": "A-100", "target_entity": "X-999", "relation_type": "REPLACES", "confidence": 0.8, "context": ""}
		]
	}`

	res, err := ParseResponse(raw, sampleDoc)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}

	if len(res.Entities) != 1 || res.Entities[0].Text != "A-100" {
		t.Errorf("entities = %+v, want only the grounded A-100", res.Entities)
	}
	// The relation lost an endpoint and must be dropped with it.
	if len(res.Relations) != 0 {
		t.Errorf("relations = %+v, want none", res.Relations)
	}
}

func TestParseResponseCaseInsensitiveFallback(t *testing.T) {
	raw := `{
		"entities": [
			{"entity_text": "BOSCH", "entity_type": "MANUFACTURER", "confidence": 0.9}
		],
		"relations": []
	}`

	res, err := ParseResponse(raw, sampleDoc)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(res.Entities) != 1 {
		t.Fatalf("got %d entities, want 1", len(res.Entities))
	}
	// The stored span is the document's casing, not the model's.
	if res.Entities[0].Text != "Bosch" {
		t.Errorf("grounded span = %q, want document casing Bosch", res.Entities[0].Text)
	}
}

func TestParseResponseClampsConfidence(t *testing.T) {
	raw := `{
		"entities": [
			{"entity_text": "A-100", "entity_type": "PART_NUMBER", "confidence": 1.7},
			{"entity_text": "B-200", "entity_type": "PART_NUMBER", "confidence": -0.2}
		],
		"relations": []
	}`

	res, err := ParseResponse(raw, sampleDoc)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if res.Entities[0].Confidence != 1 {
		t.Errorf("confidence = %f, want clamped to 1", res.Entities[0].Confidence)
	}
	if res.Entities[1].Confidence != 0 {
		t.Errorf("confidence = %f, want clamped to 0", res.Entities[1].Confidence)
	}
}

func TestUnmarshalFlexible(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name  string
		input string
		want  payload
	}{
		{
			name:  "plain json",
			input: `{"name": "A-100"}`,
			want:  payload{Name: "A-100"},
		},
		{
			name:  "double encoded",
			input: `"{\"name\": \"A-100\"}"`,
			want:  payload{Name: "A-100"},
		},
		{
			name:  "trailing comma repaired",
			input: `{"name": "A-100",}`,
			want:  payload{Name: "A-100"},
		},
		{
			name:  "single quotes repaired",
			input: `{'name': 'A-100'}`,
			want:  payload{Name: "A-100"},
		},
		{
			name:  "surrounding whitespace",
			input: "\n  {\"name\": \"A-100\"}  \n",
			want:  payload{Name: "A-100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got payload
			if err := UnmarshalFlexible(tt.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResponseSchemaMentionsWireFields(t *testing.T) {
	schema := ResponseSchema()
	if schema == nil {
		t.Fatal("ResponseSchema returned nil")
	}
	// The schema must carry the wire field names the prompt documents.
	text := schemaString(t, schema)
	for _, field := range []string{"entity_text", "entity_type", "source_entity", "target_entity", "relation_type"} {
		if !strings.Contains(text, field) {
			t.Errorf("schema missing field %q", field)
		}
	}
}

func schemaString(t *testing.T, schema any) string {
	t.Helper()
	type marshaler interface {
		MarshalJSON() ([]byte, error)
	}
	m, ok := schema.(marshaler)
	if !ok {
		t.Fatalf("schema %T does not marshal to JSON", schema)
	}
	data, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	return string(data)
}
