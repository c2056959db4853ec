package extract

import (
	"strings"
	"testing"
)

func TestValidateResult(t *testing.T) {
	text := "The A-100 injector from Bosch replaces the older B-200."

	valid := Result{
		Entities: []Entity{
			{Text: "A-100", Type: EntityPartNumber, StartChar: 4, EndChar: 9, Confidence: 0.9},
			{Text: "Bosch", Type: EntityManufacturer, StartChar: 24, EndChar: 29, Confidence: 0.95},
			{Text: "B-200", Type: EntityPartNumber, StartChar: 50, EndChar: 55, Confidence: 0.8},
		},
		Relations: []Relation{
			{SourceIndex: 0, TargetIndex: 2, Type: RelationReplaces, Confidence: 0.85},
		},
	}

	tests := []struct {
		name    string
		mutate  func(r *Result)
		wantErr string
	}{
		{
			name:   "valid result",
			mutate: func(r *Result) {},
		},
		{
			name:    "unknown entity type",
			mutate:  func(r *Result) { r.Entities[0].Type = "GADGET" },
			wantErr: "unknown entity type",
		},
		{
			name:    "negative start offset",
			mutate:  func(r *Result) { r.Entities[0].StartChar = -1 },
			wantErr: "out of range",
		},
		{
			name:    "empty span",
			mutate:  func(r *Result) { r.Entities[0].EndChar = r.Entities[0].StartChar },
			wantErr: "out of range",
		},
		{
			name:    "end beyond text",
			mutate:  func(r *Result) { r.Entities[2].EndChar = len(text) + 1 },
			wantErr: "out of range",
		},
		{
			name:    "entity confidence above one",
			mutate:  func(r *Result) { r.Entities[1].Confidence = 1.5 },
			wantErr: "confidence",
		},
		{
			name:    "unknown relation type",
			mutate:  func(r *Result) { r.Relations[0].Type = "SIMILAR_TO" },
			wantErr: "unknown relation type",
		},
		{
			name:    "relation source out of range",
			mutate:  func(r *Result) { r.Relations[0].SourceIndex = 7 },
			wantErr: "out of range",
		},
		{
			name:    "relation target negative",
			mutate:  func(r *Result) { r.Relations[0].TargetIndex = -1 },
			wantErr: "out of range",
		},
		{
			name:    "relation confidence negative",
			mutate:  func(r *Result) { r.Relations[0].Confidence = -0.1 },
			wantErr: "confidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Result{
				Entities:  append([]Entity(nil), valid.Entities...),
				Relations: append([]Relation(nil), valid.Relations...),
			}
			tt.mutate(&res)

			err := ValidateResult(text, res)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateResult() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("ValidateResult() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateResult() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidTypeSets(t *testing.T) {
	for _, typ := range EntityTypes {
		if !ValidEntityType(typ) {
			t.Errorf("ValidEntityType(%s) = false", typ)
		}
	}
	for _, typ := range RelationTypes {
		if !ValidRelationType(typ) {
			t.Errorf("ValidRelationType(%s) = false", typ)
		}
	}
	if ValidEntityType("part_number") {
		t.Error("entity type matching must be case sensitive")
	}
	if ValidRelationType("") {
		t.Error("empty relation type accepted")
	}
}
