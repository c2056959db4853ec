package evidence

import "time"

// DocumentType classifies the origin of an ingested document.
type DocumentType string

const (
	DocumentTypePDF   DocumentType = "pdf"
	DocumentTypeHTML  DocumentType = "html"
	DocumentTypeForum DocumentType = "forum"
)

// Status is the NLP processing state of a document.
//
// Valid transitions are pending -> processing -> completed,
// pending -> processing -> failed, and failed -> pending (operator reset).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Stage identifies the pipeline stage a processing error occurred in.
type Stage string

const (
	StageIngestion       Stage = "ingestion"
	StageExtraction      Stage = "extraction"
	StageMaterialization Stage = "graph_materialization"
)

// MinTextLength is the minimum raw text length for a document to be
// eligible for extraction. Shorter documents stay pending and are
// excluded from ListPending.
const MinTextLength = 100

// Document is a deduplicated unit of scraped evidence. Documents are unique
// by Hash; re-ingesting identical content is a no-op.
type Document struct {
	ID          int64             `json:"id"`
	Hash        string            `json:"document_hash"`
	SourceURL   string            `json:"source_url"`
	Type        DocumentType      `json:"document_type"`
	RawText     string            `json:"raw_text_content"`
	Status      Status            `json:"nlp_status"`
	IsScanned   bool              `json:"is_scanned"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ScrapedAt   time.Time         `json:"scraped_at"`
	CreatedAt   time.Time         `json:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
}

// Entity is a typed span extracted from a single document. Entities are
// immutable; re-running extraction replaces the document's full entity set.
type Entity struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Text       string  `json:"entity_text"`
	Type       string  `json:"entity_type"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
	Confidence float64 `json:"confidence_score"`
}

// Relationship is a directed, typed edge between two entities of the same
// document. IsTribalKnowledge is true iff the owning document is a forum post.
type Relationship struct {
	ID                int64   `json:"id"`
	DocumentID        int64   `json:"document_id"`
	SourceEntityID    int64   `json:"source_entity_id"`
	TargetEntityID    int64   `json:"target_entity_id"`
	Type              string  `json:"relation_type"`
	Confidence        float64 `json:"confidence_score"`
	Context           string  `json:"context_text"`
	IsTribalKnowledge bool    `json:"is_tribal_knowledge"`
}

// ProcessingError is an append-only diagnostic record. DocumentID is nil for
// ingestion failures that happen before a document row exists.
type ProcessingError struct {
	ID         int64     `json:"id"`
	DocumentID *int64    `json:"document_id,omitempty"`
	Stage      Stage     `json:"error_stage"`
	Message    string    `json:"error_message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TribalClaim is a row of the tribal-knowledge view: a forum-sourced
// relationship joined with its endpoint entity text and originating URL.
type TribalClaim struct {
	SourceText string  `json:"source_text"`
	TargetText string  `json:"target_text"`
	Relation   string  `json:"relation_type"`
	Confidence float64 `json:"confidence_score"`
	Context    string  `json:"context_text"`
	SourceURL  string  `json:"source_url"`
}

// ValidTransition reports whether a status change is allowed by the
// document state machine.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusPending
	default:
		return false
	}
}

// ValidDocumentType reports whether t is one of the supported types.
func ValidDocumentType(t DocumentType) bool {
	switch t {
	case DocumentTypePDF, DocumentTypeHTML, DocumentTypeForum:
		return true
	}
	return false
}
