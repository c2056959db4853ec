package evidence

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidTransition is returned when a status change would violate
	// the document state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IngestParams describes one raw-content message arriving from the event log.
type IngestParams struct {
	SourceURL string
	Type      DocumentType
	RawText   string
	IsScanned bool
	Metadata  map[string]string
	ScrapedAt time.Time
}

// EntityInput is an extracted entity before persistence.
type EntityInput struct {
	Text       string
	Type       string
	StartChar  int
	EndChar    int
	Confidence float64
}

// RelationInput is an extracted relationship before persistence. Source and
// Target index into the entity slice handed to SaveExtraction alongside it.
type RelationInput struct {
	SourceIndex int
	TargetIndex int
	Type        string
	Confidence  float64
	Context     string
}

// Store is the Evidence Store: deduplicated, status-tracked storage of raw
// documents and their extraction results.
//
// Ingest is idempotent by content hash, which makes every consumer of the
// at-least-once event log safe to replay. MarkProcessing is the single
// mutual-exclusion point of the pipeline: it performs a conditional
// pending -> processing transition and reports whether this caller won.
type Store interface {
	// Ingest stores a document if its content hash is unseen. Returns the
	// document id and whether a new row was created.
	Ingest(ctx context.Context, params IngestParams) (int64, bool, error)

	GetDocument(ctx context.Context, id int64) (Document, error)

	// ListPending returns up to limit documents with status pending and raw
	// text longer than MinTextLength, oldest first.
	ListPending(ctx context.Context, limit int) ([]Document, error)

	// MarkProcessing attempts the pending -> processing transition. It
	// returns false when another worker already claimed the document.
	MarkProcessing(ctx context.Context, id int64) (bool, error)

	// MarkFailed performs the processing -> failed transition.
	MarkFailed(ctx context.Context, id int64) error

	// ResetFailed performs the failed -> pending transition. This is the
	// only supported retry mechanism and is operator-triggered.
	ResetFailed(ctx context.Context, id int64) (bool, error)

	// SaveExtraction atomically replaces the document's entities and
	// relationships with the given extraction result and performs the
	// processing -> completed transition. Relationship tribal-knowledge
	// flags are derived from the owning document's type.
	SaveExtraction(ctx context.Context, documentID int64, entities []EntityInput, relations []RelationInput) error

	GetEntities(ctx context.Context, documentID int64) ([]Entity, error)
	GetRelationships(ctx context.Context, documentID int64) ([]Relationship, error)

	// DeleteDocument removes a document and cascades to its entities and
	// relationships. Operator action only.
	DeleteDocument(ctx context.Context, id int64) error

	// RecordError appends a ProcessingError. documentID may be nil for
	// ingestion-stage failures.
	RecordError(ctx context.Context, documentID *int64, stage Stage, message string) error

	// ListTribalKnowledge returns forum-sourced relationships joined with
	// their endpoint text and source URL, highest confidence first.
	ListTribalKnowledge(ctx context.Context, limit int) ([]TribalClaim, error)
}
