package queue

import "time"

// RawContentMsg is the payload scrapers publish on the ingest topics. The
// validate tags gate what enters the evidence store; anything that fails them
// is rejected to the topic's DLQ instead of retried.
type RawContentMsg struct {
	SourceURL    string            `json:"source_url" validate:"required"`
	DocumentType string            `json:"document_type" validate:"required,oneof=pdf html forum"`
	Content      string            `json:"content" validate:"required"`
	IsScanned    bool              `json:"is_scanned"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ScrapedAt    time.Time         `json:"scraped_at"`
}

// GraphJobMsg tells the materializer which completed document to fold into
// the graph.
type GraphJobMsg struct {
	DocumentID int64 `json:"document_id" validate:"required,gt=0"`
}
