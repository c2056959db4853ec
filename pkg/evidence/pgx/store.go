package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradegraph/backend/pkg/evidence"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// EvidenceStore implements evidence.Store on PostgreSQL. All status
// transitions are conditional updates guarded by the current status, so the
// database enforces the document state machine under concurrent workers.
type EvidenceStore struct {
	conn pgxIConn
}

// NewEvidenceStore creates an EvidenceStore using an existing connection or
// pool.
func NewEvidenceStore(conn pgxIConn) *EvidenceStore {
	return &EvidenceStore{conn: conn}
}

func (s *EvidenceStore) Ingest(ctx context.Context, params evidence.IngestParams) (int64, bool, error) {
	hash := evidence.HashText(params.RawText)

	var metadata []byte
	if len(params.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(params.Metadata)
		if err != nil {
			return 0, false, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	scrapedAt := params.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	var id int64
	err := s.conn.QueryRow(ctx, insertDocumentSQL,
		hash,
		params.SourceURL,
		string(params.Type),
		params.RawText,
		params.IsScanned,
		metadata,
		scrapedAt,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return 0, false, fmt.Errorf("insert document: %w", err)
	}

	// Conflict on document_hash: the document already exists.
	err = s.conn.QueryRow(ctx, selectDocumentIDByHashSQL, hash).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("lookup document by hash: %w", err)
	}
	return id, false, nil
}

func (s *EvidenceStore) GetDocument(ctx context.Context, id int64) (evidence.Document, error) {
	row := s.conn.QueryRow(ctx, selectDocumentSQL, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return evidence.Document{}, evidence.ErrNotFound
		}
		return evidence.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *EvidenceStore) ListPending(ctx context.Context, limit int) ([]evidence.Document, error) {
	rows, err := s.conn.Query(ctx, listPendingSQL, evidence.MinTextLength, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var docs []evidence.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *EvidenceStore) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	tag, err := s.conn.Exec(ctx, markProcessingSQL, id)
	if err != nil {
		return false, fmt.Errorf("mark processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *EvidenceStore) MarkFailed(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, markFailedSQL, id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return evidence.ErrInvalidTransition
	}
	return nil
}

func (s *EvidenceStore) ResetFailed(ctx context.Context, id int64) (bool, error) {
	tag, err := s.conn.Exec(ctx, resetFailedSQL, id)
	if err != nil {
		return false, fmt.Errorf("reset failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *EvidenceStore) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.conn.Exec(ctx, deleteDocumentSQL, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return evidence.ErrNotFound
	}
	return nil
}

func (s *EvidenceStore) RecordError(ctx context.Context, documentID *int64, stage evidence.Stage, message string) error {
	_, err := s.conn.Exec(ctx, insertProcessingErrorSQL, documentID, string(stage), message)
	if err != nil {
		return fmt.Errorf("record processing error: %w", err)
	}
	return nil
}

func (s *EvidenceStore) ListTribalKnowledge(ctx context.Context, limit int) ([]evidence.TribalClaim, error) {
	rows, err := s.conn.Query(ctx, listTribalKnowledgeSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list tribal knowledge: %w", err)
	}
	defer rows.Close()

	var claims []evidence.TribalClaim
	for rows.Next() {
		var c evidence.TribalClaim
		if err := rows.Scan(&c.SourceText, &c.TargetText, &c.Relation, &c.Confidence, &c.Context, &c.SourceURL); err != nil {
			return nil, fmt.Errorf("scan tribal claim: %w", err)
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (evidence.Document, error) {
	var (
		doc      evidence.Document
		docType  string
		status   string
		metadata []byte
	)
	err := row.Scan(
		&doc.ID,
		&doc.Hash,
		&doc.SourceURL,
		&docType,
		&doc.RawText,
		&status,
		&doc.IsScanned,
		&metadata,
		&doc.ScrapedAt,
		&doc.CreatedAt,
		&doc.ProcessedAt,
	)
	if err != nil {
		return evidence.Document{}, err
	}
	doc.Type = evidence.DocumentType(docType)
	doc.Status = evidence.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return evidence.Document{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return doc, nil
}

const insertDocumentSQL = `
INSERT INTO documents
  (document_hash, source_url, document_type, raw_text_content, is_scanned, metadata, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (document_hash) DO NOTHING
RETURNING id;
`

const selectDocumentIDByHashSQL = `
SELECT id FROM documents WHERE document_hash = $1;
`

const documentColumns = `
id, document_hash, source_url, document_type, raw_text_content, nlp_status,
is_scanned, metadata, scraped_at, created_at, processed_at
`

const selectDocumentSQL = `
SELECT ` + documentColumns + `
FROM documents
WHERE id = $1;
`

const listPendingSQL = `
SELECT ` + documentColumns + `
FROM documents
WHERE nlp_status = 'pending'
  AND raw_text_content IS NOT NULL
  AND length(raw_text_content) > $1
ORDER BY scraped_at ASC
LIMIT $2;
`

const markProcessingSQL = `
UPDATE documents
SET nlp_status = 'processing'
WHERE id = $1 AND nlp_status = 'pending';
`

const markFailedSQL = `
UPDATE documents
SET nlp_status = 'failed'
WHERE id = $1 AND nlp_status = 'processing';
`

const resetFailedSQL = `
UPDATE documents
SET nlp_status = 'pending'
WHERE id = $1 AND nlp_status = 'failed';
`

const deleteDocumentSQL = `
DELETE FROM documents WHERE id = $1;
`

const insertProcessingErrorSQL = `
INSERT INTO processing_errors (document_id, error_stage, error_message)
VALUES ($1, $2, $3);
`

const listTribalKnowledgeSQL = `
SELECT se.entity_text, te.entity_text, r.relation_type, r.confidence_score,
       r.context_text, d.source_url
FROM relationships r
JOIN entities se ON r.source_entity_id = se.id
JOIN entities te ON r.target_entity_id = te.id
JOIN documents d ON r.document_id = d.id
WHERE r.is_tribal_knowledge = true
ORDER BY r.confidence_score DESC
LIMIT $1;
`
