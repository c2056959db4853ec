package pgx

import (
	"context"
	"fmt"

	"github.com/tradegraph/backend/pkg/evidence"
	"github.com/tradegraph/backend/pkg/logger"
)

// SaveExtraction replaces the document's extraction results and completes it
// in one transaction. Prior entities and relationships are cleared first so
// the stored set is a pure function of the latest extraction run, which makes
// operator-triggered reprocessing idempotent.
func (s *EvidenceStore) SaveExtraction(
	ctx context.Context,
	documentID int64,
	entities []evidence.EntityInput,
	relations []evidence.RelationInput,
) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin extraction tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var docType string
	if err := tx.QueryRow(ctx, selectDocumentTypeForUpdateSQL, documentID).Scan(&docType); err != nil {
		return fmt.Errorf("lock document %d: %w", documentID, err)
	}
	isTribal := docType == string(evidence.DocumentTypeForum)

	if _, err := tx.Exec(ctx, deleteRelationshipsSQL, documentID); err != nil {
		return fmt.Errorf("clear relationships: %w", err)
	}
	if _, err := tx.Exec(ctx, deleteEntitiesSQL, documentID); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}

	entityIDs := make([]int64, len(entities))
	for i, e := range entities {
		err := tx.QueryRow(ctx, insertEntitySQL,
			documentID, e.Text, e.Type, e.StartChar, e.EndChar, e.Confidence,
		).Scan(&entityIDs[i])
		if err != nil {
			return fmt.Errorf("insert entity %q: %w", e.Text, err)
		}
	}

	for _, r := range relations {
		if r.SourceIndex < 0 || r.SourceIndex >= len(entities) ||
			r.TargetIndex < 0 || r.TargetIndex >= len(entities) {
			return fmt.Errorf("relation %s references entity out of range", r.Type)
		}
		_, err := tx.Exec(ctx, insertRelationshipSQL,
			documentID,
			entityIDs[r.SourceIndex],
			entityIDs[r.TargetIndex],
			r.Type,
			r.Confidence,
			r.Context,
			isTribal,
		)
		if err != nil {
			return fmt.Errorf("insert relationship %s: %w", r.Type, err)
		}
	}

	tag, err := tx.Exec(ctx, markCompletedSQL, documentID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return evidence.ErrInvalidTransition
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit extraction tx: %w", err)
	}

	logger.Debug("[Evidence] Extraction saved",
		"document_id", documentID,
		"entities", len(entities),
		"relationships", len(relations),
	)
	return nil
}

func (s *EvidenceStore) GetEntities(ctx context.Context, documentID int64) ([]evidence.Entity, error) {
	rows, err := s.conn.Query(ctx, selectEntitiesSQL, documentID)
	if err != nil {
		return nil, fmt.Errorf("get entities: %w", err)
	}
	defer rows.Close()

	var entities []evidence.Entity
	for rows.Next() {
		var e evidence.Entity
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Text, &e.Type, &e.StartChar, &e.EndChar, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *EvidenceStore) GetRelationships(ctx context.Context, documentID int64) ([]evidence.Relationship, error) {
	rows, err := s.conn.Query(ctx, selectRelationshipsSQL, documentID)
	if err != nil {
		return nil, fmt.Errorf("get relationships: %w", err)
	}
	defer rows.Close()

	var relations []evidence.Relationship
	for rows.Next() {
		var r evidence.Relationship
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.SourceEntityID, &r.TargetEntityID, &r.Type, &r.Confidence, &r.Context, &r.IsTribalKnowledge); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}

const selectDocumentTypeForUpdateSQL = `
SELECT document_type FROM documents WHERE id = $1 FOR UPDATE;
`

const deleteEntitiesSQL = `
DELETE FROM entities WHERE document_id = $1;
`

const deleteRelationshipsSQL = `
DELETE FROM relationships WHERE document_id = $1;
`

const insertEntitySQL = `
INSERT INTO entities
  (document_id, entity_text, entity_type, start_char, end_char, confidence_score)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id;
`

const insertRelationshipSQL = `
INSERT INTO relationships
  (document_id, source_entity_id, target_entity_id, relation_type,
   confidence_score, context_text, is_tribal_knowledge)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

const markCompletedSQL = `
UPDATE documents
SET nlp_status = 'completed', processed_at = now()
WHERE id = $1 AND nlp_status = 'processing';
`

const selectEntitiesSQL = `
SELECT id, document_id, entity_text, entity_type, start_char, end_char, confidence_score
FROM entities
WHERE document_id = $1
ORDER BY start_char ASC, id ASC;
`

const selectRelationshipsSQL = `
SELECT id, document_id, source_entity_id, target_entity_id, relation_type,
       confidence_score, context_text, is_tribal_knowledge
FROM relationships
WHERE document_id = $1
ORDER BY id ASC;
`
