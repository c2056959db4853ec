package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tradegraph/backend/pkg/evidence"
)

// EvidenceStore is an in-memory implementation of evidence.Store. It backs
// the pipeline tests and small local runs; production deployments use the
// PostgreSQL store.
type EvidenceStore struct {
	mu sync.Mutex

	nextDocID      int64
	nextEntityID   int64
	nextRelationID int64
	nextErrorID    int64

	docsByID   map[int64]*evidence.Document
	docsByHash map[string]int64
	entities   map[int64][]evidence.Entity
	relations  map[int64][]evidence.Relationship
	errors     []evidence.ProcessingError
}

func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{
		docsByID:   make(map[int64]*evidence.Document),
		docsByHash: make(map[string]int64),
		entities:   make(map[int64][]evidence.Entity),
		relations:  make(map[int64][]evidence.Relationship),
	}
}

func (s *EvidenceStore) Ingest(ctx context.Context, params evidence.IngestParams) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := evidence.HashText(params.RawText)
	if id, ok := s.docsByHash[hash]; ok {
		return id, false, nil
	}

	scrapedAt := params.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = time.Now().UTC()
	}

	s.nextDocID++
	doc := &evidence.Document{
		ID:        s.nextDocID,
		Hash:      hash,
		SourceURL: params.SourceURL,
		Type:      params.Type,
		RawText:   params.RawText,
		Status:    evidence.StatusPending,
		IsScanned: params.IsScanned,
		Metadata:  params.Metadata,
		ScrapedAt: scrapedAt,
		CreatedAt: time.Now().UTC(),
	}
	s.docsByID[doc.ID] = doc
	s.docsByHash[hash] = doc.ID
	return doc.ID, true, nil
}

func (s *EvidenceStore) GetDocument(ctx context.Context, id int64) (evidence.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docsByID[id]
	if !ok {
		return evidence.Document{}, evidence.ErrNotFound
	}
	return *doc, nil
}

func (s *EvidenceStore) ListPending(ctx context.Context, limit int) ([]evidence.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []evidence.Document
	for _, doc := range s.docsByID {
		if doc.Status != evidence.StatusPending {
			continue
		}
		// Character count, not bytes, to match the SQL length() gate.
		if utf8.RuneCountInString(doc.RawText) <= evidence.MinTextLength {
			continue
		}
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].ScrapedAt.Equal(docs[j].ScrapedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].ScrapedAt.Before(docs[j].ScrapedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *EvidenceStore) MarkProcessing(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docsByID[id]
	if !ok {
		return false, evidence.ErrNotFound
	}
	if doc.Status != evidence.StatusPending {
		return false, nil
	}
	doc.Status = evidence.StatusProcessing
	return true, nil
}

func (s *EvidenceStore) MarkFailed(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docsByID[id]
	if !ok {
		return evidence.ErrNotFound
	}
	if !evidence.ValidTransition(doc.Status, evidence.StatusFailed) {
		return evidence.ErrInvalidTransition
	}
	doc.Status = evidence.StatusFailed
	return nil
}

func (s *EvidenceStore) ResetFailed(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docsByID[id]
	if !ok {
		return false, evidence.ErrNotFound
	}
	if doc.Status != evidence.StatusFailed {
		return false, nil
	}
	doc.Status = evidence.StatusPending
	return true, nil
}

func (s *EvidenceStore) SaveExtraction(
	ctx context.Context,
	documentID int64,
	entities []evidence.EntityInput,
	relations []evidence.RelationInput,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docsByID[documentID]
	if !ok {
		return evidence.ErrNotFound
	}
	if !evidence.ValidTransition(doc.Status, evidence.StatusCompleted) {
		return evidence.ErrInvalidTransition
	}
	isTribal := doc.Type == evidence.DocumentTypeForum

	saved := make([]evidence.Entity, len(entities))
	for i, e := range entities {
		s.nextEntityID++
		saved[i] = evidence.Entity{
			ID:         s.nextEntityID,
			DocumentID: documentID,
			Text:       e.Text,
			Type:       e.Type,
			StartChar:  e.StartChar,
			EndChar:    e.EndChar,
			Confidence: e.Confidence,
		}
	}

	savedRelations := make([]evidence.Relationship, 0, len(relations))
	for _, r := range relations {
		if r.SourceIndex < 0 || r.SourceIndex >= len(entities) ||
			r.TargetIndex < 0 || r.TargetIndex >= len(entities) {
			return fmt.Errorf("relation %s references entity out of range", r.Type)
		}
		s.nextRelationID++
		savedRelations = append(savedRelations, evidence.Relationship{
			ID:                s.nextRelationID,
			DocumentID:        documentID,
			SourceEntityID:    saved[r.SourceIndex].ID,
			TargetEntityID:    saved[r.TargetIndex].ID,
			Type:              r.Type,
			Confidence:        r.Confidence,
			Context:           r.Context,
			IsTribalKnowledge: isTribal,
		})
	}

	s.entities[documentID] = saved
	s.relations[documentID] = savedRelations
	doc.Status = evidence.StatusCompleted
	now := time.Now().UTC()
	doc.ProcessedAt = &now
	return nil
}

func (s *EvidenceStore) GetEntities(ctx context.Context, documentID int64) ([]evidence.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]evidence.Entity(nil), s.entities[documentID]...), nil
}

func (s *EvidenceStore) GetRelationships(ctx context.Context, documentID int64) ([]evidence.Relationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]evidence.Relationship(nil), s.relations[documentID]...), nil
}

func (s *EvidenceStore) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docsByID[id]
	if !ok {
		return evidence.ErrNotFound
	}
	delete(s.docsByHash, doc.Hash)
	delete(s.docsByID, id)
	delete(s.entities, id)
	delete(s.relations, id)
	return nil
}

func (s *EvidenceStore) RecordError(ctx context.Context, documentID *int64, stage evidence.Stage, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextErrorID++
	s.errors = append(s.errors, evidence.ProcessingError{
		ID:         s.nextErrorID,
		DocumentID: documentID,
		Stage:      stage,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// Errors returns a copy of the recorded processing errors.
func (s *EvidenceStore) Errors() []evidence.ProcessingError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]evidence.ProcessingError(nil), s.errors...)
}

func (s *EvidenceStore) ListTribalKnowledge(ctx context.Context, limit int) ([]evidence.TribalClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claims []evidence.TribalClaim
	for docID, relations := range s.relations {
		doc := s.docsByID[docID]
		if doc == nil {
			continue
		}
		byID := make(map[int64]string, len(s.entities[docID]))
		for _, e := range s.entities[docID] {
			byID[e.ID] = e.Text
		}
		for _, r := range relations {
			if !r.IsTribalKnowledge {
				continue
			}
			claims = append(claims, evidence.TribalClaim{
				SourceText: byID[r.SourceEntityID],
				TargetText: byID[r.TargetEntityID],
				Relation:   r.Type,
				Confidence: r.Confidence,
				Context:    r.Context,
				SourceURL:  doc.SourceURL,
			})
		}
	}
	sort.Slice(claims, func(i, j int) bool {
		return claims[i].Confidence > claims[j].Confidence
	})
	if limit > 0 && len(claims) > limit {
		claims = claims[:limit]
	}
	return claims, nil
}
