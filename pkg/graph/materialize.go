package graph

import (
	"context"
	"fmt"

	"github.com/tradegraph/backend/pkg/evidence"
	"github.com/tradegraph/backend/pkg/extract"
	"github.com/tradegraph/backend/pkg/logger"
)

// Materializer turns a completed document's entities and relationships into
// graph nodes and edges. Materialize is idempotent and order-independent:
// node creation is a natural-key upsert, edge merging takes the maximum
// confidence, and provenance is keyed by document id, so replaying
// documents in any order converges on the same graph.
type Materializer struct {
	evidence evidence.Store
	graph    Store

	// minConfidence filters relationships at materialization time. The
	// Evidence Store keeps everything; this is a view concern.
	minConfidence float64
}

// MaterializerParams configures a Materializer.
type MaterializerParams struct {
	Evidence      evidence.Store
	Graph         Store
	MinConfidence float64
}

func NewMaterializer(params MaterializerParams) *Materializer {
	return &Materializer{
		evidence:      params.Evidence,
		graph:         params.Graph,
		minConfidence: params.MinConfidence,
	}
}

// Materialize upserts the graph contribution of one completed document.
// Referential problems (a relationship endpoint that was never persisted)
// indicate an upstream invariant violation: the error is recorded with stage
// graph_materialization and returned, and the document is skipped.
func (m *Materializer) Materialize(ctx context.Context, documentID int64) error {
	doc, err := m.evidence.GetDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %d: %w", documentID, err)
	}
	entities, err := m.evidence.GetEntities(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load entities for document %d: %w", documentID, err)
	}
	relations, err := m.evidence.GetRelationships(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load relationships for document %d: %w", documentID, err)
	}

	if err := m.materialize(ctx, doc, entities, relations); err != nil {
		recordErr := m.evidence.RecordError(ctx, &documentID, evidence.StageMaterialization, err.Error())
		if recordErr != nil {
			logger.Error("[Graph] Failed to record materialization error", "document_id", documentID, "err", recordErr)
		}
		return err
	}
	return nil
}

func (m *Materializer) materialize(
	ctx context.Context,
	doc evidence.Document,
	entities []evidence.Entity,
	relations []evidence.Relationship,
) error {
	isTribal := doc.Type == evidence.DocumentTypeForum

	nodeByEntityID := make(map[int64]Node, len(entities))
	for _, e := range entities {
		kind, key, ok := NaturalKey(e.Type, e.Text)
		if !ok {
			logger.Debug("[Graph] Entity type has no node mapping, skipping", "entity_type", e.Type, "text", e.Text)
			continue
		}
		node, err := m.graph.UpsertNode(ctx, kind, key, e.Text)
		if err != nil {
			return fmt.Errorf("upsert node (%s, %s): %w", kind, key, err)
		}
		nodeByEntityID[e.ID] = node
	}

	// Explicit relationships first; they take precedence over derived
	// co-occurrence edges for the same node pair.
	covered := make(map[edgeKey]bool, len(relations))

	edges := 0
	for _, r := range relations {
		if r.Confidence < m.minConfidence {
			logger.Debug("[Graph] Relationship below confidence threshold, skipping",
				"relation_type", r.Type, "confidence", r.Confidence)
			continue
		}
		source, okSource := nodeByEntityID[r.SourceEntityID]
		target, okTarget := nodeByEntityID[r.TargetEntityID]
		if !okSource || !okTarget {
			return fmt.Errorf("relationship %d (%s) references an entity with no node", r.ID, r.Type)
		}
		if source.ID == target.ID {
			// Distinct surface forms normalizing to the same node carry
			// no graph information.
			continue
		}
		_, err := m.graph.UpsertEdge(ctx, r.Type, source.ID, target.ID, EdgeSource{
			DocumentID:        doc.ID,
			Confidence:        r.Confidence,
			Context:           r.Context,
			IsTribalKnowledge: r.IsTribalKnowledge,
		})
		if err != nil {
			return fmt.Errorf("upsert edge %s: %w", r.Type, err)
		}
		covered[edgeKey{r.Type, source.ID, target.ID}] = true
		edges++
	}

	derived, err := m.deriveCooccurrence(ctx, doc, entities, nodeByEntityID, covered, isTribal)
	if err != nil {
		return err
	}

	logger.Info("[Graph] Document materialized",
		"document_id", doc.ID,
		"nodes", len(nodeByEntityID),
		"edges", edges,
		"derived_edges", derived,
	)
	return nil
}

type edgeKey struct {
	relationType   string
	source, target int64
}

// deriveCooccurrence adds MANUFACTURED_BY and HAS_SPEC edges implied by
// entity co-occurrence within one document, for pairs no explicit
// relationship already covers. Derived edges use the smaller of the two
// entity confidences.
func (m *Materializer) deriveCooccurrence(
	ctx context.Context,
	doc evidence.Document,
	entities []evidence.Entity,
	nodeByEntityID map[int64]Node,
	covered map[edgeKey]bool,
	isTribal bool,
) (int, error) {
	var parts, manufacturers, specs []evidence.Entity
	for _, e := range entities {
		switch e.Type {
		case extract.EntityPartNumber:
			parts = append(parts, e)
		case extract.EntityManufacturer:
			manufacturers = append(manufacturers, e)
		case extract.EntitySpecification:
			specs = append(specs, e)
		}
	}

	derived := 0
	upsert := func(relationType string, sourceEnt, targetEnt evidence.Entity) error {
		source, okSource := nodeByEntityID[sourceEnt.ID]
		target, okTarget := nodeByEntityID[targetEnt.ID]
		if !okSource || !okTarget || source.ID == target.ID {
			return nil
		}
		key := edgeKey{relationType, source.ID, target.ID}
		if covered[key] {
			return nil
		}
		confidence := min(sourceEnt.Confidence, targetEnt.Confidence)
		if confidence < m.minConfidence {
			return nil
		}
		_, err := m.graph.UpsertEdge(ctx, relationType, source.ID, target.ID, EdgeSource{
			DocumentID:        doc.ID,
			Confidence:        confidence,
			IsTribalKnowledge: isTribal,
		})
		if err != nil {
			return fmt.Errorf("upsert derived edge %s: %w", relationType, err)
		}
		covered[key] = true
		derived++
		return nil
	}

	for _, part := range parts {
		for _, manufacturer := range manufacturers {
			if err := upsert(RelationManufacturedBy, part, manufacturer); err != nil {
				return derived, err
			}
		}
		for _, spec := range specs {
			if err := upsert(extract.RelationHasSpec, part, spec); err != nil {
				return derived, err
			}
		}
	}

	return derived, nil
}
