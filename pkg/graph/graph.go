package graph

import (
	"context"
	"errors"
)

// NodeKind labels the graph node categories.
type NodeKind string

const (
	NodeKindPart         NodeKind = "Part"
	NodeKindManufacturer NodeKind = "Manufacturer"
	NodeKindSpec         NodeKind = "Spec"
	NodeKindEquipment    NodeKind = "Equipment"
)

// RelationManufacturedBy is an edge type derived by the materializer from
// part and manufacturer mentions in the same document. It never appears in
// extraction output.
const RelationManufacturedBy = "MANUFACTURED_BY"

// ErrNodeNotFound is returned by lookups for natural keys with no node.
var ErrNodeNotFound = errors.New("graph node not found")

// Node is a merged graph entity identified by (Kind, Key). Key is the
// type-normalized natural key; many surface forms across documents resolve
// to the same node. DisplayName keeps the first surface form seen.
type Node struct {
	ID          int64    `json:"id"`
	Kind        NodeKind `json:"kind"`
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
}

// EdgeSource is one document's contribution to an edge. Edges accumulate
// sources instead of being duplicated; the tribal flag stays per source so
// formal and community corroboration remain separately visible.
type EdgeSource struct {
	DocumentID        int64   `json:"document_id"`
	Confidence        float64 `json:"confidence"`
	Context           string  `json:"context,omitempty"`
	IsTribalKnowledge bool    `json:"is_tribal_knowledge"`
}

// Edge is a directed relation between two nodes, unique per
// (Type, SourceID, TargetID). Confidence is the maximum over all
// contributing sources.
type Edge struct {
	ID         int64        `json:"id"`
	Type       string       `json:"relation_type"`
	SourceID   int64        `json:"source_node_id"`
	TargetID   int64        `json:"target_node_id"`
	Confidence float64      `json:"confidence"`
	Sources    []EdgeSource `json:"sources"`
}

// Store is the graph store contract. All mutation is upsert-shaped so that
// materializing the same documents in any order, or repeatedly, converges on
// the same graph.
type Store interface {
	// UpsertNode creates the node for (kind, key) if absent and returns it.
	// An existing node's identity fields are never overwritten; an empty
	// display name may be filled in.
	UpsertNode(ctx context.Context, kind NodeKind, key, displayName string) (Node, error)

	// UpsertEdge creates or merges the edge (relationType, sourceID,
	// targetID): confidence becomes the max of existing and contributed,
	// and source joins the provenance list keyed by document id.
	UpsertEdge(ctx context.Context, relationType string, sourceID, targetID int64, source EdgeSource) (Edge, error)

	// GetNode resolves a natural key to its node.
	GetNode(ctx context.Context, kind NodeKind, key string) (Node, error)

	GetNodesByIDs(ctx context.Context, ids []int64) (map[int64]Node, error)

	// FindNodes returns nodes of a kind whose key contains the normalized
	// query substring.
	FindNodes(ctx context.Context, kind NodeKind, query string) ([]Node, error)

	// GetEdges returns all edges incident to a node, in either direction.
	GetEdges(ctx context.Context, nodeID int64) ([]Edge, error)

	// GetOutgoingEdges returns edges of one type leaving a node.
	GetOutgoingEdges(ctx context.Context, nodeID int64, relationType string) ([]Edge, error)
}
