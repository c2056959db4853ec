package graph

import (
	"context"
	"fmt"

	"github.com/tradegraph/backend/pkg/extract"
)

// PartDetails is the part lookup response: the node plus its neighbors
// grouped by relation. EQUIVALENT_TO and COMPATIBLE_WITH are stored as a
// single directed edge, so both directions are matched here at query time.
type PartDetails struct {
	Part           Node   `json:"part"`
	Manufacturers  []Node `json:"manufacturers"`
	Specs          []Node `json:"specs"`
	Replaces       []Node `json:"replaces"`
	ReplacedBy     []Node `json:"replaced_by"`
	EquivalentTo   []Node `json:"equivalent_to"`
	CompatibleWith []Node `json:"compatible_with"`
	Adapters       []Node `json:"adapters"`
	Edges          []Edge `json:"edges"`
}

// LookupPart resolves a part id and returns the node with all incident
// edges, neighbors grouped per relation.
func LookupPart(ctx context.Context, store Store, partID string) (PartDetails, error) {
	_, key, ok := NaturalKey(extract.EntityPartNumber, partID)
	if !ok {
		return PartDetails{}, fmt.Errorf("invalid part id %q", partID)
	}

	part, err := store.GetNode(ctx, NodeKindPart, key)
	if err != nil {
		return PartDetails{}, err
	}

	edges, err := store.GetEdges(ctx, part.ID)
	if err != nil {
		return PartDetails{}, fmt.Errorf("load edges for part %s: %w", part.Key, err)
	}

	neighborIDs := make([]int64, 0, len(edges))
	for _, e := range edges {
		other := e.TargetID
		if other == part.ID {
			other = e.SourceID
		}
		neighborIDs = append(neighborIDs, other)
	}
	neighbors, err := store.GetNodesByIDs(ctx, neighborIDs)
	if err != nil {
		return PartDetails{}, fmt.Errorf("resolve neighbors for part %s: %w", part.Key, err)
	}

	details := PartDetails{Part: part, Edges: edges}
	for _, e := range edges {
		outgoing := e.SourceID == part.ID
		other := e.TargetID
		if !outgoing {
			other = e.SourceID
		}
		node, ok := neighbors[other]
		if !ok {
			return PartDetails{}, fmt.Errorf("edge %d references missing node %d", e.ID, other)
		}

		switch e.Type {
		case RelationManufacturedBy:
			if outgoing {
				details.Manufacturers = append(details.Manufacturers, node)
			}
		case extract.RelationHasSpec:
			if outgoing {
				details.Specs = append(details.Specs, node)
			}
		case extract.RelationReplaces:
			if outgoing {
				details.Replaces = append(details.Replaces, node)
			} else {
				details.ReplacedBy = append(details.ReplacedBy, node)
			}
		case extract.RelationEquivalentTo:
			details.EquivalentTo = append(details.EquivalentTo, node)
		case extract.RelationCompatibleWith:
			details.CompatibleWith = append(details.CompatibleWith, node)
		case extract.RelationAdapterRequired:
			if outgoing {
				details.Adapters = append(details.Adapters, node)
			}
		}
	}

	return details, nil
}

// SearchSpecs returns Spec nodes whose normalized key contains the query.
func SearchSpecs(ctx context.Context, store Store, query string) ([]Node, error) {
	return store.FindNodes(ctx, NodeKindSpec, collapseLower(query))
}
