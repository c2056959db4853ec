package graph

import (
	"context"
	"fmt"

	"github.com/tradegraph/backend/pkg/extract"
	"github.com/tradegraph/backend/pkg/logger"
)

// ChainHop is one step of a replacement chain.
type ChainHop struct {
	Depth      int     `json:"depth"`
	Node       Node    `json:"node"`
	Confidence float64 `json:"confidence"`
}

// Chain is the result of a replacement-chain traversal. REPLACES edges are
// directed newer -> older, so the hops are the parts the root part
// supersedes. CycleDetected flags a REPLACES cycle in the data; traversal
// terminates instead of looping, and the flag surfaces the data-quality
// condition to the caller.
type Chain struct {
	Root          Node       `json:"root"`
	Hops          []ChainHop `json:"hops"`
	CycleDetected bool       `json:"cycle_detected"`
}

// ReplacementChain walks REPLACES edges from the part with the given id, up
// to maxDepth hops. Each reachable part is reported once, at the depth it
// was first reached.
func ReplacementChain(ctx context.Context, store Store, partID string, maxDepth int) (Chain, error) {
	_, key, ok := NaturalKey(extract.EntityPartNumber, partID)
	if !ok {
		return Chain{}, fmt.Errorf("invalid part id %q", partID)
	}

	root, err := store.GetNode(ctx, NodeKindPart, key)
	if err != nil {
		return Chain{}, err
	}

	chain := Chain{Root: root}
	reported := map[int64]bool{root.ID: true}

	// onPath tracks the current traversal path; revisiting a node on the
	// path is a genuine REPLACES cycle, while revisiting an already
	// reported node off the path is just converging evidence.
	onPath := map[int64]bool{root.ID: true}

	var walk func(nodeID int64, depth int) error
	walk = func(nodeID int64, depth int) error {
		if depth > maxDepth {
			return nil
		}
		edges, err := store.GetOutgoingEdges(ctx, nodeID, extract.RelationReplaces)
		if err != nil {
			return fmt.Errorf("traverse replaces edges: %w", err)
		}
		for _, edge := range edges {
			if onPath[edge.TargetID] {
				chain.CycleDetected = true
				logger.Warn("[Graph] REPLACES cycle detected", "part", root.Key, "node_id", edge.TargetID)
				continue
			}
			if !reported[edge.TargetID] {
				nodes, err := store.GetNodesByIDs(ctx, []int64{edge.TargetID})
				if err != nil {
					return fmt.Errorf("resolve chain node: %w", err)
				}
				target, ok := nodes[edge.TargetID]
				if !ok {
					return fmt.Errorf("edge %d references missing node %d", edge.ID, edge.TargetID)
				}
				reported[edge.TargetID] = true
				chain.Hops = append(chain.Hops, ChainHop{
					Depth:      depth,
					Node:       target,
					Confidence: edge.Confidence,
				})
			}
			onPath[edge.TargetID] = true
			if err := walk(edge.TargetID, depth+1); err != nil {
				return err
			}
			delete(onPath, edge.TargetID)
		}
		return nil
	}

	if err := walk(root.ID, 1); err != nil {
		return Chain{}, err
	}

	return chain, nil
}
