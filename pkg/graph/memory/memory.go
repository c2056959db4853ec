package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tradegraph/backend/pkg/graph"
)

// GraphStore is an in-memory implementation of graph.Store with the same
// merge semantics as the PostgreSQL store. It backs the materializer tests
// and small local runs.
type GraphStore struct {
	mu sync.Mutex

	nextNodeID int64
	nextEdgeID int64

	nodesByKey map[nodeKey]*graph.Node
	nodesByID  map[int64]*graph.Node
	edges      map[edgeKey]*graph.Edge
}

type nodeKey struct {
	kind graph.NodeKind
	key  string
}

type edgeKey struct {
	relationType   string
	source, target int64
}

func NewGraphStore() *GraphStore {
	return &GraphStore{
		nodesByKey: make(map[nodeKey]*graph.Node),
		nodesByID:  make(map[int64]*graph.Node),
		edges:      make(map[edgeKey]*graph.Edge),
	}
}

func (s *GraphStore) UpsertNode(ctx context.Context, kind graph.NodeKind, key, displayName string) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := nodeKey{kind, key}
	if node, ok := s.nodesByKey[k]; ok {
		if node.DisplayName == "" {
			node.DisplayName = displayName
		}
		return *node, nil
	}

	s.nextNodeID++
	node := &graph.Node{
		ID:          s.nextNodeID,
		Kind:        kind,
		Key:         key,
		DisplayName: displayName,
	}
	s.nodesByKey[k] = node
	s.nodesByID[node.ID] = node
	return *node, nil
}

func (s *GraphStore) UpsertEdge(
	ctx context.Context,
	relationType string,
	sourceID, targetID int64,
	source graph.EdgeSource,
) (graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := edgeKey{relationType, sourceID, targetID}
	edge, ok := s.edges[k]
	if !ok {
		s.nextEdgeID++
		edge = &graph.Edge{
			ID:       s.nextEdgeID,
			Type:     relationType,
			SourceID: sourceID,
			TargetID: targetID,
		}
		s.edges[k] = edge
	}

	if source.Confidence > edge.Confidence {
		edge.Confidence = source.Confidence
	}

	replaced := false
	for i := range edge.Sources {
		if edge.Sources[i].DocumentID == source.DocumentID {
			edge.Sources[i] = source
			replaced = true
			break
		}
	}
	if !replaced {
		edge.Sources = append(edge.Sources, source)
	}

	return cloneEdge(edge), nil
}

func (s *GraphStore) GetNode(ctx context.Context, kind graph.NodeKind, key string) (graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodesByKey[nodeKey{kind, key}]
	if !ok {
		return graph.Node{}, graph.ErrNodeNotFound
	}
	return *node, nil
}

func (s *GraphStore) GetNodesByIDs(ctx context.Context, ids []int64) (map[int64]graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make(map[int64]graph.Node, len(ids))
	for _, id := range ids {
		if node, ok := s.nodesByID[id]; ok {
			nodes[id] = *node
		}
	}
	return nodes, nil
}

func (s *GraphStore) FindNodes(ctx context.Context, kind graph.NodeKind, query string) ([]graph.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var nodes []graph.Node
	for _, node := range s.nodesByID {
		if node.Kind != kind {
			continue
		}
		if query != "" && !strings.Contains(node.Key, query) {
			continue
		}
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
	return nodes, nil
}

func (s *GraphStore) GetEdges(ctx context.Context, nodeID int64) ([]graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var edges []graph.Edge
	for _, edge := range s.edges {
		if edge.SourceID == nodeID || edge.TargetID == nodeID {
			edges = append(edges, cloneEdge(edge))
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

func (s *GraphStore) GetOutgoingEdges(ctx context.Context, nodeID int64, relationType string) ([]graph.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var edges []graph.Edge
	for _, edge := range s.edges {
		if edge.SourceID == nodeID && edge.Type == relationType {
			edges = append(edges, cloneEdge(edge))
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// Nodes returns all nodes, sorted by kind then key. Test helper.
func (s *GraphStore) Nodes() []graph.Node {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make([]graph.Node, 0, len(s.nodesByID))
	for _, node := range s.nodesByID {
		nodes = append(nodes, *node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Kind != nodes[j].Kind {
			return nodes[i].Kind < nodes[j].Kind
		}
		return nodes[i].Key < nodes[j].Key
	})
	return nodes
}

// Edges returns all edges, sorted by type then endpoints. Test helper.
func (s *GraphStore) Edges() []graph.Edge {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges := make([]graph.Edge, 0, len(s.edges))
	for _, edge := range s.edges {
		edges = append(edges, cloneEdge(edge))
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Type != edges[j].Type {
			return edges[i].Type < edges[j].Type
		}
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		return edges[i].TargetID < edges[j].TargetID
	})
	return edges
}

func cloneEdge(edge *graph.Edge) graph.Edge {
	clone := *edge
	clone.Sources = append([]graph.EdgeSource(nil), edge.Sources...)
	return clone
}
