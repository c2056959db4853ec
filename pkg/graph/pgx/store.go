package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tradegraph/backend/pkg/graph"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// GraphStore implements graph.Store on PostgreSQL. Nodes are keyed by
// (node_kind, natural_key) and edges by (relation_type, source, target), so
// repeated materialization of the same document converges instead of
// duplicating rows.
type GraphStore struct {
	conn pgxIConn
}

func NewGraphStore(conn pgxIConn) *GraphStore {
	return &GraphStore{conn: conn}
}

func (s *GraphStore) UpsertNode(ctx context.Context, kind graph.NodeKind, key, displayName string) (graph.Node, error) {
	node := graph.Node{Kind: kind, Key: key}
	err := s.conn.QueryRow(ctx, upsertNodeSQL, string(kind), key, displayName).
		Scan(&node.ID, &node.DisplayName)
	if err != nil {
		return graph.Node{}, fmt.Errorf("upsert node: %w", err)
	}
	return node, nil
}

func (s *GraphStore) UpsertEdge(
	ctx context.Context,
	relationType string,
	sourceID, targetID int64,
	source graph.EdgeSource,
) (graph.Edge, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("begin upsert edge: %w", err)
	}
	defer tx.Rollback(ctx)

	edge := graph.Edge{Type: relationType, SourceID: sourceID, TargetID: targetID}
	err = tx.QueryRow(ctx, upsertEdgeSQL, relationType, sourceID, targetID, source.Confidence).
		Scan(&edge.ID, &edge.Confidence)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("upsert edge: %w", err)
	}

	_, err = tx.Exec(ctx, upsertEdgeSourceSQL,
		edge.ID,
		source.DocumentID,
		source.Confidence,
		source.Context,
		source.IsTribalKnowledge,
	)
	if err != nil {
		return graph.Edge{}, fmt.Errorf("upsert edge source: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return graph.Edge{}, fmt.Errorf("commit upsert edge: %w", err)
	}
	return edge, nil
}

func (s *GraphStore) GetNode(ctx context.Context, kind graph.NodeKind, key string) (graph.Node, error) {
	node := graph.Node{Kind: kind, Key: key}
	err := s.conn.QueryRow(ctx, selectNodeSQL, string(kind), key).
		Scan(&node.ID, &node.DisplayName)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return graph.Node{}, graph.ErrNodeNotFound
		}
		return graph.Node{}, fmt.Errorf("get node: %w", err)
	}
	return node, nil
}

func (s *GraphStore) GetNodesByIDs(ctx context.Context, ids []int64) (map[int64]graph.Node, error) {
	rows, err := s.conn.Query(ctx, selectNodesByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("get nodes by ids: %w", err)
	}
	defer rows.Close()

	nodes := make(map[int64]graph.Node, len(ids))
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes[node.ID] = node
	}
	return nodes, rows.Err()
}

func (s *GraphStore) FindNodes(ctx context.Context, kind graph.NodeKind, query string) ([]graph.Node, error) {
	rows, err := s.conn.Query(ctx, findNodesSQL, string(kind), "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("find nodes: %w", err)
	}
	defer rows.Close()

	var nodes []graph.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (s *GraphStore) GetEdges(ctx context.Context, nodeID int64) ([]graph.Edge, error) {
	return s.queryEdges(ctx, selectEdgesSQL, nodeID)
}

func (s *GraphStore) GetOutgoingEdges(ctx context.Context, nodeID int64, relationType string) ([]graph.Edge, error) {
	return s.queryEdges(ctx, selectOutgoingEdgesSQL, nodeID, relationType)
}

func (s *GraphStore) queryEdges(ctx context.Context, sql string, args ...any) ([]graph.Edge, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var (
		edges   []graph.Edge
		indexed = make(map[int64]int)
	)
	for rows.Next() {
		var (
			edge graph.Edge
			src  graph.EdgeSource
		)
		err := rows.Scan(
			&edge.ID,
			&edge.Type,
			&edge.SourceID,
			&edge.TargetID,
			&edge.Confidence,
			&src.DocumentID,
			&src.Confidence,
			&src.Context,
			&src.IsTribalKnowledge,
		)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if i, ok := indexed[edge.ID]; ok {
			edges[i].Sources = append(edges[i].Sources, src)
			continue
		}
		edge.Sources = []graph.EdgeSource{src}
		indexed[edge.ID] = len(edges)
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func scanNode(rows pgxv5.Rows) (graph.Node, error) {
	var (
		node graph.Node
		kind string
	)
	if err := rows.Scan(&node.ID, &kind, &node.Key, &node.DisplayName); err != nil {
		return graph.Node{}, err
	}
	node.Kind = graph.NodeKind(kind)
	return node, nil
}

// Nodes keep the first non-empty display name they were created with; later
// upserts only fill it in when it is still blank.
const upsertNodeSQL = `
INSERT INTO graph_nodes (node_kind, natural_key, display_name)
VALUES ($1, $2, $3)
ON CONFLICT (node_kind, natural_key) DO UPDATE
SET display_name = CASE
  WHEN graph_nodes.display_name = '' THEN EXCLUDED.display_name
  ELSE graph_nodes.display_name
END
RETURNING id, display_name;
`

const upsertEdgeSQL = `
INSERT INTO graph_edges (relation_type, source_node_id, target_node_id, confidence_score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (relation_type, source_node_id, target_node_id) DO UPDATE
SET confidence_score = GREATEST(graph_edges.confidence_score, EXCLUDED.confidence_score)
RETURNING id, confidence_score;
`

const upsertEdgeSourceSQL = `
INSERT INTO edge_sources (edge_id, document_id, confidence_score, context_text, is_tribal_knowledge)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (edge_id, document_id) DO UPDATE
SET confidence_score = EXCLUDED.confidence_score,
    context_text = EXCLUDED.context_text,
    is_tribal_knowledge = EXCLUDED.is_tribal_knowledge;
`

const selectNodeSQL = `
SELECT id, display_name FROM graph_nodes
WHERE node_kind = $1 AND natural_key = $2;
`

const selectNodesByIDsSQL = `
SELECT id, node_kind, natural_key, display_name
FROM graph_nodes
WHERE id = ANY($1);
`

const findNodesSQL = `
SELECT id, node_kind, natural_key, display_name
FROM graph_nodes
WHERE node_kind = $1 AND natural_key LIKE $2
ORDER BY natural_key ASC;
`

const edgeColumns = `
e.id, e.relation_type, e.source_node_id, e.target_node_id, e.confidence_score,
s.document_id, s.confidence_score, s.context_text, s.is_tribal_knowledge
`

const selectEdgesSQL = `
SELECT ` + edgeColumns + `
FROM graph_edges e
JOIN edge_sources s ON s.edge_id = e.id
WHERE e.source_node_id = $1 OR e.target_node_id = $1
ORDER BY e.id ASC;
`

const selectOutgoingEdgesSQL = `
SELECT ` + edgeColumns + `
FROM graph_edges e
JOIN edge_sources s ON s.edge_id = e.id
WHERE e.source_node_id = $1 AND e.relation_type = $2
ORDER BY e.id ASC;
`
