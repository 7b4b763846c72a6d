package nebula

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	nebulago "github.com/vesoft-inc/nebula-go/v3"
	"go.uber.org/zap"

	"memexia-backend/domain/graph"
	apperrors "memexia-backend/pkg/errors"
)

// session is a pooled connection pinned to one knowledge base's space.
// The connection is released by WithSession; the session must not
// outlive the callback.
type session struct {
	sess   *nebulago.Session
	kbID   string
	logger *zap.Logger
}

// run executes a statement and converts a failed result into an error.
func (s *session) run(stmt string) (*nebulago.ResultSet, error) {
	rs, err := s.sess.Execute(stmt)
	if err != nil {
		return nil, apperrors.Database("execute query", err)
	}
	if !rs.IsSucceed() {
		return nil, apperrors.Database(fmt.Sprintf("query failed: %s", rs.GetErrorMsg()), nil)
	}
	return rs, nil
}

func (s *session) runRows(stmt string) ([]rowMap, error) {
	rs, err := s.run(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := parseResultSet(rs)
	if err != nil {
		return nil, apperrors.Database("parse result set", err)
	}
	return rows, nil
}

// CreateNode assigns an id and identical timestamps, persists the
// vertex and returns the node.
func (s *session) CreateNode(ctx context.Context, create graph.NodeCreate) (*graph.Node, error) {
	create.Normalize()

	now := time.Now()
	node := &graph.Node{
		ID:        uuid.New().String(),
		Content:   create.Content,
		NodeType:  create.NodeType,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.run(insertVertexStmt(node)); err != nil {
		return nil, err
	}

	s.logger.Debug("created node", zap.String("node_id", node.ID), zap.String("kb_id", s.kbID))
	return node, nil
}

// GetNode fetches the vertex with the given id, or nil if absent.
func (s *session) GetNode(ctx context.Context, nodeID string) (*graph.Node, error) {
	rows, err := s.runRows(fetchNodeStmt(nodeID))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return nodeFromRow(rows[0]), nil
}

// UpdateNode applies a partial update, refreshing updated_at. Returns
// nil if the node does not exist.
func (s *session) UpdateNode(ctx context.Context, nodeID string, update graph.NodeUpdate) (*graph.Node, error) {
	existing, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if _, err := s.run(updateVertexStmt(nodeID, update, time.Now())); err != nil {
		return nil, err
	}

	return s.GetNode(ctx, nodeID)
}

// DeleteNode removes the vertex with all incident edges. Reports
// whether a node existed.
func (s *session) DeleteNode(ctx context.Context, nodeID string) (bool, error) {
	existing, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}

	if _, err := s.run(deleteVertexStmt(nodeID)); err != nil {
		return false, err
	}

	s.logger.Debug("deleted node", zap.String("node_id", nodeID), zap.String("kb_id", s.kbID))
	return true, nil
}

// CreateEdge persists a directed edge between two existing nodes.
// Returns nil without error when either endpoint is missing.
func (s *session) CreateEdge(ctx context.Context, create graph.EdgeCreate) (*graph.Edge, error) {
	create.Normalize()

	source, err := s.GetNode(ctx, create.SourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.GetNode(ctx, create.TargetID)
	if err != nil {
		return nil, err
	}
	if source == nil || target == nil {
		s.logger.Warn("cannot create edge: source or target not found",
			zap.String("source_id", create.SourceID),
			zap.String("target_id", create.TargetID))
		return nil, nil
	}

	if _, err := s.run(insertEdgeStmt(create)); err != nil {
		return nil, err
	}

	return &graph.Edge{
		ID:           graph.EdgeID(create.SourceID, create.TargetID),
		SourceID:     create.SourceID,
		TargetID:     create.TargetID,
		RelationType: create.RelationType,
		Weight:       create.Weight,
	}, nil
}

// GraphData returns every node and edge of the space.
func (s *session) GraphData(ctx context.Context) (*graph.GraphData, error) {
	data := &graph.GraphData{Nodes: []graph.Node{}, Edges: []graph.Edge{}}

	nodeRows, err := s.runRows(allNodesStmt())
	if err != nil {
		return nil, err
	}
	for _, row := range nodeRows {
		data.Nodes = append(data.Nodes, *nodeFromRow(row))
	}

	edgeRows, err := s.runRows(allEdgesStmt())
	if err != nil {
		return nil, err
	}
	for _, row := range edgeRows {
		sourceID := row.stringOr("source_id", "")
		targetID := row.stringOr("target_id", "")
		data.Edges = append(data.Edges, graph.Edge{
			ID:           graph.EdgeID(sourceID, targetID),
			SourceID:     sourceID,
			TargetID:     targetID,
			RelationType: row.stringOr("relation_type", ""),
			Weight:       row.intOr("weight", 0),
		})
	}

	return data, nil
}

// DeleteAllNodes wipes every vertex (with edges), returning the prior
// node count.
func (s *session) DeleteAllNodes(ctx context.Context) (int, error) {
	rows, err := s.runRows(allNodeIDsStmt())
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id := row.stringOr("vid", ""); id != "" {
			ids = append(ids, id)
		}
	}

	if len(ids) > 0 {
		if _, err := s.run(deleteVerticesStmt(ids)); err != nil {
			return 0, err
		}
	}

	s.logger.Info("deleted all nodes", zap.Int("count", len(ids)), zap.String("kb_id", s.kbID))
	return len(ids), nil
}

func nodeFromRow(row rowMap) *graph.Node {
	node := &graph.Node{
		ID:       row.stringOr("vid", ""),
		Content:  row.stringOr("content", ""),
		NodeType: row.stringOr("node_type", ""),
	}
	if t, err := time.Parse(timeLayout, row.stringOr("created_at", "")); err == nil {
		node.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, row.stringOr("updated_at", "")); err == nil {
		node.UpdatedAt = t
	}
	return node
}
