package embedded

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memexia-backend/domain/graph"
	apperrors "memexia-backend/pkg/errors"
)

// timeLayout is the persisted timestamp format. Nanosecond precision so
// that back-to-back updates still advance updated_at strictly.
const timeLayout = time.RFC3339Nano

// session is a handle bound to one knowledge base's database. The
// underlying *sql.DB is owned and cached by the Backend; the session
// must not close it.
type session struct {
	db     *sql.DB
	kbID   string
	logger *zap.Logger
}

// CreateNode assigns an id and identical timestamps, persists and
// returns the node.
func (s *session) CreateNode(ctx context.Context, create graph.NodeCreate) (*graph.Node, error) {
	create.Normalize()

	node := &graph.Node{
		ID:       uuid.New().String(),
		Content:  create.Content,
		NodeType: create.NodeType,
	}
	now := time.Now()
	node.CreatedAt = now
	node.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, content, node_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, node.ID, node.Content, node.NodeType, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, apperrors.Database("insert node", err)
	}

	s.logger.Debug("created node", zap.String("node_id", node.ID), zap.String("kb_id", s.kbID))
	return node, nil
}

// GetNode returns the node with the given id, or nil if absent.
func (s *session) GetNode(ctx context.Context, nodeID string) (*graph.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, node_type, created_at, updated_at
		FROM nodes WHERE id = ?
	`, nodeID)

	node, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Database("query node", err)
	}
	return node, nil
}

// UpdateNode applies a partial update, refreshing updated_at. Returns
// nil if the node does not exist.
func (s *session) UpdateNode(ctx context.Context, nodeID string, update graph.NodeUpdate) (*graph.Node, error) {
	setParts := []string{"updated_at = ?"}
	args := []interface{}{time.Now().Format(timeLayout)}

	if update.Content != nil {
		setParts = append(setParts, "content = ?")
		args = append(args, *update.Content)
	}
	if update.NodeType != nil {
		setParts = append(setParts, "node_type = ?")
		args = append(args, *update.NodeType)
	}
	args = append(args, nodeID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE nodes SET "+strings.Join(setParts, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, apperrors.Database("update node", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.Database("update node", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return s.GetNode(ctx, nodeID)
}

// DeleteNode removes the node and all incident edges in one
// transaction. Reports whether a node existed.
func (s *session) DeleteNode(ctx context.Context, nodeID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, apperrors.Database("begin delete transaction", err)
	}
	defer tx.Rollback()

	// Edges first, then the node itself.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM edges WHERE source_id = ? OR target_id = ?`, nodeID, nodeID); err != nil {
		return false, apperrors.Database("delete incident edges", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, nodeID)
	if err != nil {
		return false, apperrors.Database("delete node", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Database("delete node", err)
	}

	if err := tx.Commit(); err != nil {
		return false, apperrors.Database("commit delete", err)
	}

	if affected == 0 {
		return false, nil
	}

	s.logger.Debug("deleted node", zap.String("node_id", nodeID), zap.String("kb_id", s.kbID))
	return true, nil
}

// CreateEdge persists a directed edge between two existing nodes.
// Returns nil without error when either endpoint is missing.
func (s *session) CreateEdge(ctx context.Context, create graph.EdgeCreate) (*graph.Edge, error) {
	create.Normalize()

	// Endpoints are checked one by one so a self-edge on an existing
	// node passes.
	sourceExists, err := s.nodeExists(ctx, create.SourceID)
	if err != nil {
		return nil, err
	}
	targetExists := sourceExists
	if create.TargetID != create.SourceID {
		if targetExists, err = s.nodeExists(ctx, create.TargetID); err != nil {
			return nil, err
		}
	}
	if !sourceExists || !targetExists {
		s.logger.Warn("cannot create edge: source or target not found",
			zap.String("source_id", create.SourceID),
			zap.String("target_id", create.TargetID))
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO edges (source_id, target_id, relation_type, weight)
		VALUES (?, ?, ?, ?)
	`, create.SourceID, create.TargetID, create.RelationType, create.Weight)
	if err != nil {
		return nil, apperrors.Database("insert edge", err)
	}

	return &graph.Edge{
		ID:           graph.EdgeID(create.SourceID, create.TargetID),
		SourceID:     create.SourceID,
		TargetID:     create.TargetID,
		RelationType: create.RelationType,
		Weight:       create.Weight,
	}, nil
}

// GraphData returns every node and edge of the knowledge base.
func (s *session) GraphData(ctx context.Context) (*graph.GraphData, error) {
	data := &graph.GraphData{Nodes: []graph.Node{}, Edges: []graph.Edge{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, node_type, created_at, updated_at FROM nodes
	`)
	if err != nil {
		return nil, apperrors.Database("query nodes", err)
	}
	defer rows.Close()

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, apperrors.Database("scan node", err)
		}
		data.Nodes = append(data.Nodes, *node)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("iterate nodes", err)
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation_type, weight FROM edges
	`)
	if err != nil {
		return nil, apperrors.Database("query edges", err)
	}
	defer edgeRows.Close()

	for edgeRows.Next() {
		var e graph.Edge
		if err := edgeRows.Scan(&e.SourceID, &e.TargetID, &e.RelationType, &e.Weight); err != nil {
			return nil, apperrors.Database("scan edge", err)
		}
		e.ID = graph.EdgeID(e.SourceID, e.TargetID)
		data.Edges = append(data.Edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, apperrors.Database("iterate edges", err)
	}

	return data, nil
}

// DeleteAllNodes wipes every node and edge, returning the prior node
// count.
func (s *session) DeleteAllNodes(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.Database("begin wipe transaction", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count); err != nil {
		return 0, apperrors.Database("count nodes", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return 0, apperrors.Database("delete edges", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return 0, apperrors.Database("delete nodes", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.Database("commit wipe", err)
	}

	s.logger.Info("deleted all nodes", zap.Int("count", count), zap.String("kb_id", s.kbID))
	return count, nil
}

func (s *session) nodeExists(ctx context.Context, nodeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE id = ?`, nodeID).Scan(&count)
	if err != nil {
		return false, apperrors.Database("check edge endpoint", err)
	}
	return count > 0, nil
}

// rowScanner covers *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*graph.Node, error) {
	var node graph.Node
	var createdAt, updatedAt string

	if err := row.Scan(&node.ID, &node.Content, &node.NodeType, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if node.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	if node.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}

	return &node, nil
}
