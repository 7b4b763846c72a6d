// Package graph defines the domain model shared by every graph storage
// backend: nodes, directed typed edges, and the whole-graph projection
// used for visualization.
package graph

import (
	"fmt"
	"time"
)

const (
	// DefaultNodeType is assigned when a node is created without an
	// explicit type.
	DefaultNodeType = "concept"

	// SemanticRelation labels edges materialized by the auto-link pass.
	SemanticRelation = "SEMANTIC_RELATED"

	// DefaultRelation labels edges created by explicit user action.
	DefaultRelation = "related"
)

// Node is a thought fragment stored in exactly one knowledge base.
type Node struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	NodeType  string    `json:"node_type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeCreate carries the caller-supplied fields of a new node. ID and
// timestamps are assigned by the backend.
type NodeCreate struct {
	Content  string `json:"content" validate:"required"`
	NodeType string `json:"node_type"`
}

// Normalize applies domain defaults to a create request.
func (c *NodeCreate) Normalize() {
	if c.NodeType == "" {
		c.NodeType = DefaultNodeType
	}
}

// NodeUpdate is a partial update; nil fields are left unchanged.
type NodeUpdate struct {
	Content  *string `json:"content,omitempty"`
	NodeType *string `json:"node_type,omitempty"`
}

// IsEmpty reports whether the update carries no field at all. An empty
// update still refreshes the node's updated_at timestamp.
func (u NodeUpdate) IsEmpty() bool {
	return u.Content == nil && u.NodeType == nil
}

// Edge is a directed, typed, weighted relation between two nodes of the
// same knowledge base.
type Edge struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	TargetID     string `json:"target_id"`
	RelationType string `json:"relation_type"`
	Weight       int    `json:"weight"`
}

// EdgeCreate carries the fields of a new edge. Both endpoints must exist
// in the session's knowledge base or creation is a no-op.
type EdgeCreate struct {
	SourceID     string `json:"source_id" validate:"required"`
	TargetID     string `json:"target_id" validate:"required"`
	RelationType string `json:"relation_type"`
	Weight       int    `json:"weight"`
}

// Normalize applies domain defaults to a create request.
func (c *EdgeCreate) Normalize() {
	if c.RelationType == "" {
		c.RelationType = DefaultRelation
	}
}

// EdgeID derives the display identifier of an edge from its endpoints.
// Edge identity is (source, target); recreating an edge between the same
// endpoints overwrites its relation type and weight.
func EdgeID(sourceID, targetID string) string {
	return fmt.Sprintf("%s->%s", sourceID, targetID)
}

// GraphData is the read-only full projection of one knowledge base.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}
