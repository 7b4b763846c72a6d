// Package ports declares the interfaces between the application layer and
// its infrastructure: graph storage backends, the vector index, and the
// embedding generator. Implementations live under infrastructure.
package ports

import (
	"context"

	"memexia-backend/domain/graph"
)

// Session is a handle bound to one knowledge base. All operations are
// implicitly scoped to that knowledge base; a session must never be used
// outside the WithSession call that produced it.
//
// Lookups that find nothing return (nil, nil) — absence is a normal
// result, not an error. Errors are reserved for backend unavailability
// and query failures.
type Session interface {
	// CreateNode assigns an id, stamps created_at and updated_at with
	// the same instant, persists the node and returns it.
	CreateNode(ctx context.Context, create graph.NodeCreate) (*graph.Node, error)

	// GetNode returns the node with the given id, or nil.
	GetNode(ctx context.Context, nodeID string) (*graph.Node, error)

	// UpdateNode applies a partial update. Fields left nil are
	// preserved; updated_at always refreshes. Returns nil if the node
	// does not exist (no implicit creation).
	UpdateNode(ctx context.Context, nodeID string, update graph.NodeUpdate) (*graph.Node, error)

	// DeleteNode removes the node and all incident edges. Reports
	// whether a node existed.
	DeleteNode(ctx context.Context, nodeID string) (bool, error)

	// CreateEdge persists a directed edge. Returns nil (no error) when
	// either endpoint is missing.
	CreateEdge(ctx context.Context, create graph.EdgeCreate) (*graph.Edge, error)

	// GraphData returns every node and edge of the knowledge base.
	// Order is unspecified.
	GraphData(ctx context.Context) (*graph.GraphData, error)

	// DeleteAllNodes wipes the knowledge base and returns the number of
	// nodes that were present.
	DeleteAllNodes(ctx context.Context) (int, error)
}

// GraphBackend is the contract implemented by every graph storage
// backend (embedded file-per-tenant store, distributed space-per-tenant
// store). The backend choice is a process-lifetime configuration
// decision.
type GraphBackend interface {
	// Initialize allocates top-level resources (connection pool, base
	// directory). Idempotent.
	Initialize(ctx context.Context) error

	// Close releases all resources. Safe to call multiple times;
	// operations after Close fail with an unavailability error.
	Close() error

	// WithSession guarantees the knowledge base's storage unit exists
	// (lazy, idempotent provisioning), runs fn with a session bound to
	// it, and releases the session on return regardless of outcome.
	WithSession(ctx context.Context, kbID string, fn func(Session) error) error

	// DeleteKBData destroys the knowledge base's entire storage unit.
	// Reports whether a storage unit existed. Not recoverable.
	DeleteKBData(ctx context.Context, kbID string) (bool, error)
}
