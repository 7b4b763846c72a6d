// Package services contains the use-case layer. GraphService is the
// only component that touches both the graph backend and the vector
// index, and therefore owns the cross-store consistency contract.
package services

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"memexia-backend/application/ports"
	"memexia-backend/domain/graph"
	"memexia-backend/infrastructure/metrics"
	apperrors "memexia-backend/pkg/errors"
)

// Defaults for the auto-link pass. The threshold assumes squared L2
// distances where useful values fall under 2.0; both are tunables, not
// laws.
const (
	DefaultSimilarityThreshold = 1.5
	DefaultMaxAutoLinks        = 3
)

// Options tunes the auto-link pass and instrumentation.
type Options struct {
	// SimilarityThreshold is the distance below which a neighbor is
	// linked.
	SimilarityThreshold float64

	// MaxAutoLinks caps the number of similarity edges per new node.
	MaxAutoLinks int

	// Metrics is optional; nil records nothing.
	Metrics *metrics.Collector
}

// tenantLister is an optional capability of vector index
// implementations: enumerating one tenant's ids, used to purge the
// index on knowledge base teardown.
type tenantLister interface {
	IDsForKB(ctx context.Context, kbID string) ([]string, error)
}

// GraphService orchestrates graph mutations across the active backend
// and the vector index. On node creation it writes the node, indexes
// its embedding, and materializes similarity edges to its nearest
// neighbors within the same knowledge base.
type GraphService struct {
	backend  ports.GraphBackend
	vectors  ports.VectorIndex
	embedder ports.Embedder
	metrics  *metrics.Collector
	logger   *zap.Logger
	validate *validator.Validate

	threshold float64
	maxLinks  int
}

// NewGraphService creates the orchestrator.
func NewGraphService(
	backend ports.GraphBackend,
	vectors ports.VectorIndex,
	embedder ports.Embedder,
	logger *zap.Logger,
	opts Options,
) *GraphService {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.MaxAutoLinks <= 0 {
		opts.MaxAutoLinks = DefaultMaxAutoLinks
	}

	return &GraphService{
		backend:   backend,
		vectors:   vectors,
		embedder:  embedder,
		metrics:   opts.Metrics,
		logger:    logger,
		validate:  validator.New(),
		threshold: opts.SimilarityThreshold,
		maxLinks:  opts.MaxAutoLinks,
	}
}

// CreateNode writes the node through the backend, indexes its
// embedding, and links it to similar nodes of the same knowledge base.
//
// Consistency policy: once the backend write succeeds the node is
// never rolled back. A failure to embed or index afterwards propagates
// to the caller, leaving the node present without similarity links.
// Auto-link failures are logged and never fail the creation.
func (s *GraphService) CreateNode(ctx context.Context, kbID string, create graph.NodeCreate) (*graph.Node, error) {
	start := time.Now()

	if err := s.validate.Struct(create); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var node *graph.Node
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		created, err := sess.CreateNode(ctx, create)
		if err != nil {
			return err
		}
		node = created

		embedding, err := s.embedder.Embed(ctx, node.Content)
		if err != nil {
			return apperrors.External("embed node content", err)
		}

		if err := s.vectors.Upsert(ctx, node.ID, embedding, ports.VectorMetadata{
			Content:         node.Content,
			NodeType:        node.NodeType,
			KnowledgeBaseID: kbID,
		}); err != nil {
			return err
		}

		s.autoLink(ctx, sess, kbID, node, embedding)
		return nil
	})
	if err != nil {
		s.metrics.RecordOperation("create_node", "error", time.Since(start))
		return nil, err
	}

	s.logger.Info("created node",
		zap.String("node_id", node.ID), zap.String("kb_id", kbID))
	s.metrics.RecordOperation("create_node", "ok", time.Since(start))
	return node, nil
}

// autoLink queries the vector index for the nearest neighbors of the
// just-indexed node and creates a SEMANTIC_RELATED edge for every
// neighbor closer than the threshold. The node itself is already
// indexed and appears among results at distance zero.
func (s *GraphService) autoLink(ctx context.Context, sess ports.Session, kbID string, node *graph.Node, embedding []float32) {
	filter := ports.VectorFilter{KnowledgeBaseID: kbID}

	count, err := s.vectors.Count(ctx, filter)
	if err != nil {
		s.logger.Warn("auto-link skipped: count failed", zap.Error(err))
		return
	}
	if count <= 1 {
		return
	}

	k := s.maxLinks + 1 // top neighbors plus the node itself
	if count < k {
		k = count
	}

	neighbors, err := s.vectors.Query(ctx, embedding, k, filter)
	if err != nil {
		s.logger.Warn("auto-link skipped: query failed", zap.Error(err))
		return
	}

	for _, neighbor := range neighbors {
		if neighbor.ID == node.ID || neighbor.Distance >= s.threshold {
			continue
		}

		// The index may hold entries for nodes already deleted from
		// the graph; the backend is authoritative for existence.
		target, err := sess.GetNode(ctx, neighbor.ID)
		if err != nil {
			s.logger.Warn("auto-link: neighbor lookup failed",
				zap.String("neighbor_id", neighbor.ID), zap.Error(err))
			continue
		}
		if target == nil {
			s.logger.Debug("auto-link: skipping stale index entry",
				zap.String("neighbor_id", neighbor.ID))
			continue
		}

		edge, err := sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID:     node.ID,
			TargetID:     neighbor.ID,
			RelationType: graph.SemanticRelation,
			Weight:       similarityWeight(neighbor.Distance),
		})
		if err != nil {
			s.logger.Warn("auto-link: edge creation failed",
				zap.String("neighbor_id", neighbor.ID), zap.Error(err))
			continue
		}
		if edge != nil {
			s.metrics.RecordAutoLink()
			s.logger.Debug("auto-linked nodes",
				zap.String("source_id", edge.SourceID),
				zap.String("target_id", edge.TargetID),
				zap.Float64("distance", neighbor.Distance))
		}
	}
}

// similarityWeight maps a distance to an edge weight: smaller distance,
// larger weight.
func similarityWeight(distance float64) int {
	return int(math.Round((2.0 - distance) * 10))
}

// GetNode returns a node, or nil when absent.
func (s *GraphService) GetNode(ctx context.Context, kbID, nodeID string) (*graph.Node, error) {
	var node *graph.Node
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		var err error
		node, err = sess.GetNode(ctx, nodeID)
		return err
	})
	return node, err
}

// UpdateNode applies a partial update, or returns nil when the node is
// absent.
func (s *GraphService) UpdateNode(ctx context.Context, kbID, nodeID string, update graph.NodeUpdate) (*graph.Node, error) {
	var node *graph.Node
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		var err error
		node, err = sess.UpdateNode(ctx, nodeID, update)
		return err
	})
	return node, err
}

// DeleteNode removes the node from the backend, then best-effort from
// the vector index. The graph is authoritative: an index entry that
// fails to delete is logged and tolerated, not propagated.
func (s *GraphService) DeleteNode(ctx context.Context, kbID, nodeID string) (bool, error) {
	start := time.Now()

	var deleted bool
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		var err error
		deleted, err = sess.DeleteNode(ctx, nodeID)
		return err
	})
	if err != nil {
		s.metrics.RecordOperation("delete_node", "error", time.Since(start))
		return false, err
	}

	if deleted {
		if err := s.vectors.Delete(ctx, []string{nodeID}); err != nil {
			s.logger.Warn("failed to delete node from vector index",
				zap.String("node_id", nodeID), zap.Error(err))
		}
	}

	s.metrics.RecordOperation("delete_node", "ok", time.Since(start))
	return deleted, nil
}

// CreateEdge creates an explicit edge. Returns nil when either endpoint
// is missing.
func (s *GraphService) CreateEdge(ctx context.Context, kbID string, create graph.EdgeCreate) (*graph.Edge, error) {
	if err := s.validate.Struct(create); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	var edge *graph.Edge
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		var err error
		edge, err = sess.CreateEdge(ctx, create)
		return err
	})
	return edge, err
}

// GetGraphData returns the knowledge base's full node and edge sets.
func (s *GraphService) GetGraphData(ctx context.Context, kbID string) (*graph.GraphData, error) {
	var data *graph.GraphData
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		var err error
		data, err = sess.GraphData(ctx)
		return err
	})
	return data, err
}

// DeleteAllNodes wipes the knowledge base. The id list is read first
// because the vector index has no delete-by-tenant primitive; the same
// list is removed from the index after the backend wipe.
func (s *GraphService) DeleteAllNodes(ctx context.Context, kbID string) (int, error) {
	start := time.Now()

	var nodeIDs []string
	var count int
	err := s.backend.WithSession(ctx, kbID, func(sess ports.Session) error {
		data, err := sess.GraphData(ctx)
		if err != nil {
			return err
		}
		for _, n := range data.Nodes {
			nodeIDs = append(nodeIDs, n.ID)
		}

		count, err = sess.DeleteAllNodes(ctx)
		return err
	})
	if err != nil {
		s.metrics.RecordOperation("delete_all_nodes", "error", time.Since(start))
		return 0, err
	}

	if len(nodeIDs) > 0 {
		if err := s.vectors.Delete(ctx, nodeIDs); err != nil {
			s.logger.Warn("failed to delete nodes from vector index",
				zap.String("kb_id", kbID), zap.Error(err))
		}
	}

	s.metrics.RecordOperation("delete_all_nodes", "ok", time.Since(start))
	return count, nil
}

// DeleteKnowledgeBase destroys the knowledge base's storage unit and
// purges its vector index partition. Not recoverable.
func (s *GraphService) DeleteKnowledgeBase(ctx context.Context, kbID string) (bool, error) {
	existed, err := s.backend.DeleteKBData(ctx, kbID)
	if err != nil {
		return false, err
	}

	if lister, ok := s.vectors.(tenantLister); ok {
		ids, err := lister.IDsForKB(ctx, kbID)
		if err != nil {
			s.logger.Warn("failed to list vector index entries for teardown",
				zap.String("kb_id", kbID), zap.Error(err))
			return existed, nil
		}
		if len(ids) > 0 {
			if err := s.vectors.Delete(ctx, ids); err != nil {
				s.logger.Warn("failed to purge vector index partition",
					zap.String("kb_id", kbID), zap.Error(err))
			}
		}
	}

	return existed, nil
}
