package ports

import "context"

// VectorMetadata is the tenant-scoped payload stored next to each
// embedding.
type VectorMetadata struct {
	Content         string
	NodeType        string
	KnowledgeBaseID string
}

// VectorFilter restricts index queries to one knowledge base. The
// filter is an exact-match equality on the knowledge base id.
type VectorFilter struct {
	KnowledgeBaseID string
}

// Neighbor is one nearest-neighbor query result. Distance is squared
// Euclidean (L2); smaller means more similar.
type Neighbor struct {
	ID       string
	Distance float64
	Metadata VectorMetadata
}

// VectorIndex is the similarity-search store kept in sync with the
// graph backend by the graph service. The graph backend is authoritative
// for node existence; a stale index entry is a tolerated transient
// inconsistency that callers must filter out.
type VectorIndex interface {
	// Upsert stores or replaces the embedding and metadata for an id.
	Upsert(ctx context.Context, id string, embedding []float32, meta VectorMetadata) error

	// Query returns up to k neighbors of the embedding matching the
	// filter, ordered by ascending distance.
	Query(ctx context.Context, embedding []float32, k int, filter VectorFilter) ([]Neighbor, error)

	// Delete removes the entries for the given ids. Missing ids are
	// ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of indexed entries matching the filter.
	Count(ctx context.Context, filter VectorFilter) (int, error)

	// Close releases the underlying store.
	Close() error
}

// Embedder turns text into a fixed-length vector. Implementations are
// deterministic for a fixed model version; the core neither retries nor
// caches calls.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
