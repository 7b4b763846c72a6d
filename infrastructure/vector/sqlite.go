// Package vector implements the similarity-search index over SQLite.
// Embeddings are stored as little-endian float32 blobs next to their
// tenant-scoped metadata; queries brute-force scan one tenant's rows
// and rank by squared Euclidean distance.
package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"memexia-backend/application/ports"
	apperrors "memexia-backend/pkg/errors"
)

const dbFileName = "vectors.db"

// SQLiteIndex is a file-backed vector index. One database holds every
// tenant's embeddings; tenant scoping is an indexed equality filter on
// kb_id, so no query can cross tenants.
type SQLiteIndex struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteIndex opens (or creates) the index database under basePath.
func NewSQLiteIndex(basePath string, logger *zap.Logger) (*SQLiteIndex, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, apperrors.Provisioning(fmt.Sprintf("create vector index directory %s", basePath), err)
	}

	db, err := sql.Open("sqlite", filepath.Join(basePath, dbFileName))
	if err != nil {
		return nil, apperrors.Provisioning("open vector index database", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		kb_id TEXT NOT NULL,
		content TEXT NOT NULL,
		node_type TEXT NOT NULL,
		embedding BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_kb ON embeddings(kb_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Provisioning("initialize vector index schema", err)
	}

	logger.Info("vector index initialized", zap.String("base_path", basePath))
	return &SQLiteIndex{db: db, logger: logger}, nil
}

// Upsert stores or replaces the embedding and metadata for an id.
func (s *SQLiteIndex) Upsert(ctx context.Context, id string, embedding []float32, meta ports.VectorMetadata) error {
	if len(embedding) == 0 {
		return apperrors.Validation("embedding cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embeddings (id, kb_id, content, node_type, embedding)
		VALUES (?, ?, ?, ?, ?)
	`, id, meta.KnowledgeBaseID, meta.Content, meta.NodeType, serializeEmbedding(embedding))
	if err != nil {
		return apperrors.Database("upsert embedding", err)
	}
	return nil
}

// Query returns up to k nearest neighbors within the filter's tenant,
// ordered by ascending squared L2 distance.
func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, k int, filter ports.VectorFilter) ([]ports.Neighbor, error) {
	if k <= 0 || len(embedding) == 0 {
		return []ports.Neighbor{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, content, node_type, embedding
		FROM embeddings WHERE kb_id = ?
	`, filter.KnowledgeBaseID)
	if err != nil {
		return nil, apperrors.Database("query embeddings", err)
	}
	defer rows.Close()

	neighbors := []ports.Neighbor{}
	for rows.Next() {
		var n ports.Neighbor
		var blob []byte
		if err := rows.Scan(&n.ID, &n.Metadata.KnowledgeBaseID, &n.Metadata.Content,
			&n.Metadata.NodeType, &blob); err != nil {
			return nil, apperrors.Database("scan embedding", err)
		}

		candidate := deserializeEmbedding(blob)
		if len(candidate) != len(embedding) {
			// Dimension mismatch from an older model version; skip
			// rather than report a bogus distance.
			continue
		}

		n.Distance = squaredL2(embedding, candidate)
		neighbors = append(neighbors, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("iterate embeddings", err)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	return neighbors, nil
}

// Delete removes the entries for the given ids. Missing ids are
// ignored.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM embeddings WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return apperrors.Database("delete embeddings", err)
	}
	return nil
}

// Count returns the number of entries within the filter's tenant.
func (s *SQLiteIndex) Count(ctx context.Context, filter ports.VectorFilter) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM embeddings WHERE kb_id = ?`, filter.KnowledgeBaseID).Scan(&count)
	if err != nil {
		return 0, apperrors.Database("count embeddings", err)
	}
	return count, nil
}

// IDsForKB returns every indexed id of one tenant. Used by teardown to
// purge the tenant's partition, since the index has no delete-by-tenant
// primitive.
func (s *SQLiteIndex) IDsForKB(ctx context.Context, kbID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM embeddings WHERE kb_id = ?`, kbID)
	if err != nil {
		return nil, apperrors.Database("query embedding ids", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Database("scan embedding id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// squaredL2 computes squared Euclidean distance. Matches the metric
// the auto-link threshold and weight formula are calibrated against.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// serializeEmbedding converts a float32 slice to a little-endian blob.
func serializeEmbedding(embedding []float32) []byte {
	blob := make([]byte, len(embedding)*4)
	for i, val := range embedding {
		binary.LittleEndian.PutUint32(blob[i*4:(i+1)*4], math.Float32bits(val))
	}
	return blob
}

// deserializeEmbedding converts a blob back to a float32 slice. Returns
// nil for malformed data.
func deserializeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}

	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4 : (i+1)*4]))
	}
	return embedding
}
