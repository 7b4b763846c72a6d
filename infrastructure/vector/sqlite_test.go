package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memexia-backend/application/ports"
)

func setupIndex(t *testing.T) *SQLiteIndex {
	t.Helper()

	idx, err := NewSQLiteIndex(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func meta(kbID, content string) ports.VectorMetadata {
	return ports.VectorMetadata{Content: content, NodeType: "concept", KnowledgeBaseID: kbID}
}

func TestUpsertAndQuery(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 0}, meta("kb1", "a")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1, 0}, meta("kb1", "b")))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{3, 4}, meta("kb1", "c")))

	neighbors, err := idx.Query(ctx, []float32{0, 0}, 10, ports.VectorFilter{KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	require.Len(t, neighbors, 3)

	assert.Equal(t, "a", neighbors[0].ID)
	assert.Equal(t, 0.0, neighbors[0].Distance)
	assert.Equal(t, "b", neighbors[1].ID)
	assert.Equal(t, 1.0, neighbors[1].Distance)
	assert.Equal(t, "c", neighbors[2].ID)
	assert.Equal(t, 25.0, neighbors[2].Distance)

	assert.Equal(t, "a", neighbors[0].Metadata.Content)
	assert.Equal(t, "kb1", neighbors[0].Metadata.KnowledgeBaseID)
}

func TestQueryTopK(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{0}, meta("kb1", "a")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1}, meta("kb1", "b")))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{2}, meta("kb1", "c")))

	neighbors, err := idx.Query(ctx, []float32{0}, 2, ports.VectorFilter{KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, "a", neighbors[0].ID)
	assert.Equal(t, "b", neighbors[1].ID)
}

func TestQueryTenantScoped(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "mine", []float32{0, 0}, meta("kb1", "mine")))
	require.NoError(t, idx.Upsert(ctx, "theirs", []float32{0, 0}, meta("kb2", "theirs")))

	neighbors, err := idx.Query(ctx, []float32{0, 0}, 10, ports.VectorFilter{KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "mine", neighbors[0].ID)
}

func TestUpsertReplaces(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{0, 0}, meta("kb1", "before")))
	require.NoError(t, idx.Upsert(ctx, "a", []float32{5, 0}, meta("kb1", "after")))

	count, err := idx.Count(ctx, ports.VectorFilter{KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	neighbors, err := idx.Query(ctx, []float32{5, 0}, 1, ports.VectorFilter{KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, 0.0, neighbors[0].Distance)
	assert.Equal(t, "after", neighbors[0].Metadata.Content)
}

func TestUpsertEmptyEmbedding(t *testing.T) {
	idx := setupIndex(t)

	err := idx.Upsert(context.Background(), "a", nil, meta("kb1", "a"))
	require.Error(t, err)
}

func TestQueryDimensionMismatchSkipped(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "old", []float32{1, 2, 3}, meta("kb1", "old model")))
	require.NoError(t, idx.Upsert(ctx, "new", []float32{1, 2}, meta("kb1", "new model")))

	neighbors, err := idx.Query(ctx, []float32{1, 2}, 10, ports.VectorFilter{KnowledgeBaseID: "kb1"})
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "new", neighbors[0].ID)
}

func TestDeleteAndCount(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()
	filter := ports.VectorFilter{KnowledgeBaseID: "kb1"}

	require.NoError(t, idx.Upsert(ctx, "a", []float32{0}, meta("kb1", "a")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1}, meta("kb1", "b")))

	count, err := idx.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, idx.Delete(ctx, []string{"a", "never-existed"}))

	count, err = idx.Count(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// No-op delete
	require.NoError(t, idx.Delete(ctx, nil))
}

func TestIDsForKB(t *testing.T) {
	idx := setupIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a", []float32{0}, meta("kb1", "a")))
	require.NoError(t, idx.Upsert(ctx, "b", []float32{1}, meta("kb1", "b")))
	require.NoError(t, idx.Upsert(ctx, "c", []float32{2}, meta("kb2", "c")))

	ids, err := idx.IDsForKB(ctx, "kb1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	ids, err = idx.IDsForKB(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEmbeddingSerializationRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.14159}
	out := deserializeEmbedding(serializeEmbedding(in))
	assert.Equal(t, in, out)

	assert.Nil(t, deserializeEmbedding(nil))
	assert.Nil(t, deserializeEmbedding([]byte{1, 2, 3}))
}
