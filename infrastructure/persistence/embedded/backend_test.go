package embedded

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memexia-backend/application/ports"
	"memexia-backend/domain/graph"
)

func setupBackend(t *testing.T) *Backend {
	t.Helper()

	b := New(t.TempDir(), zap.NewNop())
	require.NoError(t, b.Initialize(context.Background()))
	t.Cleanup(func() { b.Close() })
	return b
}

// createNode is a test helper that creates a node in one session.
func createNode(t *testing.T, b *Backend, kbID, content string) *graph.Node {
	t.Helper()

	var node *graph.Node
	err := b.WithSession(context.Background(), kbID, func(sess ports.Session) error {
		var err error
		node, err = sess.CreateNode(context.Background(), graph.NodeCreate{Content: content})
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, node)
	return node
}

func TestCreateAndGetNode(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		created, err := sess.CreateNode(ctx, graph.NodeCreate{Content: "hello world"})
		require.NoError(t, err)
		require.NotEmpty(t, created.ID)
		assert.Equal(t, graph.DefaultNodeType, created.NodeType)
		assert.Equal(t, created.CreatedAt, created.UpdatedAt)

		got, err := sess.GetNode(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "hello world", got.Content)
		assert.Equal(t, graph.DefaultNodeType, got.NodeType)
		assert.True(t, got.CreatedAt.Equal(got.UpdatedAt))
		return nil
	})
	require.NoError(t, err)
}

func TestGetNodeAbsent(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		got, err := sess.GetNode(ctx, "no-such-id")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateNodePartial(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	node := createNode(t, b, "kb1", "original")

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		newContent := "updated"
		updated, err := sess.UpdateNode(ctx, node.ID, graph.NodeUpdate{Content: &newContent})
		require.NoError(t, err)
		require.NotNil(t, updated)

		assert.Equal(t, "updated", updated.Content)
		// Untouched field preserved
		assert.Equal(t, node.NodeType, updated.NodeType)
		assert.True(t, updated.CreatedAt.Equal(node.CreatedAt))
		assert.True(t, updated.UpdatedAt.After(node.UpdatedAt))
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateNodeAbsent(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		content := "x"
		updated, err := sess.UpdateNode(ctx, "missing", graph.NodeUpdate{Content: &content})
		require.NoError(t, err)
		assert.Nil(t, updated)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteNodeCascadesEdges(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	a := createNode(t, b, "kb1", "a")
	c := createNode(t, b, "kb1", "b")

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		edge, err := sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID: a.ID, TargetID: c.ID, RelationType: "related", Weight: 1,
		})
		require.NoError(t, err)
		require.NotNil(t, edge)

		deleted, err := sess.DeleteNode(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		assert.Len(t, data.Nodes, 1)
		assert.Empty(t, data.Edges)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteNodeAbsent(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		deleted, err := sess.DeleteNode(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, deleted)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateEdgeMissingEndpoint(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	node := createNode(t, b, "kb1", "only")

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		edge, err := sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID: "missing", TargetID: node.ID, RelationType: "related",
		})
		require.NoError(t, err)
		assert.Nil(t, edge)

		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		assert.Empty(t, data.Edges)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateEdgeOverwritesSameEndpoints(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	a := createNode(t, b, "kb1", "a")
	c := createNode(t, b, "kb1", "b")

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		_, err := sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID: a.ID, TargetID: c.ID, RelationType: "related", Weight: 1,
		})
		require.NoError(t, err)

		_, err = sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID: a.ID, TargetID: c.ID, RelationType: graph.SemanticRelation, Weight: 9,
		})
		require.NoError(t, err)

		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		require.Len(t, data.Edges, 1)
		assert.Equal(t, graph.SemanticRelation, data.Edges[0].RelationType)
		assert.Equal(t, 9, data.Edges[0].Weight)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateEdgeSelfLoop(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	node := createNode(t, b, "kb1", "recursive")

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		edge, err := sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID: node.ID, TargetID: node.ID, RelationType: "related", Weight: 1,
		})
		require.NoError(t, err)
		require.NotNil(t, edge)
		assert.Equal(t, node.ID, edge.SourceID)
		assert.Equal(t, node.ID, edge.TargetID)

		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		require.Len(t, data.Edges, 1)
		assert.Equal(t, node.ID, data.Edges[0].SourceID)
		assert.Equal(t, node.ID, data.Edges[0].TargetID)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteAllNodes(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	a := createNode(t, b, "kb1", "a")
	c := createNode(t, b, "kb1", "b")
	createNode(t, b, "kb1", "c")

	err := b.WithSession(ctx, "kb1", func(sess ports.Session) error {
		_, err := sess.CreateEdge(ctx, graph.EdgeCreate{
			SourceID: a.ID, TargetID: c.ID, RelationType: "related",
		})
		require.NoError(t, err)

		count, err := sess.DeleteAllNodes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		assert.Empty(t, data.Nodes)
		assert.Empty(t, data.Edges)
		return nil
	})
	require.NoError(t, err)
}

func TestTenantIsolation(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	node := createNode(t, b, "tenant-a", "private thought")

	err := b.WithSession(ctx, "tenant-b", func(sess ports.Session) error {
		got, err := sess.GetNode(ctx, node.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		assert.Empty(t, data.Nodes)
		return nil
	})
	require.NoError(t, err)
}

func TestDeleteKBData(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	createNode(t, b, "doomed", "x")

	existed, err := b.DeleteKBData(ctx, "doomed")
	require.NoError(t, err)
	assert.True(t, existed)

	// Directory is gone
	_, statErr := os.Stat(filepath.Join(b.basePath, dbNameForKB("doomed")))
	assert.True(t, os.IsNotExist(statErr))

	// A fresh session provisions an empty storage unit
	err = b.WithSession(ctx, "doomed", func(sess ports.Session) error {
		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		assert.Empty(t, data.Nodes)
		return nil
	})
	require.NoError(t, err)

	existed, err = b.DeleteKBData(ctx, "never-created")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestConcurrentProvisioning(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.WithSession(ctx, "racy", func(sess ports.Session) error {
				_, err := sess.CreateNode(ctx, graph.NodeCreate{Content: "n"})
				return err
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one storage unit, holding all writes
	entries, err := os.ReadDir(b.basePath)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	err = b.WithSession(ctx, "racy", func(sess ports.Session) error {
		data, err := sess.GraphData(ctx)
		require.NoError(t, err)
		assert.Len(t, data.Nodes, callers)
		return nil
	})
	require.NoError(t, err)
}

func TestUseAfterClose(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Close())
	require.NoError(t, b.Close()) // idempotent

	err := b.WithSession(ctx, "kb1", func(ports.Session) error { return nil })
	require.Error(t, err)
}

func TestDBNameForKB(t *testing.T) {
	tests := []struct {
		kbID string
		want string
	}{
		{"simple", "kb_simple"},
		{"with-dash", "kb_with_dash"},
		{"a b/c.d", "kb_a_b_c_d"},
		{"UPPER_ok_123", "kb_UPPER_ok_123"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, dbNameForKB(tt.kbID))
	}
}
