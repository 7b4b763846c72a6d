package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, BackendEmbedded, cfg.GraphBackend)
	assert.Equal(t, "./data/graph", cfg.GraphDataPath)
	assert.Equal(t, "127.0.0.1", cfg.NebulaHost)
	assert.Equal(t, 9669, cfg.NebulaPort)
	assert.Equal(t, 30*time.Second, cfg.NebulaReadyTimeout)
	assert.Equal(t, EmbeddingLocal, cfg.EmbeddingProvider)
	assert.Equal(t, 384, cfg.EmbeddingDimensions)
	assert.Equal(t, 1.5, cfg.SimilarityThreshold)
	assert.Equal(t, 3, cfg.MaxAutoLinks)
	assert.False(t, cfg.EnableMetrics)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("GRAPH_BACKEND", BackendNebula)
	t.Setenv("NEBULA_PORT", "19669")
	t.Setenv("NEBULA_READY_TIMEOUT", "45s")
	t.Setenv("SIMILARITY_THRESHOLD", "0.8")
	t.Setenv("MAX_AUTO_LINKS", "5")
	t.Setenv("ENABLE_METRICS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, BackendNebula, cfg.GraphBackend)
	assert.Equal(t, 19669, cfg.NebulaPort)
	assert.Equal(t, 45*time.Second, cfg.NebulaReadyTimeout)
	assert.Equal(t, 0.8, cfg.SimilarityThreshold)
	assert.Equal(t, 5, cfg.MaxAutoLinks)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("NEBULA_PORT", "not-a-number")
	t.Setenv("NEBULA_TIMEOUT", "eventually")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9669, cfg.NebulaPort)
	assert.Equal(t, 5*time.Second, cfg.NebulaTimeout)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "dgraph")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidateRequiresOpenAIKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", EmbeddingOpenAI)
	t.Setenv("OPENAI_API_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, EmbeddingOpenAI, cfg.EmbeddingProvider)
}

func TestValidateRejectsNonPositiveThreshold(t *testing.T) {
	t.Setenv("SIMILARITY_THRESHOLD", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
}
