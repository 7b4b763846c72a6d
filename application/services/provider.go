package services

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"memexia-backend/application/ports"
	"memexia-backend/infrastructure/config"
	"memexia-backend/infrastructure/embedding"
	"memexia-backend/infrastructure/metrics"
	"memexia-backend/infrastructure/persistence/embedded"
	"memexia-backend/infrastructure/persistence/nebula"
	"memexia-backend/infrastructure/vector"
	apperrors "memexia-backend/pkg/errors"
)

// Provider wires configuration into a ready GraphService. The backend
// choice is resolved on first use and memoized for the process
// lifetime; switching backend type requires a restart.
type Provider struct {
	cfg    *config.Config
	logger *zap.Logger

	once    sync.Once
	initErr error

	backend   ports.GraphBackend
	vectors   ports.VectorIndex
	collector *metrics.Collector
	service   *GraphService
}

// NewProvider creates a provider. Nothing is connected until the first
// GraphService call.
func NewProvider(cfg *config.Config, logger *zap.Logger) *Provider {
	return &Provider{cfg: cfg, logger: logger}
}

// GraphService returns the memoized service, building the backend,
// vector index and embedder on first call.
func (p *Provider) GraphService(ctx context.Context) (*GraphService, error) {
	p.once.Do(func() {
		p.initErr = p.build(ctx)
	})
	if p.initErr != nil {
		return nil, p.initErr
	}
	return p.service, nil
}

func (p *Provider) build(ctx context.Context) error {
	switch p.cfg.GraphBackend {
	case config.BackendEmbedded:
		p.backend = embedded.New(p.cfg.GraphDataPath, p.logger)
	case config.BackendNebula:
		p.backend = nebula.New(nebula.Config{
			Host:         p.cfg.NebulaHost,
			Port:         p.cfg.NebulaPort,
			User:         p.cfg.NebulaUser,
			Password:     p.cfg.NebulaPassword,
			PoolSize:     p.cfg.NebulaPoolSize,
			Timeout:      p.cfg.NebulaTimeout,
			ReadyTimeout: p.cfg.NebulaReadyTimeout,
		}, p.logger)
	default:
		return apperrors.New(apperrors.ErrorTypeInternal,
			"unsupported graph backend "+p.cfg.GraphBackend)
	}

	if err := p.backend.Initialize(ctx); err != nil {
		return err
	}

	index, err := vector.NewSQLiteIndex(p.cfg.VectorDBPath, p.logger)
	if err != nil {
		p.backend.Close()
		return err
	}
	p.vectors = index

	var embedder ports.Embedder
	switch p.cfg.EmbeddingProvider {
	case config.EmbeddingOpenAI:
		embedder = embedding.NewOpenAIEmbedder(
			p.cfg.OpenAIAPIKey, p.cfg.EmbeddingModel, p.cfg.EmbeddingDimensions)
	default:
		embedder = embedding.NewLocalEmbedder(p.cfg.EmbeddingDimensions)
	}

	if p.cfg.EnableMetrics {
		p.collector = metrics.NewCollector()
	}

	p.service = NewGraphService(p.backend, p.vectors, embedder, p.logger, Options{
		SimilarityThreshold: p.cfg.SimilarityThreshold,
		MaxAutoLinks:        p.cfg.MaxAutoLinks,
		Metrics:             p.collector,
	})

	p.logger.Info("graph service ready",
		zap.String("backend", p.cfg.GraphBackend),
		zap.String("embedding_provider", p.cfg.EmbeddingProvider))
	return nil
}

// MetricsRegistry exposes the metric registry for scraping handlers.
// Nil when metrics are disabled or the provider has not built yet.
func (p *Provider) MetricsRegistry() *prometheus.Registry {
	return p.collector.Registry()
}

// Shutdown releases the backend and vector index. Safe to call when
// the provider never built.
func (p *Provider) Shutdown() error {
	var firstErr error
	if p.backend != nil {
		if err := p.backend.Close(); err != nil {
			firstErr = err
		}
	}
	if p.vectors != nil {
		if err := p.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
