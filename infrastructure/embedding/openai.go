// Package embedding provides the text-to-vector generators used by the
// auto-link pass: an OpenAI-backed embedder and a deterministic local
// embedder for offline use and tests.
package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	apperrors "memexia-backend/pkg/errors"
)

// OpenAIEmbedder generates embeddings through the OpenAI API. Calls are
// neither retried nor cached here; a failed call surfaces to the
// caller.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for the given model.
// dimensions must match what the model produces.
func NewOpenAIEmbedder(apiKey, model string, dimensions int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed returns the embedding vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, apperrors.External("create embedding", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.External("create embedding", fmt.Errorf("empty response"))
	}

	return resp.Data[0].Embedding, nil
}

// Dimensions returns the vector length this embedder produces.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}
