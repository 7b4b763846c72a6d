package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic, dependency-free embedder: a hashed
// bag-of-words projected into a fixed number of dimensions and
// L2-normalized. It captures lexical overlap only, which is enough for
// development and tests; production deployments use the OpenAI
// embedder.
type LocalEmbedder struct {
	dimensions int
}

// NewLocalEmbedder creates a local embedder producing vectors of the
// given length.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic vector for text. Identical input always
// yields an identical vector.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		idx := int(h.Sum32()) % e.dimensions
		if idx < 0 {
			idx += e.dimensions
		}
		vec[idx]++
	}

	normalize(vec)
	return vec, nil
}

// Dimensions returns the vector length this embedder produces.
func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
