package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"policy-audit/internal/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns text into a fixed-length vector. All implementations in
// this package return unit-normalized vectors, so inner product equals
// cosine similarity and queries need no extra normalization step.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder builds an embedder for the configured backend. An empty
// config selects the deterministic hash embedder, which keeps indexing and
// tests reproducible without a live model server.
func NewEmbedder(cfg *config.LLMConfig) (Embedder, error) {
	if cfg == nil || (cfg.BaseURL == "" && cfg.Backend == "") {
		return NewHashEmbedder(0), nil
	}
	if cfg.Backend == "ollama" {
		impl, err := newOllamaEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		return &normalizing{inner: impl}, nil
	}
	impl, err := newOpenAIEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return &normalizing{inner: impl}, nil
}

func newOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		log.Error().Err(err).Msg("Error initializing LLM")
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

func newOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		log.Error().Err(err).Msg("Error initializing LLM")
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// normalizing wraps a langchaingo embedder and unit-normalizes its output.
type normalizing struct {
	inner *embeddings.EmbedderImpl
}

func (n *normalizing) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := n.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(vec), nil
}

// Normalize scales a vector to unit length. A zero vector is returned
// unchanged.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// EmbedWithRetry embeds text, retrying once on failure.
func EmbedWithRetry(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vec, err := e.EmbedQuery(ctx, text)
	if err == nil {
		return vec, nil
	}
	log.Warn().Err(err).Msg("embed failed, retrying once")
	return e.EmbedQuery(ctx, text)
}
