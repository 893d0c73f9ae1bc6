package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-audit/internal/config"
)

func vecNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalize(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := Normalize([]float32{3, 4})
		assert.InDelta(t, 1.0, vecNorm(v), 1e-6)
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := Normalize([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(DefaultHashDim)
	ctx := context.Background()

	t.Run("deterministic", func(t *testing.T) {
		a, err := h.EmbedQuery(ctx, "retention of personal data")
		require.NoError(t, err)
		b, err := h.EmbedQuery(ctx, "retention of personal data")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("dimension and normalization", func(t *testing.T) {
		v, err := h.EmbedQuery(ctx, "breach notification within 72 hours")
		require.NoError(t, err)
		assert.Len(t, v, DefaultHashDim)
		assert.InDelta(t, 1.0, vecNorm(v), 1e-5)
	})

	t.Run("distinct texts differ", func(t *testing.T) {
		a, _ := h.EmbedQuery(ctx, "data protection officer")
		b, _ := h.EmbedQuery(ctx, "audit controls for systems")
		assert.NotEqual(t, a, b)
	})
}

func TestNewEmbedderFallback(t *testing.T) {
	t.Run("nil config uses hash embedder", func(t *testing.T) {
		e, err := NewEmbedder(nil)
		require.NoError(t, err)
		v, err := e.EmbedQuery(context.Background(), "x")
		require.NoError(t, err)
		assert.Len(t, v, DefaultHashDim)
	})

	t.Run("empty config uses hash embedder", func(t *testing.T) {
		e, err := NewEmbedder(&config.LLMConfig{})
		require.NoError(t, err)
		require.NotNil(t, e)
	})
}

func TestEmbedWithRetry(t *testing.T) {
	e := NewHashEmbedder(16)
	v, err := EmbedWithRetry(context.Background(), e, "stable input")
	require.NoError(t, err)
	assert.Len(t, v, 16)
}
