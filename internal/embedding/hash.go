package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// DefaultHashDim matches the dimensionality of the small sentence encoders
// the index was originally tuned for.
const DefaultHashDim = 384

// HashEmbedder is a deterministic, offline stand-in for a real embedding
// model. Identical text always maps to the identical unit vector, and texts
// sharing tokens land nearby, which is enough signal for tests and for
// running the pipeline without any model server.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	// Token-level hashing so overlapping vocabulary yields overlapping
	// vector mass, not just identical-string equality.
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(tok))
		for i := 0; i+8 <= len(sum); i += 8 {
			idx := int(binary.BigEndian.Uint32(sum[i:i+4])) % h.dim
			val := int32(binary.BigEndian.Uint32(sum[i+4 : i+8]))
			vec[idx] += float32(val%1000) / 1000
		}
	}
	return Normalize(vec), nil
}
