package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// Chunk is the unit of retrieval: a bounded span of source text with its
// embedding. Chunks are immutable once created.
type Chunk struct {
	ID        string    `json:"id"`
	SourceDoc string    `json:"source_doc"`
	Law       string    `json:"law"`
	Article   string    `json:"article"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// ChunkID derives the chunk identity from its content, so re-ingesting
// identical text produces identical IDs and reindexing stays idempotent.
func ChunkID(sourceDoc, law, article, text string) string {
	h := sha256.New()
	h.Write([]byte(sourceDoc))
	h.Write([]byte{0})
	h.Write([]byte(law))
	h.Write([]byte{0})
	h.Write([]byte(article))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:24]
}

// RetrievedClause is a chunk returned from a similarity query together with
// its relevance score and its rank in the raw nearest-neighbor ordering.
type RetrievedClause struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}
