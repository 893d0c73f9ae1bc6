package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"policy-audit/internal/embedding"
	"policy-audit/internal/index"
	"policy-audit/internal/models"
)

// RetrievalError wraps encode or index failures that survived the single
// internal retry.
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Retriever answers nearest-neighbor clause lookups over the current index
// version, with optional pairwise reranking of the candidate pool.
type Retriever struct {
	index    *index.Indexer
	embedder embedding.Embedder
	reranker Reranker
}

func New(ix *index.Indexer, emb embedding.Embedder, rr Reranker) *Retriever {
	if rr == nil {
		rr = LexicalReranker{}
	}
	return &Retriever{index: ix, embedder: emb, reranker: rr}
}

// TopK returns at most k clauses for the query, sorted by descending final
// score. preK is the candidate pool fetched before reranking: an explicit
// value is honored exactly, even below k, and caps the result; unset (<=0)
// defaults to max(k, 20). Ties break by original nearest-neighbor rank,
// then chunk ID, so identical inputs always produce identical output. An
// empty index yields an empty result, not an error.
func (r *Retriever) TopK(ctx context.Context, query string, k, preK int, rerank bool) ([]models.RetrievedClause, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	if preK <= 0 {
		preK = max(k, 20)
	}

	version := r.index.Current()
	if version.Count() == 0 {
		return nil, nil
	}

	expanded := expandQuery(query)
	vec, err := embedding.EmbedWithRetry(ctx, r.embedder, expanded)
	if err != nil {
		return nil, &RetrievalError{Op: "encode", Err: err}
	}

	candidates, err := version.Query(ctx, vec, preK)
	if err != nil {
		// One retry against the same snapshot; index errors are rare and
		// usually transient.
		candidates, err = version.Query(ctx, vec, preK)
		if err != nil {
			return nil, &RetrievalError{Op: "query", Err: err}
		}
	}

	if rerank {
		for i := range candidates {
			candidates[i].Score = r.reranker.Score(expanded, candidates[i].Chunk.Text)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		return a.Chunk.ID < b.Chunk.ID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Compliance acronyms expanded before encoding to improve recall.
func expandQuery(q string) string {
	ql := strings.ToLower(q)
	var expansions []string
	if strings.Contains(ql, "dpia") {
		expansions = append(expansions, "Data Protection Impact Assessment")
	} else if strings.Contains(ql, "pia") {
		expansions = append(expansions, "Privacy Impact Assessment")
	}
	if strings.Contains(ql, "dpo") {
		expansions = append(expansions, "Data Protection Officer")
	}
	if len(expansions) == 0 {
		return q
	}
	return q + " " + strings.Join(expansions, " ")
}
