package retriever

import (
	"regexp"
	"strings"
)

// Reranker rescores a (query, chunk) pair with a more precise pairwise
// relevance model than the bi-encoder similarity used for candidate
// selection.
type Reranker interface {
	Score(query, text string) float64
}

var termRe = regexp.MustCompile(`[a-z0-9]+`)

// LexicalReranker scores by term matching: one point per query term present
// in the chunk, two bonus points for the full query as a substring.
type LexicalReranker struct{}

func (LexicalReranker) Score(query, text string) float64 {
	q := strings.ToLower(query)
	t := strings.ToLower(text)
	if q == "" || t == "" {
		return 0
	}
	var score float64
	for _, term := range termRe.FindAllString(q, -1) {
		if strings.Contains(t, term) {
			score += 1.0
		}
	}
	if strings.Contains(t, q) {
		score += 2.0
	}
	return score
}
