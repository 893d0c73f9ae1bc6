package gaps

import (
	"strings"

	"policy-audit/internal/models"
)

const defaultSuggestion = "Strengthen controls for this checklist item. Document specific procedures, add monitoring, and align with the cited regulation clauses."

// Compute returns every item scoring below minScore, preserving input
// order. Count always equals len(Items).
func Compute(items []models.ScoredItem, minScore int) models.GapReport {
	out := make([]models.GapItem, 0)
	for _, it := range items {
		if it.Score >= minScore {
			continue
		}
		out = append(out, models.GapItem{
			ScoredItem: it,
			Suggestion: defaultSuggestion,
			Keywords:   keywords(it.Question, 5),
		})
	}
	return models.GapReport{Count: len(out), Items: out}
}

// Composite returns the arithmetic mean score. The second return is false
// for an empty input: the composite of nothing is undefined, not zero.
func Composite(items []models.ScoredItem) (float64, bool) {
	if len(items) == 0 {
		return 0, false
	}
	total := 0
	for _, it := range items {
		total += it.Score
	}
	return float64(total) / float64(len(items)), true
}

func keywords(question string, n int) []string {
	fields := strings.Fields(question)
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}
