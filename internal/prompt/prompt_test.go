package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"policy-audit/internal/models"
)

func TestBuildScorer(t *testing.T) {
	clauses := []models.RetrievedClause{
		{Chunk: models.Chunk{ID: "abc123", Law: "GDPR", Article: "33", Text: "breach notification within 72 hours"}},
	}
	b := BuildScorer("Is breach notification documented?", "Yes, section 4 covers it.", clauses)

	assert.Contains(t, b.Prompt, "Is breach notification documented?")
	assert.Contains(t, b.Prompt, "Yes, section 4 covers it.")
	assert.Contains(t, b.Prompt, "[GDPR.33#abc123]: breach notification within 72 hours")
	assert.Contains(t, b.Prompt, "'Score:'")
	assert.Contains(t, b.Prompt, "'Citations:'")
	assert.Equal(t, clauses, b.Clauses)
}

func TestCitationID(t *testing.T) {
	assert.Equal(t, "GDPR.33#x1", CitationID(models.Chunk{ID: "x1", Law: "GDPR", Article: "33"}))
	assert.Equal(t, "LAW.?#x1", CitationID(models.Chunk{ID: "x1"}))
	assert.Equal(t, "HIPAA.?#x1", CitationID(models.Chunk{ID: "x1", Law: "HIPAA"}))
}

func TestBuildSummary(t *testing.T) {
	got := BuildSummary([]models.ScoredItem{
		{Question: "Q1?", UserAnswer: "A1", Score: 4, Rationale: "ok"},
	})
	assert.Contains(t, got, "Q1?")
	assert.Contains(t, got, "Score: 4")
	assert.Contains(t, got, "executive summary")
}

func TestBuildCorrectedDraft(t *testing.T) {
	got := BuildCorrectedDraft("- [score 2] breach handling: add procedure", "GDPR.33#abc")
	assert.Contains(t, got, "GAPS:")
	assert.Contains(t, got, "breach handling")
	assert.Contains(t, got, "CITATIONS:\nGDPR.33#abc")
}
