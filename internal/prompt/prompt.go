package prompt

import (
	"fmt"
	"strings"

	"policy-audit/internal/models"
)

const systemPrompt = "You are a legal compliance auditor."

// Bundle pairs the composed prompt with the clauses it was grounded on, so
// callers can report exactly what the model saw.
type Bundle struct {
	Prompt  string
	Clauses []models.RetrievedClause
}

// BuildScorer composes the grounded scoring instruction: retrieved clauses
// with citation identifiers, the checklist question, the user's answer, and
// an instruction demanding an integer score in [1,5] plus a Citations line.
func BuildScorer(question, userAnswer string, clauses []models.RetrievedClause) Bundle {
	var b strings.Builder
	b.WriteString("System:\n" + systemPrompt + "\n")
	b.WriteString("User:\n")
	fmt.Fprintf(&b, "Checklist Question: %s\n", question)
	fmt.Fprintf(&b, "User Answer: %s\n", userAnswer)
	b.WriteString("Relevant Legal Clauses:\n")
	for _, c := range clauses {
		fmt.Fprintf(&b, "[%s]: %s\n", CitationID(c.Chunk), c.Chunk.Text)
	}
	b.WriteString("\nInstruction:\n" +
		"1) Score the organization from 1 (non-compliant) to 5 (fully compliant).\n" +
		"2) Provide a concise rationale that directly quotes or paraphrases the most relevant clauses.\n" +
		"3) Explicitly cite clause IDs inline using the exact format [LAW.ARTICLE#CLAUSE_ID].\n" +
		"4) End with a separate line starting with 'Score:' followed by the integer score, and a line starting with 'Citations:' followed by a comma-separated list of unique clause IDs.\n" +
		"Keep the rationale crisp (3-6 sentences).")
	return Bundle{Prompt: b.String(), Clauses: clauses}
}

// CitationID renders the inline citation identifier for a chunk.
func CitationID(c models.Chunk) string {
	law := c.Law
	if law == "" {
		law = "LAW"
	}
	article := c.Article
	if article == "" {
		article = "?"
	}
	return fmt.Sprintf("%s.%s#%s", law, article, c.ID)
}

// BuildSummary composes an executive-summary prompt over scored items.
func BuildSummary(items []models.ScoredItem) string {
	var b strings.Builder
	b.WriteString("System:\n" + systemPrompt + "\n")
	b.WriteString("User:\nGenerate an executive summary of the audit results.\n\nItems:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "- [%d] Q: %s\n  Answer: %s\n  Score: %d\n  Rationale: %s\n",
			i+1, strings.TrimSpace(it.Question), strings.TrimSpace(it.UserAnswer), it.Score, strings.TrimSpace(it.Rationale))
	}
	b.WriteString("\nInstruction:\n" +
		"Write a concise executive summary with:\n" +
		"1) Overall compliance assessment and brief justification.\n" +
		"2) Top strengths (bullet points).\n" +
		"3) Key gaps and their impact (bullet points).\n" +
		"4) Actionable next steps prioritized by impact.\n" +
		"Keep it under 200-300 words, use clear bullets, and avoid generic statements.")
	return b.String()
}

// BuildCorrectedDraft asks for replacement policy paragraphs covering the
// detected gaps, citing the supplied clauses inline.
func BuildCorrectedDraft(gapBullets, citationsBlock string) string {
	return "You are a compliance policy editor. Based on the following gaps, draft succinct corrected policy paragraphs " +
		"(2-4 sentences each) suitable to insert into the organization's policy. Use clear, neutral tone. " +
		"Return one section per bullet, prefixed with 'Section:' and keep total under 800 words. " +
		"When appropriate, reference the provided citations inline in square brackets.\n\n" +
		"GAPS:\n" + gapBullets + "\n\n" +
		"CITATIONS:\n" + citationsBlock + "\n\n" +
		"Corrected Draft:\n"
}
