package scorer

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// Mock is the deterministic end of the provider chain. It needs no
// credentials and always answers, so automated tests and offline runs stay
// reproducible. Its results are clearly labeled provider "mock".
type Mock struct{}

func (Mock) Name() string { return "mock" }

func (Mock) Available() bool { return true }

func (m Mock) Score(_ context.Context, prompt string) (*Result, error) {
	return m.respond(prompt), nil
}

func (m Mock) ScoreStream(_ context.Context, prompt string, onDelta func(string)) (*Result, error) {
	res := m.respond(prompt)
	// Deliver the rationale in small slices, imitating token streaming.
	const chunk = 40
	for i := 0; i < len(res.Rationale); i += chunk {
		end := i + chunk
		if end > len(res.Rationale) {
			end = len(res.Rationale)
		}
		onDelta(res.Rationale[i:end])
	}
	return res, nil
}

func (m Mock) Generate(_ context.Context, prompt string) (string, error) {
	// A placeholder draft keyed to the prompt, so output stays stable
	// across runs without network access.
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf(
		"Revised draft (offline placeholder %x): the sections flagged below should state retention periods, lawful basis and escalation contacts explicitly.",
		sum[:4]), nil
}

func (Mock) respond(prompt string) *Result {
	sum := sha256.Sum256([]byte(prompt))
	score := 3 + int(sum[0]%3) // 3..5, stable per prompt

	citations := findCitations(prompt)
	if len(citations) > 2 {
		citations = citations[:2]
	}
	var cite string
	if len(citations) > 0 {
		cite = " Grounded in [" + strings.Join(citations, "], [") + "]."
	}
	rationale := fmt.Sprintf(
		"The policy addresses the question to a reasonable extent based on the cited clauses.%s\nScore: %d\nCitations: %s",
		cite, score, strings.Join(citations, ", "))

	return &Result{
		Score:     score,
		Rationale: rationale,
		Citations: citations,
		Provider:  "mock",
		Model:     "mock",
	}
}
