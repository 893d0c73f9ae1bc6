package models

// ScoredItem is the scoring engine's verdict for one checklist question.
// Produced once, never mutated.
type ScoredItem struct {
	Question   string            `json:"question"`
	UserAnswer string            `json:"user_answer"`
	Score      int               `json:"score"`
	Rationale  string            `json:"rationale"`
	Clauses    []RetrievedClause `json:"clauses"`
	Citations  []string          `json:"citations,omitempty"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
}

// GapItem is a scored item that fell below the acceptability threshold.
type GapItem struct {
	ScoredItem
	Suggestion string   `json:"suggestion"`
	Keywords   []string `json:"keywords,omitempty"`
}

// GapReport holds gaps in the order their items were scored.
// Count always equals len(Items).
type GapReport struct {
	Count int       `json:"count"`
	Items []GapItem `json:"items"`
}

// ChecklistItem is one question of a framework checklist.
type ChecklistItem struct {
	ID       string  `json:"id"`
	Question string  `json:"question"`
	Weight   float64 `json:"weight,omitempty"`
}
