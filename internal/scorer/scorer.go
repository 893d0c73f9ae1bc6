package scorer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Result is a parsed, validated provider verdict.
type Result struct {
	Score     int      `json:"score"`
	Rationale string   `json:"rationale"`
	Citations []string `json:"citations,omitempty"`
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
}

// Scorer is the capability every provider implements.
type Scorer interface {
	Name() string
	Available() bool
	Score(ctx context.Context, prompt string) (*Result, error)
	// ScoreStream delivers rationale text incrementally through onDelta and
	// returns the same composed result a synchronous call would.
	ScoreStream(ctx context.Context, prompt string, onDelta func(delta string)) (*Result, error)
	// Generate returns raw completion text with no verdict parsing, for
	// free-form drafting prompts.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrProviderUnavailable reports that no provider, not even the mock
// fallback, could take the request.
var ErrProviderUnavailable = errors.New("no scoring provider available")

// ScoreParseError reports a provider response whose score was missing or
// outside [1,5]. It is a hard failure: scores are never silently defaulted
// or clamped.
type ScoreParseError struct {
	Reason string
	Raw    string
}

func (e *ScoreParseError) Error() string {
	raw := e.Raw
	if len(raw) > 120 {
		raw = truncate(raw, 120) + "..."
	}
	return fmt.Sprintf("score parse: %s (raw: %q)", e.Reason, raw)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// TimeoutError marks an external call that exceeded its bounded deadline,
// kept distinct from other provider failures.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %s timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

var (
	scoreLineRe   = regexp.MustCompile(`(?im)^\s*score\s*[:=]?\s*(-?\d+(?:\.\d+)?)`)
	scoreInlineRe = regexp.MustCompile(`(?i)\bscore\b[^0-9\-]{0,10}(-?\d+(?:\.\d+)?)`)
	bareNumberRe  = regexp.MustCompile(`\b(\d)\b`)
	citationRe    = regexp.MustCompile(`\[([A-Za-z0-9_.#-]+)\]`)
	citationsLine = regexp.MustCompile(`(?im)^citations:\s*(.+)$`)
)

// Parse extracts and validates score, rationale and citations from raw
// model output. Rounding a fractional score to the nearest integer is
// permitted; a value that still falls outside [1,5], or a response with no
// recognizable score, yields a *ScoreParseError.
func Parse(raw, provider, model string) (*Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ScoreParseError{Reason: "empty response", Raw: raw}
	}

	val, ok := findScore(text)
	if !ok {
		return nil, &ScoreParseError{Reason: "no score found", Raw: raw}
	}
	score := int(math.Round(val))
	if score < 1 || score > 5 {
		return nil, &ScoreParseError{Reason: fmt.Sprintf("score %v out of range [1,5]", val), Raw: raw}
	}

	return &Result{
		Score:     score,
		Rationale: text,
		Citations: findCitations(text),
		Provider:  provider,
		Model:     model,
	}, nil
}

func findScore(text string) (float64, bool) {
	for _, re := range []*regexp.Regexp{scoreLineRe, scoreInlineRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err == nil {
				return v, true
			}
		}
	}
	// Last resort: the first standalone digit, for terse responses like "4".
	if m := bareNumberRe.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			return v, true
		}
	}
	return 0, false
}

func findCitations(text string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if m := citationsLine.FindStringSubmatch(text); m != nil {
		for _, id := range strings.Split(m[1], ",") {
			add(strings.Trim(strings.TrimSpace(id), "[]"))
		}
	}
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	return out
}
