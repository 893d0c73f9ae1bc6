package parser

import (
	"regexp"
	"strings"
)

var (
	hyphenBreakRe = regexp.MustCompile(`(\w)[-\x{00ad}]\s*\n\s*(\w)`)
	whitespaceRe  = regexp.MustCompile("[\t\v\f\r]+")
	pageNumRe     = regexp.MustCompile(`(?i)\n?\s*Page\s+\d+(?:\s*/\s*\d+)?\s*\n?`)
	multiBlankRe  = regexp.MustCompile(`\n{3,}`)
)

// Clean normalizes extracted document text before chunking: joins words
// hyphenated across line breaks, strips page-number boilerplate, and
// collapses stray whitespace. Deterministic for identical input.
func Clean(text string) string {
	t := strings.ReplaceAll(text, " ", " ")
	t = strings.ReplaceAll(t, "­", "")
	t = hyphenBreakRe.ReplaceAllString(t, "$1$2")
	t = whitespaceRe.ReplaceAllString(t, " ")
	t = pageNumRe.ReplaceAllString(t, "\n")
	t = multiBlankRe.ReplaceAllString(t, "\n\n")
	return strings.TrimSpace(t)
}
