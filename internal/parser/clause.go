package parser

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Law hints matched against filename and content, first match wins.
var lawHints = []struct{ hint, law string }{
	{"gdpr", "GDPR"},
	{"dpdp", "DPDP"},
	{"hipaa", "HIPAA"},
}

var articleRe = regexp.MustCompile(`(?i)(?:Article|Art\.)\s*(\d+[a-zA-Z]?)`)

// DetectLaw infers the regulation a document belongs to from its filename
// or content. Defaults to GDPR when nothing matches.
func DetectLaw(text, path string) string {
	name := strings.ToLower(filepath.Base(path))
	lower := strings.ToLower(text)
	for _, h := range lawHints {
		if strings.Contains(name, h.hint) || strings.Contains(lower, h.hint) {
			return h.law
		}
	}
	return "GDPR"
}

// DetectArticle extracts an "Article N" reference from a chunk of text.
// Returns the fallback when the chunk carries no article marker.
func DetectArticle(text, fallback string) string {
	if m := articleRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return fallback
}
