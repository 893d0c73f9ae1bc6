package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/nguyenthenguyen/docx"

	"policy-audit/internal/models"
)

// Annotate writes a new copy of the source document with gap markers next
// to the passages each gap's keywords match. The original file is never
// touched. DOCX sources get inline markers through the docx editor; every
// other format gets an annotated plain-text copy.
func Annotate(sourcePath string, gaps []models.GapItem, outPath string) (string, error) {
	if outPath == "" {
		ext := filepath.Ext(sourcePath)
		outPath = strings.TrimSuffix(sourcePath, ext) + ".annotated" + ext
	}
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".docx":
		return annotateDocx(sourcePath, gaps, outPath)
	default:
		return annotateText(sourcePath, gaps, outPath)
	}
}

func gapMarker(g models.GapItem) string {
	q := g.Question
	if len(q) > 80 {
		q = truncateRunes(q, 80)
	}
	return fmt.Sprintf(" [GAP score=%d: %s — %s]", g.Score, q, g.Suggestion)
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func annotateDocx(sourcePath string, gaps []models.GapItem, outPath string) (string, error) {
	r, err := docx.ReadDocxFile(sourcePath)
	if err != nil {
		return "", &ArtifactError{Artifact: "annotated", Err: err}
	}
	defer r.Close()

	doc := r.Editable()
	content := doc.GetContent()
	for _, g := range gaps {
		term := matchTerm(content, g)
		if term == "" {
			continue
		}
		if err := doc.Replace(term, term+gapMarker(g), 1); err != nil {
			continue
		}
		content = doc.GetContent()
	}
	if err := doc.WriteToFile(outPath); err != nil {
		return "", &ArtifactError{Artifact: "annotated", Err: err}
	}
	return outPath, nil
}

func annotateText(sourcePath string, gaps []models.GapItem, outPath string) (string, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", &ArtifactError{Artifact: "annotated", Err: err}
	}
	content := string(data)

	var unmatched []models.GapItem
	for _, g := range gaps {
		term := matchTerm(content, g)
		if term == "" {
			unmatched = append(unmatched, g)
			continue
		}
		content = strings.Replace(content, term, term+gapMarker(g), 1)
	}
	if len(unmatched) > 0 {
		var b strings.Builder
		b.WriteString("\n\n--- Compliance Gaps ---\n")
		for _, g := range unmatched {
			fmt.Fprintf(&b, "* score=%d %s\n  %s\n", g.Score, g.Question, g.Suggestion)
		}
		content += b.String()
	}

	// Non-text sources fall back to a sidecar .txt next to the requested
	// output path.
	if ext := strings.ToLower(filepath.Ext(outPath)); ext != ".txt" && ext != ".md" && ext != "" {
		outPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".txt"
	}
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return "", &ArtifactError{Artifact: "annotated", Err: err}
	}
	return outPath, nil
}

// matchTerm picks the first gap keyword that occurs in the document, so the
// marker lands near relevant text instead of at an arbitrary spot.
func matchTerm(content string, g models.GapItem) string {
	lower := strings.ToLower(content)
	for _, kw := range g.Keywords {
		if len(kw) < 4 {
			continue
		}
		if idx := strings.Index(lower, strings.ToLower(kw)); idx >= 0 {
			return content[idx : idx+len(kw)]
		}
	}
	return ""
}
