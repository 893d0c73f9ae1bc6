package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"policy-audit/internal/models"
)

// ArtifactError reports that an artifact could not be produced at all.
// A missing rich renderer is not an ArtifactError: generation degrades to a
// plain-text artifact instead.
type ArtifactError struct {
	Artifact string
	Err      error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Artifact, e.Err)
}

func (e *ArtifactError) Unwrap() error { return e.Err }

// Audit is everything the compiler needs to render a finished audit.
type Audit struct {
	JobID          string              `json:"job_id"`
	OrgID          string              `json:"org_id"`
	PolicyType     string              `json:"policy_type"`
	Framework      string              `json:"framework"`
	Composite      *float64            `json:"composite_score"`
	Items          []models.ScoredItem `json:"items"`
	Gaps           models.GapReport    `json:"gaps"`
	Summary        string              `json:"summary,omitempty"`
	CorrectedDraft string              `json:"corrected_draft,omitempty"`
	GeneratedAt    time.Time           `json:"generated_at"`
}

// Artifacts lists what Generate produced.
type Artifacts struct {
	JSONPath     string `json:"json_path"`
	DocumentPath string `json:"document_path"`
	Rich         bool   `json:"rich"`
}

// Renderer turns markdown into a rich document. Nil means "use goldmark".
type Renderer interface {
	Render(markdown []byte) ([]byte, error)
}

type goldmarkRenderer struct{}

func (goldmarkRenderer) Render(markdown []byte) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert(markdown, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compiler writes report artifacts into a directory.
type Compiler struct {
	Dir      string
	Renderer Renderer
}

func NewCompiler(dir string) *Compiler {
	return &Compiler{Dir: dir, Renderer: goldmarkRenderer{}}
}

// Generate always writes the machine-readable JSON artifact; the rich HTML
// document is attempted second and degrades to plain text if rendering
// fails, rather than failing the report.
func (c *Compiler) Generate(a Audit) (Artifacts, error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return Artifacts{}, &ArtifactError{Artifact: "dir", Err: err}
	}

	out := Artifacts{}
	jsonPath := filepath.Join(c.Dir, a.JobID+".json")
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return out, &ArtifactError{Artifact: "json", Err: err}
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return out, &ArtifactError{Artifact: "json", Err: err}
	}
	out.JSONPath = jsonPath

	md := buildMarkdown(a)
	renderer := c.Renderer
	if renderer == nil {
		renderer = goldmarkRenderer{}
	}
	if html, err := renderer.Render([]byte(md)); err == nil {
		docPath := filepath.Join(c.Dir, a.JobID+".html")
		if werr := os.WriteFile(docPath, html, 0o644); werr == nil {
			out.DocumentPath = docPath
			out.Rich = true
			return out, nil
		}
	} else {
		log.Warn().Err(err).Msg("rich renderer unavailable, writing plain-text report")
	}

	docPath := filepath.Join(c.Dir, a.JobID+".txt")
	if err := os.WriteFile(docPath, []byte(md), 0o644); err != nil {
		return out, &ArtifactError{Artifact: "document", Err: err}
	}
	out.DocumentPath = docPath
	return out, nil
}

func buildMarkdown(a Audit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Audit Report %s\n\n", a.JobID)
	fmt.Fprintf(&b, "- Organization: %s\n- Policy type: %s\n- Framework: %s\n", a.OrgID, a.PolicyType, a.Framework)
	if a.Composite != nil {
		fmt.Fprintf(&b, "- Composite score: %.2f\n", *a.Composite)
	} else {
		b.WriteString("- Composite score: n/a\n")
	}
	fmt.Fprintf(&b, "- Generated: %s\n\n", a.GeneratedAt.Format(time.RFC3339))

	if a.Summary != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(a.Summary)
		b.WriteString("\n\n")
	}

	b.WriteString("## Scored Items\n\n")
	for i, it := range a.Items {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, it.Question)
		fmt.Fprintf(&b, "Score: **%d** (provider %s, model %s)\n\n", it.Score, it.Provider, it.Model)
		if it.UserAnswer != "" {
			fmt.Fprintf(&b, "Answer: %s\n\n", it.UserAnswer)
		}
		fmt.Fprintf(&b, "%s\n\n", it.Rationale)
	}

	fmt.Fprintf(&b, "## Gaps (%d)\n\n", a.Gaps.Count)
	for _, g := range a.Gaps.Items {
		fmt.Fprintf(&b, "- **%s** (score %d): %s\n", g.Question, g.Score, g.Suggestion)
	}
	if a.CorrectedDraft != "" {
		b.WriteString("\n## Corrected Draft\n\n")
		b.WriteString(a.CorrectedDraft)
		b.WriteString("\n")
	}
	return b.String()
}
