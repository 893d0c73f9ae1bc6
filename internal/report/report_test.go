package report

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-audit/internal/models"
)

func sampleAudit() Audit {
	composite := 3.5
	return Audit{
		JobID:      "job-1",
		OrgID:      "acme",
		PolicyType: "hr",
		Framework:  "GDPR",
		Composite:  &composite,
		Items: []models.ScoredItem{
			{Question: "Is breach notification documented?", Score: 2, Rationale: "barely", Provider: "mock", Model: "mock"},
			{Question: "Is retention bounded?", Score: 5, Rationale: "yes", Provider: "mock", Model: "mock"},
		},
		Gaps: models.GapReport{
			Count: 1,
			Items: []models.GapItem{{
				ScoredItem: models.ScoredItem{Question: "Is breach notification documented?", Score: 2},
				Suggestion: "Document the procedure.",
				Keywords:   []string{"Is", "breach", "notification", "documented?"},
			}},
		},
		Summary:     "Breach notification is the weak spot; retention is solid.",
		GeneratedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestGenerate(t *testing.T) {
	t.Run("writes json and rich document", func(t *testing.T) {
		dir := t.TempDir()
		arts, err := NewCompiler(dir).Generate(sampleAudit())
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "job-1.json"), arts.JSONPath)
		assert.Equal(t, filepath.Join(dir, "job-1.html"), arts.DocumentPath)
		assert.True(t, arts.Rich)

		data, err := os.ReadFile(arts.JSONPath)
		require.NoError(t, err)
		var round Audit
		require.NoError(t, json.Unmarshal(data, &round))
		assert.Equal(t, "acme", round.OrgID)
		require.NotNil(t, round.Composite)
		assert.Equal(t, 3.5, *round.Composite)

		html, err := os.ReadFile(arts.DocumentPath)
		require.NoError(t, err)
		assert.Contains(t, string(html), "Audit Report job-1")
		assert.Contains(t, string(html), "Executive Summary")
		assert.Contains(t, string(html), "weak spot")
	})

	t.Run("renderer failure degrades to plain text", func(t *testing.T) {
		dir := t.TempDir()
		c := &Compiler{Dir: dir, Renderer: failingRenderer{}}
		arts, err := c.Generate(sampleAudit())
		require.NoError(t, err)
		assert.False(t, arts.Rich)
		assert.Equal(t, filepath.Join(dir, "job-1.txt"), arts.DocumentPath)
		txt, err := os.ReadFile(arts.DocumentPath)
		require.NoError(t, err)
		assert.Contains(t, string(txt), "# Audit Report job-1")
	})

	t.Run("unwritable dir is an artifact error", func(t *testing.T) {
		c := NewCompiler(filepath.Join(t.TempDir(), "f", "\x00bad"))
		_, err := c.Generate(sampleAudit())
		var artErr *ArtifactError
		require.ErrorAs(t, err, &artErr)
	})
}

type failingRenderer struct{}

func (failingRenderer) Render([]byte) ([]byte, error) { return nil, errors.New("no renderer") }

func TestAnnotateText(t *testing.T) {
	gaps := sampleAudit().Gaps.Items

	t.Run("marker lands next to matching keyword", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "policy.txt")
		require.NoError(t, os.WriteFile(src, []byte("Our breach handling is informal."), 0o644))

		out, err := Annotate(src, gaps, "")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "policy.annotated.txt"), out)

		content, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(content), "breach [GAP score=2:")

		orig, _ := os.ReadFile(src)
		assert.Equal(t, "Our breach handling is informal.", string(orig))
	})

	t.Run("unmatched gaps appended as a section", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "policy.txt")
		require.NoError(t, os.WriteFile(src, []byte("Nothing relevant here."), 0o644))

		out, err := Annotate(src, gaps, "")
		require.NoError(t, err)
		content, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Contains(t, string(content), "--- Compliance Gaps ---")
		assert.Contains(t, string(content), "score=2")
	})

	t.Run("non-text source gets a txt sidecar", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "policy.md")
		require.NoError(t, os.WriteFile(src, []byte("breach procedure"), 0o644))

		out, err := Annotate(src, gaps, filepath.Join(dir, "annotated.pdf"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "annotated.txt"), out)
	})

	t.Run("missing source", func(t *testing.T) {
		_, err := Annotate(filepath.Join(t.TempDir(), "nope.txt"), gaps, "")
		var artErr *ArtifactError
		require.ErrorAs(t, err, &artErr)
	})
}

func TestGapMarker(t *testing.T) {
	g := models.GapItem{
		ScoredItem: models.ScoredItem{Question: "q" + strings.Repeat("ü", 100), Score: 2},
		Suggestion: "Cover it.",
	}
	marker := gapMarker(g)
	assert.True(t, utf8.ValidString(marker))
	assert.Contains(t, marker, "score=2")
}

func TestBundle(t *testing.T) {
	t.Run("zips only the job's artifacts", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "job-1.json"), []byte("{}"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "job-1.html"), []byte("<p/>"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "job-2.json"), []byte("{}"), 0o644))

		path, err := Bundle(dir, "job-1")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "job-1.zip"), path)

		zr, err := zip.OpenReader(path)
		require.NoError(t, err)
		defer zr.Close()
		var names []string
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		assert.ElementsMatch(t, []string{"job-1.json", "job-1.html"}, names)
	})

	t.Run("no artifacts still yields a valid archive", func(t *testing.T) {
		dir := t.TempDir()
		path, err := Bundle(dir, "ghost")
		require.NoError(t, err)
		zr, err := zip.OpenReader(path)
		require.NoError(t, err)
		defer zr.Close()
		assert.Empty(t, zr.File)
	})
}
