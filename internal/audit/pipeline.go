package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"policy-audit/internal/checklist"
	"policy-audit/internal/config"
	"policy-audit/internal/gaps"
	"policy-audit/internal/index"
	"policy-audit/internal/models"
	"policy-audit/internal/parser"
	"policy-audit/internal/prompt"
	"policy-audit/internal/report"
	"policy-audit/internal/retriever"
	"policy-audit/internal/scorer"
)

// maxCorpusFiles bounds how many reference documents one run will index.
const maxCorpusFiles = 50

const answerExcerptLen = 600

var corpusExts = map[string]bool{
	".pdf": true, ".docx": true, ".pptx": true,
	".xlsx": true, ".ods": true, ".txt": true, ".md": true,
}

// Pipeline executes the audit stages for one job. It is stateless across
// jobs; everything per-run lives in runState.
type Pipeline struct {
	cfg      *config.Config
	indexer  *index.Indexer
	retr     *retriever.Retriever
	router   *scorer.Router
	compiler *report.Compiler

	// StageTimeout bounds each stage. Zero disables the limit.
	StageTimeout time.Duration
}

func NewPipeline(cfg *config.Config, ix *index.Indexer, retr *retriever.Retriever, router *scorer.Router, compiler *report.Compiler) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		indexer:  ix,
		retr:     retr,
		router:   router,
		compiler: compiler,
	}
}

type runState struct {
	framework string
	questions []models.ChecklistItem
	sourceDoc string
	source    string
	clauses   [][]models.RetrievedClause
	answers   []string
	bundles   []prompt.Bundle
	res       *Result
}

// Run drives the job through every stage. Cancellation is honored at stage
// boundaries; a stage error marks the job failed but keeps partial results.
func (p *Pipeline) Run(ctx context.Context, job *Job, persist func(*Job)) {
	st := &runState{res: &Result{PolicyType: job.Params.PolicyType}}

	stages := []struct {
		name string
		fn   func(context.Context, *Job, *runState) error
	}{
		{StageEmbedding, p.embeddingStage},
		{StageRetrieval, p.retrievalStage},
		{StagePrompt, p.promptStage},
		{StageScoring, p.scoringStage},
		{StageAnnotation, p.annotationStage},
		{StageReporting, p.reportingStage},
	}

	for _, s := range stages {
		if job.Cancelled() {
			job.cancel(st.res)
			if persist != nil {
				persist(job)
			}
			log.Info().Str("job_id", job.ID).Str("before_stage", s.name).Msg("job cancelled")
			return
		}
		job.setStage(s.name)
		if persist != nil {
			persist(job)
		}
		job.hub.publish(models.StreamEvent{
			Stage: s.name,
			Type:  models.EventProgress,
			Data:  map[string]any{"message": "started"},
		})
		if err := p.runStage(ctx, s.name, job, st, s.fn); err != nil {
			job.hub.publish(models.StreamEvent{
				Stage: models.StageError,
				Type:  models.EventError,
				Data:  map[string]any{"stage": s.name, "error": err.Error()},
			})
			job.fail(fmt.Errorf("%s: %w", s.name, err), st.res)
			log.Error().Err(err).Str("job_id", job.ID).Str("stage", s.name).Msg("stage failed")
			return
		}
	}
	job.complete(st.res)
	log.Info().Str("job_id", job.ID).Msg("audit completed")
}

func (p *Pipeline) runStage(ctx context.Context, name string, job *Job, st *runState, fn func(context.Context, *Job, *runState) error) error {
	stageCtx := ctx
	if p.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, p.StageTimeout)
		defer cancel()
	}
	err := fn(stageCtx, job, st)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &StageTimeoutError{Stage: name, Err: err}
	}
	return err
}

// embeddingStage parses the policy under audit, gathers the reference
// corpus, and publishes a fresh index version.
func (p *Pipeline) embeddingStage(ctx context.Context, job *Job, st *runState) error {
	text, err := parser.Parse(job.Params.SourceRef)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	st.source = parser.Clean(text)
	st.sourceDoc = filepath.Base(job.Params.SourceRef)

	files := append([]string{job.Params.SourceRef}, corpusFiles(p.cfg.RAG.CorpusDir)...)
	chunks, err := p.indexer.Ingest(ctx, files)
	if err != nil {
		return err
	}
	version, err := p.indexer.Build(ctx, chunks)
	if err != nil {
		return err
	}
	job.hub.publish(models.StreamEvent{
		Stage: StageEmbedding,
		Type:  models.EventProgress,
		Data:  map[string]any{"files": len(files), "chunks": len(chunks), "index_version": version.Num},
	})
	return nil
}

// retrievalStage resolves the framework, ranks its checklist against the
// policy text and retrieves supporting clauses per question.
func (p *Pipeline) retrievalStage(ctx context.Context, job *Job, st *runState) error {
	st.framework = checklist.ForPolicyType(job.Params.PolicyType)
	st.res.Framework = st.framework
	st.questions = checklist.SelectRelevant(st.framework, st.source, len(checklist.Items(st.framework)))

	st.clauses = make([][]models.RetrievedClause, len(st.questions))
	for i, q := range st.questions {
		cls, err := p.retr.TopK(ctx, q.Question, job.Params.TopK, p.cfg.RAG.PreK, p.cfg.RAG.Rerank)
		if err != nil {
			return fmt.Errorf("question %q: %w", q.ID, err)
		}
		st.clauses[i] = cls
	}
	job.hub.publish(models.StreamEvent{
		Stage: StageRetrieval,
		Type:  models.EventProgress,
		Data:  map[string]any{"framework": st.framework, "questions": len(st.questions)},
	})
	return nil
}

// promptStage derives per-question answers from the policy's own chunks and
// composes the grounded scoring prompts.
func (p *Pipeline) promptStage(_ context.Context, job *Job, st *runState) error {
	st.answers = make([]string, len(st.questions))
	st.bundles = make([]prompt.Bundle, len(st.questions))
	for i, q := range st.questions {
		st.answers[i] = answerFromClauses(st.clauses[i], st.sourceDoc)
		st.bundles[i] = prompt.BuildScorer(q.Question, st.answers[i], st.clauses[i])
	}
	job.hub.publish(models.StreamEvent{
		Stage: StagePrompt,
		Type:  models.EventProgress,
		Data:  map[string]any{"prompts": len(st.bundles)},
	})
	return nil
}

// scoringStage fans questions out to a bounded worker pool. Each question
// emits one clauses event, its rationale deltas, and lands in the results
// slice at its checklist position regardless of completion order.
func (p *Pipeline) scoringStage(ctx context.Context, job *Job, st *runState) error {
	results := make([]models.ScoredItem, len(st.bundles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.RAG.ScoreWorkers)
	for i := range st.bundles {
		i := i
		g.Go(func() error {
			b := st.bundles[i]
			job.hub.publish(models.StreamEvent{
				Stage: StageScoring,
				Type:  models.EventClauses,
				Data: map[string]any{
					"question_index": i,
					"question":       st.questions[i].Question,
					"clauses":        b.Clauses,
				},
			})
			res, err := p.router.ScoreStream(gctx, b.Prompt, job.Params.Prefer, func(delta string) {
				job.hub.publish(models.StreamEvent{
					Stage: StageScoring,
					Type:  models.EventRationaleDelta,
					Data:  map[string]any{"question_index": i, "delta": delta},
				})
			})
			if err != nil {
				return fmt.Errorf("question %q: %w", st.questions[i].ID, err)
			}
			results[i] = models.ScoredItem{
				Question:   st.questions[i].Question,
				UserAnswer: st.answers[i],
				Score:      res.Score,
				Rationale:  res.Rationale,
				Clauses:    b.Clauses,
				Citations:  res.Citations,
				Provider:   res.Provider,
				Model:      res.Model,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	st.res.Items = results
	if v, ok := gaps.Composite(results); ok {
		st.res.Composite = &v
	}
	job.hub.publish(models.StreamEvent{
		Stage: StageScoring,
		Type:  models.EventFinal,
		Data: map[string]any{
			"composite_score": st.res.Composite,
			"items":           results,
		},
	})
	return nil
}

// annotationStage computes the gap report, asks the scorer chain for an
// executive summary, marks gaps inside a copy of the source document and
// drafts corrected paragraphs. Summary, annotation and drafting are best
// effort; their failures are logged, not fatal.
func (p *Pipeline) annotationStage(ctx context.Context, job *Job, st *runState) error {
	st.res.Gaps = gaps.Compute(st.res.Items, p.cfg.RAG.MinScore)

	if len(st.res.Items) > 0 {
		summary, err := p.router.Generate(ctx, prompt.BuildSummary(st.res.Items), job.Params.Prefer)
		if err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("executive summary failed")
		} else {
			st.res.Summary = summary
		}
	}

	if st.res.Gaps.Count > 0 {
		out, err := report.Annotate(job.Params.SourceRef, st.res.Gaps.Items, "")
		if err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("source annotation failed")
		} else {
			st.res.AnnotatedPath = out
		}

		draftPrompt := prompt.BuildCorrectedDraft(gapBullets(st.res.Gaps.Items), citationsBlock(st.res.Items))
		draft, err := p.router.Generate(ctx, draftPrompt, job.Params.Prefer)
		if err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("corrected draft failed")
		} else {
			st.res.CorrectedDraft = draft
		}
	}

	job.hub.publish(models.StreamEvent{
		Stage: StageAnnotation,
		Type:  models.EventProgress,
		Data:  map[string]any{"gaps": st.res.Gaps.Count, "annotated_path": st.res.AnnotatedPath},
	})
	return nil
}

// reportingStage compiles the persistent artifacts. Artifact failure fails
// the stage; everything computed so far stays on the job record.
func (p *Pipeline) reportingStage(_ context.Context, job *Job, st *runState) error {
	arts, err := p.compiler.Generate(report.Audit{
		JobID:          job.ID,
		OrgID:          job.Params.OrgID,
		PolicyType:     job.Params.PolicyType,
		Framework:      st.framework,
		Composite:      st.res.Composite,
		Items:          st.res.Items,
		Gaps:           st.res.Gaps,
		Summary:        st.res.Summary,
		CorrectedDraft: st.res.CorrectedDraft,
		GeneratedAt:    time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	st.res.Artifacts = &arts
	job.hub.publish(models.StreamEvent{
		Stage: StageReporting,
		Type:  models.EventProgress,
		Data:  map[string]any{"json_path": arts.JSONPath, "document_path": arts.DocumentPath, "rich": arts.Rich},
	})
	return nil
}

// corpusFiles lists supported reference documents under dir, bounded by
// maxCorpusFiles. A missing or empty dir yields nothing.
func corpusFiles(dir string) []string {
	if dir == "" {
		return nil
	}
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if len(out) >= maxCorpusFiles {
			return fs.SkipAll
		}
		if corpusExts[strings.ToLower(filepath.Ext(path))] {
			out = append(out, path)
		}
		return nil
	})
	return out
}

// answerFromClauses treats the policy's own best-matching chunk as the
// organization's answer to the question. Without one, the question is
// unaddressed.
func answerFromClauses(clauses []models.RetrievedClause, sourceDoc string) string {
	for _, c := range clauses {
		if c.Chunk.SourceDoc != sourceDoc {
			continue
		}
		text := c.Chunk.Text
		if len(text) > answerExcerptLen {
			text = truncate(text, answerExcerptLen) + "..."
		}
		return text
	}
	return "The policy does not appear to address this topic."
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

func gapBullets(items []models.GapItem) string {
	var b strings.Builder
	for _, g := range items {
		fmt.Fprintf(&b, "- [score %d] %s: %s\n", g.Score, g.Question, g.Suggestion)
	}
	return b.String()
}

func citationsBlock(items []models.ScoredItem) string {
	seen := make(map[string]bool)
	var out []string
	for _, it := range items {
		for _, c := range it.Citations {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return strings.Join(out, "\n")
}
