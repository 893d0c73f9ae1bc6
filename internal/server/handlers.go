package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"policy-audit/internal/audit"
	"policy-audit/internal/checklist"
	"policy-audit/internal/gaps"
	"policy-audit/internal/models"
	"policy-audit/internal/prompt"
	"policy-audit/internal/report"
	"policy-audit/internal/scorer"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"index":  s.indexer.Stats(),
	})
}

func (s *Server) startAudit(c *gin.Context) {
	var p audit.Params
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := s.manager.Start(p)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) status(c *gin.Context) {
	snap, err := s.manager.Status(c.Param("id"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// stream delivers the job's live events as NDJSON, one frame per line,
// finishing with the sentinel. Disconnecting only detaches the subscriber.
func (s *Server) stream(c *gin.Context) {
	ch, unsubscribe, err := s.manager.Subscribe(c.Param("id"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "application/x-ndjson")
	c.Writer.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(c.Writer)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			c.Writer.Flush()
			if ev.Stage == models.StageEnd {
				return
			}
		}
	}
}

func (s *Server) cancel(c *gin.Context) {
	snap, err := s.manager.Cancel(c.Param("id"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) rerun(c *gin.Context) {
	snap, err := s.manager.Rerun(c.Param("id"))
	if err != nil {
		s.jobError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

// artifacts bundles every file the job produced into one zip download.
func (s *Server) artifacts(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.manager.Status(id); err != nil {
		s.jobError(c, err)
		return
	}
	zipPath, err := report.Bundle(s.cfg.Reports.Dir, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(zipPath, filepath.Base(zipPath))
}

type scoreRequest struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer"`
	TopK     int    `json:"top_k"`
	Prefer   string `json:"prefer"`
}

// score runs retrieval plus one grounded scoring call against the current
// index. With ?stream=true the response is NDJSON: clauses, rationale
// deltas, the final verdict, then the sentinel.
func (s *Server) score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.RAG.TopK
	}
	req.TopK = checklist.ClampTopK(req.TopK)

	ctx := c.Request.Context()
	clauses, err := s.retr.TopK(ctx, req.Question, req.TopK, s.cfg.RAG.PreK, s.cfg.RAG.Rerank)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	bundle := prompt.BuildScorer(req.Question, req.Answer, clauses)

	streaming := c.Query("stream") == "1" || c.Query("stream") == "true"
	if !streaming {
		res, err := s.router.Score(ctx, bundle.Prompt, req.Prefer)
		if err != nil {
			s.scoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, scoredItem(req, res, clauses))
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Writer.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	emit := func(ev models.StreamEvent) {
		_ = enc.Encode(ev)
		c.Writer.Flush()
	}

	emit(models.StreamEvent{Stage: audit.StageScoring, Type: models.EventClauses, Data: gin.H{"clauses": clauses}})
	res, err := s.router.ScoreStream(ctx, bundle.Prompt, req.Prefer, func(delta string) {
		emit(models.StreamEvent{Stage: audit.StageScoring, Type: models.EventRationaleDelta, Data: gin.H{"delta": delta}})
	})
	if err != nil {
		emit(models.StreamEvent{Stage: models.StageError, Type: models.EventError, Data: gin.H{"stage": audit.StageScoring, "error": err.Error()}})
	} else {
		emit(models.StreamEvent{Stage: audit.StageScoring, Type: models.EventFinal, Data: scoredItem(req, res, clauses)})
	}
	emit(models.Sentinel())
}

type batchRequest struct {
	Items []struct {
		Question string `json:"question" binding:"required"`
		Answer   string `json:"answer"`
	} `json:"items" binding:"required"`
	TopK   int    `json:"top_k"`
	Prefer string `json:"prefer"`
}

func (s *Server) scoreBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TopK == 0 {
		req.TopK = s.cfg.RAG.TopK
	}
	req.TopK = checklist.ClampTopK(req.TopK)

	ctx := c.Request.Context()
	items := make([]models.ScoredItem, 0, len(req.Items))
	for _, it := range req.Items {
		clauses, err := s.retr.TopK(ctx, it.Question, req.TopK, s.cfg.RAG.PreK, s.cfg.RAG.Rerank)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		bundle := prompt.BuildScorer(it.Question, it.Answer, clauses)
		res, err := s.router.Score(ctx, bundle.Prompt, req.Prefer)
		if err != nil {
			s.scoreError(c, err)
			return
		}
		items = append(items, scoredItem(scoreRequest{Question: it.Question, Answer: it.Answer}, res, clauses))
	}

	resp := gin.H{"items": items}
	if v, ok := gaps.Composite(items); ok {
		resp["composite_score"] = v
	}
	c.JSON(http.StatusOK, resp)
}

type gapsRequest struct {
	Items []models.ScoredItem `json:"items" binding:"required"`
	// MinScore is a pointer so an explicit 0 is distinguishable from absent.
	MinScore *int `json:"min_score"`
}

func (s *Server) gapReport(c *gin.Context) {
	var req gapsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	minScore := s.cfg.RAG.MinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	c.JSON(http.StatusOK, gaps.Compute(req.Items, minScore))
}

func scoredItem(req scoreRequest, res *scorer.Result, clauses []models.RetrievedClause) models.ScoredItem {
	return models.ScoredItem{
		Question:   req.Question,
		UserAnswer: req.Answer,
		Score:      res.Score,
		Rationale:  res.Rationale,
		Clauses:    clauses,
		Citations:  res.Citations,
		Provider:   res.Provider,
		Model:      res.Model,
	}
}

func (s *Server) jobError(c *gin.Context, err error) {
	if errors.Is(err, audit.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) scoreError(c *gin.Context, err error) {
	var parseErr *scorer.ScoreParseError
	if errors.As(err, &parseErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
