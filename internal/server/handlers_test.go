package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policy-audit/internal/audit"
	"policy-audit/internal/config"
	"policy-audit/internal/embedding"
	"policy-audit/internal/index"
	"policy-audit/internal/models"
	"policy-audit/internal/report"
	"policy-audit/internal/retriever"
	"policy-audit/internal/scorer"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := config.Default()
	cfg.RAG.ScoreWorkers = 2
	cfg.Reports.Dir = t.TempDir()

	emb := embedding.NewHashEmbedder(32)
	ix, err := index.New(&cfg.RAG, emb)
	require.NoError(t, err)
	retr := retriever.New(ix, emb, nil)
	router := scorer.NewRouterWith()
	pipeline := audit.NewPipeline(cfg, ix, retr, router, report.NewCompiler(cfg.Reports.Dir))
	manager := audit.NewManager(cfg, pipeline, nil)

	policy := filepath.Join(t.TempDir(), "gdpr_policy.txt")
	content := "Personal data breaches are reported to the supervisory authority within 72 hours.\n\nRetention schedules bound storage duration."
	require.NoError(t, os.WriteFile(policy, []byte(content), 0o644))

	return New(cfg, manager, ix, retr, router), policy
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStartAuditValidation(t *testing.T) {
	s, policy := newTestServer(t)

	t.Run("missing org_id", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/audit/start", map[string]any{"source_ref": policy})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/audit/start", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUnknownJobRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, http.MethodGet, "/audit/ghost/status", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, http.MethodPost, "/audit/ghost/cancel", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, http.MethodPost, "/audit/ghost/rerun", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, http.MethodGet, "/audit/ghost/artifacts", nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(t, s, http.MethodGet, "/audit/ghost/stream", nil).Code)
}

func TestAuditFlow(t *testing.T) {
	s, policy := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/audit/start", map[string]any{
		"source_ref":  policy,
		"org_id":      "acme",
		"policy_type": "hr",
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var snap audit.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.NotEmpty(t, snap.JobID)

	t.Run("stream ends with sentinel", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/audit/"+snap.JobID+"/stream", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

		var last models.StreamEvent
		sc := bufio.NewScanner(rec.Body)
		sc.Buffer(make([]byte, 1024*1024), 1024*1024)
		for sc.Scan() {
			require.NoError(t, json.Unmarshal(sc.Bytes(), &last))
		}
		assert.Equal(t, models.StageEnd, last.Stage)
	})

	var final audit.Snapshot
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		w := doJSON(t, s, http.MethodGet, "/audit/"+snap.JobID+"/status", nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &final))
		if final.Status == audit.StatusCompleted || final.Status == audit.StatusError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, audit.StatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Equal(t, "GDPR", final.Result.Framework)

	t.Run("artifacts download as zip", func(t *testing.T) {
		w := doJSON(t, s, http.MethodGet, "/audit/"+snap.JobID+"/artifacts", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), snap.JobID+".zip")
		assert.Equal(t, []byte{'P', 'K'}, w.Body.Bytes()[:2])
	})

	t.Run("rerun yields a new job", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/audit/"+snap.JobID+"/rerun", nil)
		require.Equal(t, http.StatusAccepted, w.Code)
		var again audit.Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
		assert.NotEqual(t, snap.JobID, again.JobID)

		// Wait for the rerun job to finish so it stops writing into the
		// test's temp dirs before cleanup runs.
		deadline := time.Now().Add(15 * time.Second)
		for time.Now().Before(deadline) {
			w := doJSON(t, s, http.MethodGet, "/audit/"+again.JobID+"/status", nil)
			require.Equal(t, http.StatusOK, w.Code)
			var cur audit.Snapshot
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
			if cur.Status == audit.StatusCompleted || cur.Status == audit.StatusError {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	})
}

func TestScore(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("question required", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/score", map[string]any{"answer": "yes"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sync score against empty index", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/score", map[string]any{
			"question": "Is breach notification documented?",
			"answer":   "Yes, within 72 hours.",
		})
		require.Equal(t, http.StatusOK, w.Code)
		var item models.ScoredItem
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
		assert.Equal(t, "mock", item.Provider)
		assert.GreaterOrEqual(t, item.Score, 1)
		assert.LessOrEqual(t, item.Score, 5)
	})

	t.Run("streamed score emits final then sentinel", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"question": "Is retention bounded?"})
		req := httptest.NewRequest(http.MethodPost, "/score?stream=true", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var events []models.StreamEvent
		sc := bufio.NewScanner(rec.Body)
		for sc.Scan() {
			var ev models.StreamEvent
			require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
			events = append(events, ev)
		}
		require.GreaterOrEqual(t, len(events), 3)
		assert.Equal(t, models.EventClauses, events[0].Type)
		assert.Equal(t, models.EventFinal, events[len(events)-2].Type)
		assert.Equal(t, models.StageEnd, events[len(events)-1].Stage)
	})
}

func TestScoreBatch(t *testing.T) {
	s, _ := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/score/batch", map[string]any{
		"items": []map[string]string{
			{"question": "Is a DPO appointed?"},
			{"question": "Is data encrypted at rest?"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Items     []models.ScoredItem `json:"items"`
		Composite *float64            `json:"composite_score"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	require.NotNil(t, resp.Composite)

	want := float64(resp.Items[0].Score+resp.Items[1].Score) / 2
	assert.Equal(t, want, *resp.Composite)
}

func TestGapsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	items := []map[string]any{
		{"question": "q1", "score": 2},
		{"question": "q2", "score": 5},
	}

	t.Run("explicit threshold", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/gaps", map[string]any{
			"items":     items,
			"min_score": 4,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var rep models.GapReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		require.Equal(t, 1, rep.Count)
		assert.Equal(t, "q1", rep.Items[0].Question)
	})

	t.Run("absent threshold falls back to config", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/gaps", map[string]any{"items": items})
		require.Equal(t, http.StatusOK, w.Code)

		var rep models.GapReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		assert.Equal(t, 1, rep.Count)
	})

	t.Run("explicit zero disables gap detection", func(t *testing.T) {
		w := doJSON(t, s, http.MethodPost, "/gaps", map[string]any{
			"items":     items,
			"min_score": 0,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var rep models.GapReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		assert.Equal(t, 0, rep.Count)
	})
}

func TestScoreParseFailureSurfaces(t *testing.T) {
	cfg := config.Default()
	cfg.Reports.Dir = t.TempDir()
	emb := embedding.NewHashEmbedder(32)
	ix, err := index.New(&cfg.RAG, emb)
	require.NoError(t, err)
	retr := retriever.New(ix, emb, nil)
	router := scorer.NewRouterWith(&malformedScorer{})
	s := New(cfg, audit.NewManager(cfg, nil, nil), ix, retr, router)

	w := doJSON(t, s, http.MethodPost, "/score", map[string]any{"question": "anything"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

// malformedScorer always reports an out-of-range verdict.
type malformedScorer struct{}

func (malformedScorer) Name() string    { return "bad" }
func (malformedScorer) Available() bool { return true }

func (malformedScorer) Score(_ context.Context, _ string) (*scorer.Result, error) {
	return nil, &scorer.ScoreParseError{Reason: "score 7 out of range [1,5]"}
}

func (m malformedScorer) ScoreStream(ctx context.Context, prompt string, _ func(string)) (*scorer.Result, error) {
	return m.Score(ctx, prompt)
}

func (malformedScorer) Generate(_ context.Context, _ string) (string, error) {
	return "", &scorer.ScoreParseError{Reason: "no usable output"}
}
