package audit

import (
	"sync"
	"sync/atomic"
	"time"

	"policy-audit/internal/checklist"
	"policy-audit/internal/models"
	"policy-audit/internal/report"
)

// Pipeline stages, in execution order. Progress events carry these names and
// a job's CurrentStage only ever moves forward through them.
const (
	StageEmbedding  = "embedding"
	StageRetrieval  = "retrieval"
	StagePrompt     = "prompt"
	StageScoring    = "scoring"
	StageAnnotation = "annotation"
	StageReporting  = "reporting"
)

var stageOrder = []string{
	StageEmbedding,
	StageRetrieval,
	StagePrompt,
	StageScoring,
	StageAnnotation,
	StageReporting,
}

// Job statuses. completed, error and cancelled are terminal.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Params is the caller's audit request, fixed for the lifetime of the job.
type Params struct {
	SourceRef  string `json:"source_ref"`
	OrgID      string `json:"org_id"`
	PolicyType string `json:"policy_type"`
	TopK       int    `json:"top_k,omitempty"`
	Prefer     string `json:"prefer,omitempty"`
}

// Result accumulates pipeline output. A failed job keeps whatever was
// assembled before the failing stage.
type Result struct {
	PolicyType     string              `json:"policy_type"`
	Framework      string              `json:"framework"`
	Composite      *float64            `json:"composite_score"`
	Items          []models.ScoredItem `json:"items,omitempty"`
	Gaps           models.GapReport    `json:"gaps"`
	AnnotatedPath  string              `json:"annotated_path,omitempty"`
	Summary        string              `json:"summary,omitempty"`
	CorrectedDraft string              `json:"corrected_draft,omitempty"`
	Artifacts      *report.Artifacts   `json:"artifacts,omitempty"`
}

// Job is the in-memory record of one audit run. It is the authoritative
// state; the stream hub and the database row both trail it.
type Job struct {
	ID        string
	SessionID string
	Params    Params

	mu        sync.RWMutex
	status    string
	stage     string
	result    *Result
	errMsg    string
	createdAt time.Time
	updatedAt time.Time

	cancelled atomic.Bool
	hub       *hub
}

func newJob(id string, p Params) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		SessionID: checklist.StableSessionID(p.OrgID, p.SourceRef),
		Params:    p,
		status:    StatusQueued,
		createdAt: now,
		updatedAt: now,
		hub:       newHub(),
	}
}

// Snapshot is a consistent point-in-time view of a job, safe to serialize
// while the pipeline keeps running.
type Snapshot struct {
	JobID        string    `json:"job_id"`
	SessionID    string    `json:"session_id"`
	Status       string    `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`
	Params       Params    `json:"params"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Result       *Result   `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Snapshot{
		JobID:        j.ID,
		SessionID:    j.SessionID,
		Status:       j.status,
		CurrentStage: j.stage,
		Params:       j.Params,
		CreatedAt:    j.createdAt,
		UpdatedAt:    j.updatedAt,
		Result:       j.result,
		Error:        j.errMsg,
	}
}

// Cancelled reports whether cancellation has been requested. The pipeline
// honors it at stage boundaries only.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

func (j *Job) terminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	switch j.status {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

func (j *Job) setStatus(status string) {
	j.mu.Lock()
	j.status = status
	j.updatedAt = time.Now().UTC()
	j.mu.Unlock()
}

func (j *Job) setStage(stage string) {
	j.mu.Lock()
	j.stage = stage
	j.status = StatusRunning
	j.updatedAt = time.Now().UTC()
	j.mu.Unlock()
}

func (j *Job) fail(err error, res *Result) {
	j.mu.Lock()
	j.status = StatusError
	j.errMsg = err.Error()
	j.result = res
	j.updatedAt = time.Now().UTC()
	j.mu.Unlock()
}

func (j *Job) cancel(res *Result) {
	j.mu.Lock()
	j.status = StatusCancelled
	j.result = res
	j.updatedAt = time.Now().UTC()
	j.mu.Unlock()
}

func (j *Job) complete(res *Result) {
	j.mu.Lock()
	j.status = StatusCompleted
	j.result = res
	j.updatedAt = time.Now().UTC()
	j.mu.Unlock()
}
