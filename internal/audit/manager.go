package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"policy-audit/internal/checklist"
	"policy-audit/internal/config"
	"policy-audit/internal/db"
	"policy-audit/internal/helper"
	"policy-audit/internal/models"
)

const persistTimeout = 5 * time.Second

// Store persists job records behind the in-memory state. A nil store keeps
// the orchestrator fully functional without a database.
type Store interface {
	SaveJob(ctx context.Context, rec *db.JobRecord) error
}

// Manager owns the job table and drives one pipeline goroutine per job.
type Manager struct {
	cfg      *config.Config
	pipeline *Pipeline
	store    Store

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(cfg *config.Config, pipeline *Pipeline, store Store) *Manager {
	return &Manager{
		cfg:      cfg,
		pipeline: pipeline,
		store:    store,
		jobs:     make(map[string]*Job),
	}
}

// Start validates the request, registers a queued job and launches its
// pipeline in the background. It returns before any stage runs.
func (m *Manager) Start(p Params) (Snapshot, error) {
	if strings.TrimSpace(p.SourceRef) == "" {
		return Snapshot{}, errors.New("source_ref is required")
	}
	if strings.TrimSpace(p.OrgID) == "" {
		return Snapshot{}, errors.New("org_id is required")
	}
	if p.TopK == 0 {
		p.TopK = m.cfg.RAG.TopK
	}
	p.TopK = checklist.ClampTopK(p.TopK)

	id, err := helper.GenerateUUID()
	if err != nil {
		return Snapshot{}, err
	}
	job := newJob(id, p)

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	m.persist(job)
	go m.run(job)

	log.Info().Str("job_id", id).Str("org_id", p.OrgID).Str("source", p.SourceRef).Msg("audit started")
	return job.Snapshot(), nil
}

func (m *Manager) run(job *Job) {
	m.pipeline.Run(context.Background(), job, m.persist)
	m.persist(job)
	job.hub.close()
}

func (m *Manager) get(id string) (*Job, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// Status returns the authoritative job record. It reflects stage boundaries
// already crossed, which may trail the live event stream.
func (m *Manager) Status(id string) (Snapshot, error) {
	job, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Cancel requests cooperative cancellation. The running stage finishes; the
// pipeline stops at the next boundary. Cancelling a terminal job is a no-op
// that returns the current snapshot.
func (m *Manager) Cancel(id string) (Snapshot, error) {
	job, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if job.terminal() {
		return job.Snapshot(), nil
	}
	job.cancelled.Store(true)
	log.Info().Str("job_id", id).Msg("cancellation requested")
	return job.Snapshot(), nil
}

// Rerun starts a fresh job with the same parameters. The original job and
// its artifacts are left untouched.
func (m *Manager) Rerun(id string) (Snapshot, error) {
	job, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return m.Start(job.Params)
}

// Subscribe attaches to a job's live event feed. The returned func detaches
// the subscriber; detaching never affects the job.
func (m *Manager) Subscribe(id string) (<-chan models.StreamEvent, func(), error) {
	job, err := m.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, unsubscribe := job.hub.subscribe()
	return ch, unsubscribe, nil
}

func (m *Manager) persist(job *Job) {
	if m.store == nil {
		return
	}
	snap := job.Snapshot()
	params, _ := json.Marshal(snap.Params)
	var result []byte
	if snap.Result != nil {
		result, _ = json.Marshal(snap.Result)
	}
	rec := &db.JobRecord{
		ID:        snap.JobID,
		Status:    snap.Status,
		Stage:     snap.CurrentStage,
		Params:    params,
		Result:    result,
		Error:     snap.Error,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.store.SaveJob(ctx, rec); err != nil {
		log.Warn().Err(err).Str("job_id", snap.JobID).Msg("job persistence failed")
	}
}
