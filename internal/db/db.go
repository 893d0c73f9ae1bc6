package db

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"policy-audit/internal/config"
)

// JobRecord is the durable copy of a job's state. The in-memory job held by
// the orchestrator stays authoritative; rows here are written behind it.
type JobRecord struct {
	bun.BaseModel `bun:"table:audit_jobs,alias:j"`
	ID            string    `bun:"id,pk"`
	Status        string    `bun:"status,notnull"`
	Stage         string    `bun:"stage"`
	Params        []byte    `bun:"params,type:jsonb"`
	Result        []byte    `bun:"result,type:jsonb"`
	Error         string    `bun:"error"`
	CreatedAt     time.Time `bun:"created_at,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	return sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN),
		pgdriver.WithPassword(cfg.Password),
	)), nil
}

func InitDB(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*JobRecord)(nil)).IfNotExists().Exec(ctx)
	return err
}

// UpsertJob writes the record, replacing any previous row for the job.
func UpsertJob(ctx context.Context, db *bun.DB, rec *JobRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	_, err := db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("stage = EXCLUDED.stage").
		Set("result = EXCLUDED.result").
		Set("error = EXCLUDED.error").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// JobStore adapts a bun handle to the orchestrator's persistence hook.
type JobStore struct {
	DB *bun.DB
}

func (s *JobStore) SaveJob(ctx context.Context, rec *JobRecord) error {
	return UpsertJob(ctx, s.DB, rec)
}

// GetJob loads one record, for recovery tooling and inspection.
func GetJob(ctx context.Context, db *bun.DB, id string) (*JobRecord, error) {
	rec := new(JobRecord)
	err := db.NewSelect().Model(rec).Where("j.id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
