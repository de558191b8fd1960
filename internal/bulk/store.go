package bulk

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/facilitydesk/internal/platform/db"
)

// Migrations holds the schema for the job tables.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Store persists jobs and their item outcomes.
type Store interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, id string) (Job, error)
	ListItems(ctx context.Context, jobID string) ([]ItemResult, error)
	RecentJobs(ctx context.Context, limit int) ([]Job, error)
	MarkRunning(ctx context.Context, id string) error
	RecordItems(ctx context.Context, jobID string, results []ItemResult) error
	Finish(ctx context.Context, id string, status Status, errMsg string) error
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore constructs the store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const jobColumns = `id::text, request, status, total, succeeded, failed, error, created_at, updated_at`

func scanJob(row pgx.Row) (Job, error) {
	var job Job
	var raw []byte
	var status string
	if err := row.Scan(&job.ID, &raw, &status, &job.Total, &job.Succeeded, &job.Failed, &job.Error, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return Job{}, err
	}
	if err := json.Unmarshal(raw, &job.Request); err != nil {
		return Job{}, fmt.Errorf("bulk: decode request: %w", err)
	}
	job.Status = Status(status)
	return job, nil
}

// CreateJob inserts a queued job.
func (s *PgStore) CreateJob(ctx context.Context, job Job) error {
	raw, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("bulk: encode request: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO bulk_jobs (id, view_name, resource, action, request, status, total, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		job.ID, job.Request.View, job.Request.Resource, string(job.Request.Action), raw, string(job.Status), job.Total, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("bulk: insert job: %w", err)
	}
	return nil
}

// GetJob loads one job.
func (s *PgStore) GetJob(ctx context.Context, id string) (Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM bulk_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

// ListItems returns the recorded outcomes of a job ordered by item id.
func (s *PgStore) ListItems(ctx context.Context, jobID string) ([]ItemResult, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id::text, item_id, ok, error, at FROM bulk_job_items WHERE job_id = $1 ORDER BY item_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("bulk: list items: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ItemResult, error) {
		var r ItemResult
		err := row.Scan(&r.JobID, &r.ItemID, &r.OK, &r.Error, &r.At)
		return r, err
	})
}

// RecentJobs lists the newest jobs.
func (s *PgStore) RecentJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM bulk_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("bulk: recent jobs: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Job, error) {
		return scanJob(row)
	})
}

// MarkRunning flags a job as picked up by a worker.
func (s *PgStore) MarkRunning(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bulk_jobs SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("bulk: mark running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RecordItems upserts item outcomes and refreshes the job counters in one transaction.
// Retried jobs overwrite earlier outcomes of the same item.
func (s *PgStore) RecordItems(ctx context.Context, jobID string, results []ItemResult) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range results {
			batch.Queue(`INSERT INTO bulk_job_items (job_id, item_id, ok, error, at) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (job_id, item_id) DO UPDATE SET ok = EXCLUDED.ok, error = EXCLUDED.error, at = EXCLUDED.at`,
				jobID, r.ItemID, r.OK, r.Error, r.At)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("bulk: record items: %w", err)
		}
		_, err := tx.Exec(ctx, `UPDATE bulk_jobs SET
    succeeded = (SELECT COUNT(*) FROM bulk_job_items WHERE job_id = $1 AND ok),
    failed = (SELECT COUNT(*) FROM bulk_job_items WHERE job_id = $1 AND NOT ok),
    updated_at = NOW()
WHERE id = $1`, jobID)
		if err != nil {
			return fmt.Errorf("bulk: update counters: %w", err)
		}
		return nil
	})
}

// Finish stores the final status.
func (s *PgStore) Finish(ctx context.Context, id string, status Status, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE bulk_jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1`, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("bulk: finish job: %w", err)
	}
	return nil
}

// Prune deletes finished jobs created before olderThan.
func (s *PgStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bulk_jobs WHERE created_at < $1 AND status IN ($2, $3, $4)`,
		olderThan, string(StatusSucceeded), string(StatusPartial), string(StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("bulk: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
