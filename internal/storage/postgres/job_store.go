// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/compscout/compscout/internal/landscape"
)

// ErrJobNotFound is returned when a job ID is unknown to the store.
var ErrJobNotFound = errors.New("job not found")

// JobStoreConfig controls the Postgres connection pool used for job metadata.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore persists jobs, artifacts, and proximity results in Postgres.
type JobStore struct {
	pool pgxPool
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool pgxPool) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job landscape.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	query := `
INSERT INTO jobs (id, status, submitted_at, parameters, rows_collected, pairs_skipped, failures)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.Submitted,
		params,
		job.Counters.RowsCollected,
		job.Counters.PairsSkipped,
		job.Counters.Failures,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus updates the status, counters, and lifecycle timestamps of a job.
func (s *JobStore) UpdateJobStatus(
	ctx context.Context,
	jobID string,
	status landscape.JobStatus,
	errText string,
	counters landscape.JobCounters,
) error {
	query := `
UPDATE jobs SET
	status = $2,
	error_text = $3,
	rows_collected = $4,
	pairs_skipped = $5,
	failures = $6,
	started_at = CASE WHEN $2 = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('succeeded','failed','canceled') THEN NOW() ELSE finished_at END
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		jobID,
		string(status),
		errText,
		counters.RowsCollected,
		counters.PairsSkipped,
		counters.Failures,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// RecordArtifact inserts an artifact row for a job.
func (s *JobStore) RecordArtifact(ctx context.Context, artifact landscape.ArtifactRecord) error {
	query := `
INSERT INTO artifacts (job_id, kind, name, row_count, content_hash, blob_uri, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.pool.Exec(ctx, query,
		artifact.JobID,
		string(artifact.Kind),
		artifact.Name,
		artifact.RowCount,
		artifact.ContentHash,
		artifact.BlobURI,
		artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

// SaveProximityResult upserts the proximity output for a job.
func (s *JobStore) SaveProximityResult(ctx context.Context, jobID string, result landscape.ProximityResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal proximity result: %w", err)
	}
	query := `
INSERT INTO proximity_results (job_id, result)
VALUES ($1,$2)
ON CONFLICT (job_id) DO UPDATE SET result = EXCLUDED.result`
	if _, err := s.pool.Exec(ctx, query, jobID, payload); err != nil {
		return fmt.Errorf("upsert proximity result: %w", err)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (landscape.Job, error) {
	query := `
SELECT id, status, submitted_at, started_at, finished_at, error_text, parameters,
	rows_collected, pairs_skipped, failures
FROM jobs WHERE id = $1`
	var (
		job    landscape.Job
		status string
		params []byte
	)
	err := s.pool.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&status,
		&job.Submitted,
		&job.Started,
		&job.Finished,
		&job.ErrorText,
		&params,
		&job.Counters.RowsCollected,
		&job.Counters.PairsSkipped,
		&job.Counters.Failures,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return landscape.Job{}, ErrJobNotFound
	}
	if err != nil {
		return landscape.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.Status = landscape.JobStatus(status)
	if err := json.Unmarshal(params, &job.Parameters); err != nil {
		return landscape.Job{}, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return job, nil
}

// ListArtifacts returns all artifact rows for a job in insertion order.
func (s *JobStore) ListArtifacts(ctx context.Context, jobID string) ([]landscape.ArtifactRecord, error) {
	query := `
SELECT job_id, kind, name, row_count, content_hash, blob_uri, created_at
FROM artifacts WHERE job_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("select artifacts: %w", err)
	}
	defer rows.Close()

	var out []landscape.ArtifactRecord
	for rows.Next() {
		var (
			rec  landscape.ArtifactRecord
			kind string
		)
		if err := rows.Scan(&rec.JobID, &kind, &rec.Name, &rec.RowCount, &rec.ContentHash, &rec.BlobURI, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		rec.Kind = landscape.JobKind(kind)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

// GetProximityResult returns the proximity result for a job, if present.
func (s *JobStore) GetProximityResult(ctx context.Context, jobID string) (landscape.ProximityResult, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM proximity_results WHERE job_id = $1`, jobID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return landscape.ProximityResult{}, false, nil
	}
	if err != nil {
		return landscape.ProximityResult{}, false, fmt.Errorf("select proximity result: %w", err)
	}
	var result landscape.ProximityResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return landscape.ProximityResult{}, false, fmt.Errorf("unmarshal proximity result: %w", err)
	}
	return result, true, nil
}
