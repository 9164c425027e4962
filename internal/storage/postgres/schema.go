package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	started_at TIMESTAMPTZ,
	finished_at TIMESTAMPTZ,
	error_text TEXT NOT NULL DEFAULT '',
	parameters JSONB NOT NULL,
	rows_collected INT NOT NULL DEFAULT 0,
	pairs_skipped INT NOT NULL DEFAULT 0,
	failures INT NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
	job_id TEXT NOT NULL REFERENCES jobs(id),
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	row_count INT NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL DEFAULT '',
	blob_uri TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS proximity_results (
	job_id TEXT PRIMARY KEY REFERENCES jobs(id),
	result JSONB NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS artifacts_job_id_idx ON artifacts (job_id)`,
}

// EnsureSchema creates the job tables if they do not already exist.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
