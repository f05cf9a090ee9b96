package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

var commonSchema = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		experiment_id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		artifact_location TEXT NOT NULL DEFAULT '',
		creation_time BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		experiment_id TEXT NOT NULL REFERENCES experiments(experiment_id),
		status TEXT NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT,
		artifact_uri TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS params (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		key TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		step BIGINT NOT NULL DEFAULT 0,
		timestamp BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS metrics_run_key_idx ON metrics (run_id, key)`,
	`CREATE TABLE IF NOT EXISTS tags (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS registered_models (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		creation_time BIGINT NOT NULL,
		last_updated_time BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_versions (
		name TEXT NOT NULL REFERENCES registered_models(name),
		version BIGINT NOT NULL,
		current_stage TEXT NOT NULL DEFAULT 'None',
		description TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		creation_time BIGINT NOT NULL,
		last_updated_time BIGINT NOT NULL,
		PRIMARY KEY (name, version)
	)`,
}

var auditSchema = map[Dialect]string{
	DialectSQLite: `CREATE TABLE IF NOT EXISTS audit_events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at BIGINT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		prev_sha256 TEXT NOT NULL DEFAULT '',
		integrity_sha256 TEXT NOT NULL
	)`,
	DialectPostgres: `CREATE TABLE IF NOT EXISTS audit_events (
		event_id BIGSERIAL PRIMARY KEY,
		occurred_at BIGINT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		prev_sha256 TEXT NOT NULL DEFAULT '',
		integrity_sha256 TEXT NOT NULL
	)`,
}

// Migrate creates any missing tables. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	statements := append(append([]string{}, commonSchema...), auditSchema[s.dialect])
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		return nil
	})
}
