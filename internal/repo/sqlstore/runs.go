package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

func (s *Store) CreateRun(ctx context.Context, experimentID string, startTime time.Time, tags map[string]string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("store not initialized")
	}
	experimentID = strings.TrimSpace(experimentID)
	if experimentID == "" {
		return domain.Run{}, fmt.Errorf("experiment id is required")
	}
	if startTime.IsZero() {
		startTime = s.nowUTC()
	}
	run := domain.Run{
		ID:           newID(),
		ExperimentID: experimentID,
		Status:       domain.RunStatusRunning,
		StartTime:    startTime.UTC(),
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
		Tags:         map[string]string{},
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var location string
		row := tx.QueryRowContext(ctx, `SELECT artifact_location FROM experiments WHERE experiment_id = $1`, experimentID)
		if err := row.Scan(&location); err != nil {
			return fmt.Errorf("experiment %s: %w", experimentID, handleNotFound(err))
		}
		run.ArtifactURI = run.ID + "/artifacts"
		if location != "" {
			run.ArtifactURI = strings.TrimSuffix(location, "/") + "/" + run.ArtifactURI
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO runs (run_id, experiment_id, status, start_time, artifact_uri) VALUES ($1,$2,$3,$4,$5)`,
			run.ID,
			run.ExperimentID,
			string(run.Status),
			toMillis(run.StartTime),
			run.ArtifactURI,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return upsertTags(ctx, tx, run.ID, tags)
	})
	if err != nil {
		return domain.Run{}, err
	}
	for k, v := range tags {
		run.Tags[k] = v
	}
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	if s == nil || s.db == nil {
		return domain.Run{}, fmt.Errorf("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return domain.Run{}, fmt.Errorf("run id is required")
	}

	var run domain.Run
	var status string
	var start int64
	var end sql.NullInt64
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, experiment_id, status, start_time, end_time, artifact_uri FROM runs WHERE run_id = $1`,
		runID,
	)
	if err := row.Scan(&run.ID, &run.ExperimentID, &status, &start, &end, &run.ArtifactURI); err != nil {
		return domain.Run{}, handleNotFound(err)
	}
	run.Status = domain.RunStatus(status)
	run.StartTime = fromMillis(start)
	if end.Valid {
		t := fromMillis(end.Int64)
		run.EndTime = &t
	}

	var err error
	if run.Params, err = s.keyValues(ctx, `SELECT key, value FROM params WHERE run_id = $1`, runID); err != nil {
		return domain.Run{}, fmt.Errorf("load params: %w", err)
	}
	if run.Tags, err = s.keyValues(ctx, `SELECT key, value FROM tags WHERE run_id = $1`, runID); err != nil {
		return domain.Run{}, fmt.Errorf("load tags: %w", err)
	}
	if run.Metrics, err = s.latestMetrics(ctx, runID); err != nil {
		return domain.Run{}, fmt.Errorf("load metrics: %w", err)
	}
	return run, nil
}

// LogBatch records params, metrics and tags atomically. Params are
// immutable: logging a different value for an existing key is a conflict.
func (s *Store) LogBatch(ctx context.Context, runID string, batch repo.RunBatch) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = $1`, runID).Scan(&status); err != nil {
			return fmt.Errorf("run %s: %w", runID, handleNotFound(err))
		}
		if domain.RunStatus(status).Terminal() {
			return fmt.Errorf("run %s is %s: %w", runID, status, repo.ErrConflict)
		}
		for _, p := range batch.Params {
			if err := insertParam(ctx, tx, runID, p); err != nil {
				return err
			}
		}
		for _, m := range batch.Metrics {
			ts := m.Timestamp
			if ts.IsZero() {
				ts = s.nowUTC()
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO metrics (run_id, key, value, step, timestamp) VALUES ($1,$2,$3,$4,$5)`,
				runID, m.Key, m.Value, m.Step, toMillis(ts),
			); err != nil {
				return fmt.Errorf("insert metric %s: %w", m.Key, err)
			}
		}
		return upsertTags(ctx, tx, runID, batch.Tags)
	})
}

func (s *Store) UpdateRun(ctx context.Context, runID string, update repo.RunUpdate) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if !update.Status.Valid() {
		return fmt.Errorf("invalid run status %q", update.Status)
	}
	var end sql.NullInt64
	if update.EndTime != nil {
		end = sql.NullInt64{Int64: toMillis(*update.EndTime), Valid: true}
	}
	var res sql.Result
	err := s.retry(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(
			ctx,
			`UPDATE runs SET status = $1, end_time = $2 WHERE run_id = $3`,
			string(update.Status), end, runID,
		)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func insertParam(ctx context.Context, q DB, runID string, p domain.Param) error {
	key := strings.TrimSpace(p.Key)
	if key == "" {
		return fmt.Errorf("param key is required")
	}
	var existing string
	err := q.QueryRowContext(ctx, `SELECT value FROM params WHERE run_id = $1 AND key = $2`, runID, key).Scan(&existing)
	switch {
	case err == nil:
		if existing != p.Value {
			return fmt.Errorf("param %s already logged with value %q: %w", key, existing, repo.ErrConflict)
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup param %s: %w", key, err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO params (run_id, key, value) VALUES ($1,$2,$3)`, runID, key, p.Value); err != nil {
		return fmt.Errorf("insert param %s: %w", key, err)
	}
	return nil
}

func upsertTags(ctx context.Context, q DB, runID string, tags map[string]string) error {
	for k, v := range tags {
		if _, err := q.ExecContext(
			ctx,
			`INSERT INTO tags (run_id, key, value) VALUES ($1,$2,$3)
			 ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value`,
			runID, k, v,
		); err != nil {
			return fmt.Errorf("upsert tag %s: %w", k, err)
		}
	}
	return nil
}

func (s *Store) keyValues(ctx context.Context, query, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// latestMetrics keeps, per key, the value with the highest (step, timestamp).
func (s *Store) latestMetrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, value FROM metrics WHERE run_id = $1 ORDER BY key, step, timestamp`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
