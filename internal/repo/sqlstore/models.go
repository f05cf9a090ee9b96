package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/auditlog"
	"github.com/animus-labs/animus-tracking/internal/platform/requestid"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

const versionColumns = `name, version, current_stage, description, run_id, source, creation_time, last_updated_time`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (domain.ModelVersion, error) {
	var v domain.ModelVersion
	var stage string
	var created, updated int64
	if err := row.Scan(&v.Name, &v.Version, &stage, &v.Description, &v.RunID, &v.Source, &created, &updated); err != nil {
		return domain.ModelVersion{}, err
	}
	parsed, err := domain.ParseStage(stage)
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("model %s version %d: %w", v.Name, v.Version, err)
	}
	v.CurrentStage = parsed
	v.CreatedAt = fromMillis(created)
	v.UpdatedAt = fromMillis(updated)
	return v, nil
}

func (s *Store) CreateRegisteredModel(ctx context.Context, name, description string) (domain.RegisteredModel, error) {
	if s == nil || s.db == nil {
		return domain.RegisteredModel{}, fmt.Errorf("store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RegisteredModel{}, fmt.Errorf("model name is required")
	}
	now := s.nowUTC()
	model := domain.RegisteredModel{Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO registered_models (name, description, creation_time, last_updated_time) VALUES ($1,$2,$3,$4)`,
			model.Name, model.Description, toMillis(now), toMillis(now),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RegisteredModel{}, fmt.Errorf("registered model %q: %w", name, repo.ErrConflict)
		}
		return domain.RegisteredModel{}, fmt.Errorf("insert registered model: %w", err)
	}
	return model, nil
}

func (s *Store) GetRegisteredModel(ctx context.Context, name string) (domain.RegisteredModel, error) {
	if s == nil || s.db == nil {
		return domain.RegisteredModel{}, fmt.Errorf("store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.RegisteredModel{}, fmt.Errorf("model name is required")
	}
	var model domain.RegisteredModel
	var created, updated int64
	row := s.db.QueryRowContext(
		ctx,
		`SELECT name, description, creation_time, last_updated_time FROM registered_models WHERE name = $1`,
		name,
	)
	if err := row.Scan(&model.Name, &model.Description, &created, &updated); err != nil {
		return domain.RegisteredModel{}, fmt.Errorf("registered model %q: %w", name, handleNotFound(err))
	}
	model.CreatedAt = fromMillis(created)
	model.UpdatedAt = fromMillis(updated)
	return model, nil
}

// CreateModelVersion assigns the next version number for name. New
// versions start with the unset stage.
func (s *Store) CreateModelVersion(ctx context.Context, name, source, runID string) (domain.ModelVersion, error) {
	if s == nil || s.db == nil {
		return domain.ModelVersion{}, fmt.Errorf("store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ModelVersion{}, fmt.Errorf("model name is required")
	}
	now := s.nowUTC()
	version := domain.ModelVersion{
		Name:         name,
		CurrentStage: domain.StageNone,
		RunID:        strings.TrimSpace(runID),
		Source:       strings.TrimSpace(source),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM registered_models WHERE name = $1`, name).Scan(&exists); err != nil {
			return fmt.Errorf("registered model %q: %w", name, handleNotFound(err))
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE name = $1`, name).Scan(&version.Version); err != nil {
			return fmt.Errorf("next model version: %w", err)
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO model_versions (`+versionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			version.Name,
			version.Version,
			version.CurrentStage.String(),
			version.Description,
			version.RunID,
			version.Source,
			toMillis(now),
			toMillis(now),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("model %s version %d: %w", name, version.Version, repo.ErrConflict)
			}
			return fmt.Errorf("insert model version: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ModelVersion{}, err
	}
	return version, nil
}

func (s *Store) GetModelVersion(ctx context.Context, name string, version int64) (domain.ModelVersion, error) {
	if s == nil || s.db == nil {
		return domain.ModelVersion{}, fmt.Errorf("store not initialized")
	}
	return getModelVersion(ctx, s.db, name, version)
}

func getModelVersion(ctx context.Context, q DB, name string, version int64) (domain.ModelVersion, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+versionColumns+` FROM model_versions WHERE name = $1 AND version = $2`,
		strings.TrimSpace(name), version,
	)
	v, err := scanVersion(row)
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("model %s version %d: %w", name, version, handleNotFound(err))
	}
	return v, nil
}

// GetLatestVersions returns the highest version in every stage bucket of
// name, newest first.
func (s *Store) GetLatestVersions(ctx context.Context, name string) ([]domain.ModelVersion, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if _, err := s.GetRegisteredModel(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+versionColumns+` FROM model_versions mv
		 WHERE mv.name = $1
		   AND mv.version = (
			SELECT MAX(m2.version) FROM model_versions m2
			WHERE m2.name = mv.name AND m2.current_stage = mv.current_stage
		   )
		 ORDER BY mv.version DESC`,
		strings.TrimSpace(name),
	)
	if err != nil {
		return nil, fmt.Errorf("latest versions: %w", err)
	}
	defer rows.Close()

	versions := make([]domain.ModelVersion, 0, len(domain.AllStages()))
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest versions: %w", err)
	}
	return versions, nil
}

func (s *Store) TransitionModelVersionStage(ctx context.Context, req domain.StageTransitionRequest) (domain.ModelVersion, error) {
	return s.transition(ctx, req, nil)
}

// TransitionModelVersionStageWithDescription applies the transition and the
// description in one transaction.
func (s *Store) TransitionModelVersionStageWithDescription(ctx context.Context, req domain.StageTransitionRequest, description string) (domain.ModelVersion, error) {
	return s.transition(ctx, req, &description)
}

func (s *Store) UpdateModelVersionDescription(ctx context.Context, name string, version int64, description string) (domain.ModelVersion, error) {
	if s == nil || s.db == nil {
		return domain.ModelVersion{}, fmt.Errorf("store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ModelVersion{}, fmt.Errorf("model name is required")
	}
	var updated domain.ModelVersion
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE model_versions SET description = $1, last_updated_time = $2 WHERE name = $3 AND version = $4`,
			description, toMillis(s.nowUTC()), name, version,
		)
		if err != nil {
			return fmt.Errorf("update model version description: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update model version description: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("model %s version %d: %w", name, version, repo.ErrNotFound)
		}
		updated, err = getModelVersion(ctx, tx, name, version)
		return err
	})
	if err != nil {
		return domain.ModelVersion{}, err
	}
	return updated, nil
}

func (s *Store) transition(ctx context.Context, req domain.StageTransitionRequest, description *string) (domain.ModelVersion, error) {
	if s == nil || s.db == nil {
		return domain.ModelVersion{}, fmt.Errorf("store not initialized")
	}
	if err := req.Validate(); err != nil {
		return domain.ModelVersion{}, err
	}
	if !req.Stage.Valid() {
		return domain.ModelVersion{}, fmt.Errorf("%w: %q", domain.ErrInvalidStage, string(req.Stage))
	}
	name := strings.TrimSpace(req.ModelName)

	var updated domain.ModelVersion
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := getModelVersion(ctx, tx, name, req.Version)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		if req.ArchiveExisting && (req.Stage == domain.StageStaging || req.Stage == domain.StageProduction) {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE model_versions SET current_stage = $1, last_updated_time = $2
				 WHERE name = $3 AND current_stage = $4 AND version <> $5`,
				domain.StageArchived.String(), toMillis(now), name, req.Stage.String(), req.Version,
			); err != nil {
				return fmt.Errorf("archive existing versions: %w", err)
			}
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE model_versions SET current_stage = $1, last_updated_time = $2 WHERE name = $3 AND version = $4`,
			req.Stage.String(), toMillis(now), name, req.Version,
		); err != nil {
			return fmt.Errorf("transition model version stage: %w", err)
		}
		if description != nil {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE model_versions SET description = $1 WHERE name = $2 AND version = $3`,
				*description, name, req.Version,
			); err != nil {
				return fmt.Errorf("update model version description: %w", err)
			}
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE registered_models SET last_updated_time = $1 WHERE name = $2`,
			toMillis(now), name,
		); err != nil {
			return fmt.Errorf("touch registered model: %w", err)
		}
		audit := auditlog.StageTransition{
			OccurredAt:      now,
			Actor:           s.actor,
			RequestID:       requestid.FromContext(ctx),
			Host:            s.host,
			ModelName:       name,
			Version:         req.Version,
			FromStage:       current.CurrentStage.String(),
			ToStage:         req.Stage.String(),
			ArchiveExisting: req.ArchiveExisting,
		}
		if description != nil {
			audit.Description = *description
		}
		if _, err := auditlog.AppendStageTransition(ctx, tx, audit); err != nil {
			return err
		}
		updated, err = getModelVersion(ctx, tx, name, req.Version)
		return err
	})
	if err != nil {
		return domain.ModelVersion{}, err
	}
	return updated, nil
}

// StageHistory returns the verified audit chain of a model version's stage changes.
func (s *Store) StageHistory(ctx context.Context, name string, version int64) ([]auditlog.Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	records, err := auditlog.History(ctx, s.db, auditlog.ResourceModelVersion, auditlog.ModelVersionResource(strings.TrimSpace(name), version))
	if err != nil {
		return nil, err
	}
	if err := auditlog.Verify(records); err != nil {
		return nil, err
	}
	return records, nil
}
