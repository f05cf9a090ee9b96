package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

// CreateExperiment creates an experiment whose artifacts live under
// artifactRoot/<experiment id>.
func (s *Store) CreateExperiment(ctx context.Context, name, artifactRoot string) (domain.Experiment, error) {
	if s == nil || s.db == nil {
		return domain.Experiment{}, fmt.Errorf("store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Experiment{}, fmt.Errorf("experiment name is required")
	}
	exp := domain.Experiment{
		ID:        newID(),
		Name:      name,
		CreatedAt: s.nowUTC(),
	}
	if root := strings.TrimSuffix(strings.TrimSpace(artifactRoot), "/"); root != "" {
		exp.ArtifactLocation = root + "/" + exp.ID
	}
	err := s.retry(ctx, func() error {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO experiments (experiment_id, name, artifact_location, creation_time) VALUES ($1,$2,$3,$4)`,
			exp.ID,
			exp.Name,
			exp.ArtifactLocation,
			toMillis(exp.CreatedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Experiment{}, fmt.Errorf("experiment %q: %w", name, repo.ErrConflict)
		}
		return domain.Experiment{}, fmt.Errorf("insert experiment: %w", err)
	}
	return exp, nil
}

func (s *Store) GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error) {
	if s == nil || s.db == nil {
		return domain.Experiment{}, fmt.Errorf("store not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Experiment{}, fmt.Errorf("experiment name is required")
	}
	var exp domain.Experiment
	var created int64
	row := s.db.QueryRowContext(
		ctx,
		`SELECT experiment_id, name, artifact_location, creation_time FROM experiments WHERE name = $1`,
		name,
	)
	if err := row.Scan(&exp.ID, &exp.Name, &exp.ArtifactLocation, &created); err != nil {
		return domain.Experiment{}, handleNotFound(err)
	}
	exp.CreatedAt = fromMillis(created)
	return exp, nil
}
