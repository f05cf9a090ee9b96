package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

// RegisterModel adds a version of name pointing at source, creating the
// registered model on first use. New versions have no stage.
func (c *Client) RegisterModel(ctx context.Context, name, source, runID string) (domain.ModelVersion, error) {
	if c == nil || c.backend == nil {
		return domain.ModelVersion{}, errors.New("tracking client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ModelVersion{}, errors.New("model name is required")
	}
	if _, err := c.backend.GetRegisteredModel(ctx, name); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.ModelVersion{}, fmt.Errorf("get registered model %q: %w", name, err)
		}
		_, err = c.backend.CreateRegisteredModel(ctx, name, "")
		if err != nil && !errors.Is(err, repo.ErrConflict) {
			return domain.ModelVersion{}, fmt.Errorf("create registered model %q: %w", name, err)
		}
	}
	mv, err := c.backend.CreateModelVersion(ctx, name, source, runID)
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("create model version: %w", err)
	}
	c.logger.Info("model version registered", "model", mv.Name, "version", mv.Version, "run_id", runID)
	return mv, nil
}
