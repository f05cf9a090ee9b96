package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
)

// DescriptionWriter updates version descriptions.
type DescriptionWriter interface {
	UpdateModelVersionDescription(ctx context.Context, name string, version int64, description string) (domain.ModelVersion, error)
}

type Repairer struct {
	registry DescriptionWriter
	options
}

func NewRepairer(registry DescriptionWriter, opts ...Option) (*Repairer, error) {
	if registry == nil {
		return nil, errors.New("model registry is required")
	}
	return &Repairer{registry: registry, options: buildOptions(opts)}, nil
}

// NeedsRepair reports whether v is staged but its description is empty or
// a generated one that names another version or stage.
func NeedsRepair(v domain.ModelVersion) bool {
	if !v.CurrentStage.IsSet() {
		return false
	}
	text := strings.TrimSpace(v.Description)
	if text == "" {
		return true
	}
	d, ok := ParseDescription(text)
	if !ok {
		return false
	}
	return d.Version != v.Version || d.Stage != v.CurrentStage.String()
}

// Repair rewrites the descriptions of versions that need it and returns
// versions with the updates applied, in the same order.
func (r *Repairer) Repair(ctx context.Context, versions []domain.ModelVersion) ([]domain.ModelVersion, error) {
	if r == nil || r.registry == nil {
		return nil, errors.New("repairer not initialized")
	}
	out := make([]domain.ModelVersion, len(versions))
	copy(out, versions)
	for i, v := range out {
		if !NeedsRepair(v) {
			continue
		}
		description := Describe(v.Version, v.CurrentStage, r.now())
		updated, err := r.registry.UpdateModelVersionDescription(ctx, v.Name, v.Version, description)
		if err != nil {
			return nil, fmt.Errorf("repair %s version %d: %w", v.Name, v.Version, err)
		}
		r.logger.Info("model version description repaired", "model", v.Name, "version", v.Version, "stage", v.CurrentStage.String())
		out[i] = updated
	}
	return out, nil
}
