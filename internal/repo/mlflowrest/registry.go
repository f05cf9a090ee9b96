package mlflowrest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/domain"
)

type registeredModelJSON struct {
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	CreationTimestamp    flexInt64 `json:"creation_timestamp"`
	LastUpdatedTimestamp flexInt64 `json:"last_updated_timestamp"`
}

type modelVersionJSON struct {
	Name                 string    `json:"name"`
	Version              flexInt64 `json:"version"`
	CurrentStage         string    `json:"current_stage"`
	Description          string    `json:"description"`
	RunID                string    `json:"run_id"`
	Source               string    `json:"source"`
	CreationTimestamp    flexInt64 `json:"creation_timestamp"`
	LastUpdatedTimestamp flexInt64 `json:"last_updated_timestamp"`
}

func (m modelVersionJSON) toDomain() (domain.ModelVersion, error) {
	stage, err := domain.ParseStage(m.CurrentStage)
	if err != nil {
		return domain.ModelVersion{}, fmt.Errorf("model %s version %d: %w", m.Name, m.Version, err)
	}
	return domain.ModelVersion{
		Name:         m.Name,
		Version:      int64(m.Version),
		CurrentStage: stage,
		Description:  m.Description,
		RunID:        m.RunID,
		Source:       m.Source,
		CreatedAt:    millis(m.CreationTimestamp),
		UpdatedAt:    millis(m.LastUpdatedTimestamp),
	}, nil
}

func (c *Client) CreateRegisteredModel(ctx context.Context, name, description string) (domain.RegisteredModel, error) {
	in := map[string]any{"name": strings.TrimSpace(name), "description": description}
	var out struct {
		RegisteredModel registeredModelJSON `json:"registered_model"`
	}
	if err := c.call(ctx, http.MethodPost, "registered-models/create", nil, in, &out); err != nil {
		return domain.RegisteredModel{}, err
	}
	return registeredModel(out.RegisteredModel), nil
}

func (c *Client) GetRegisteredModel(ctx context.Context, name string) (domain.RegisteredModel, error) {
	var out struct {
		RegisteredModel registeredModelJSON `json:"registered_model"`
	}
	if err := c.call(ctx, http.MethodGet, "registered-models/get", url.Values{"name": {strings.TrimSpace(name)}}, nil, &out); err != nil {
		return domain.RegisteredModel{}, err
	}
	return registeredModel(out.RegisteredModel), nil
}

func (c *Client) CreateModelVersion(ctx context.Context, name, source, runID string) (domain.ModelVersion, error) {
	in := map[string]any{"name": strings.TrimSpace(name), "source": source}
	if runID = strings.TrimSpace(runID); runID != "" {
		in["run_id"] = runID
	}
	return c.versionCall(ctx, http.MethodPost, "model-versions/create", nil, in)
}

func (c *Client) GetModelVersion(ctx context.Context, name string, version int64) (domain.ModelVersion, error) {
	query := url.Values{"name": {strings.TrimSpace(name)}, "version": {strconv.FormatInt(version, 10)}}
	return c.versionCall(ctx, http.MethodGet, "model-versions/get", query, nil)
}

// GetLatestVersions returns the versions in the order the server lists them.
func (c *Client) GetLatestVersions(ctx context.Context, name string) ([]domain.ModelVersion, error) {
	in := map[string]any{"name": strings.TrimSpace(name)}
	var out struct {
		ModelVersions []modelVersionJSON `json:"model_versions"`
	}
	if err := c.call(ctx, http.MethodPost, "registered-models/get-latest-versions", nil, in, &out); err != nil {
		return nil, err
	}
	versions := make([]domain.ModelVersion, 0, len(out.ModelVersions))
	for _, mv := range out.ModelVersions {
		v, err := mv.toDomain()
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// TransitionModelVersionStage sends the stage label unvalidated; the server
// decides whether it is recognized.
func (c *Client) TransitionModelVersionStage(ctx context.Context, req domain.StageTransitionRequest) (domain.ModelVersion, error) {
	if err := req.Validate(); err != nil {
		return domain.ModelVersion{}, err
	}
	in := map[string]any{
		"name":                      strings.TrimSpace(req.ModelName),
		"version":                   strconv.FormatInt(req.Version, 10),
		"stage":                     req.Stage.String(),
		"archive_existing_versions": req.ArchiveExisting,
	}
	return c.versionCall(ctx, http.MethodPost, "model-versions/transition-stage", nil, in)
}

func (c *Client) UpdateModelVersionDescription(ctx context.Context, name string, version int64, description string) (domain.ModelVersion, error) {
	in := map[string]any{
		"name":        strings.TrimSpace(name),
		"version":     strconv.FormatInt(version, 10),
		"description": description,
	}
	return c.versionCall(ctx, http.MethodPatch, "model-versions/update", nil, in)
}

func (c *Client) versionCall(ctx context.Context, method, path string, query url.Values, in any) (domain.ModelVersion, error) {
	var out struct {
		ModelVersion modelVersionJSON `json:"model_version"`
	}
	if err := c.call(ctx, method, path, query, in, &out); err != nil {
		return domain.ModelVersion{}, err
	}
	return out.ModelVersion.toDomain()
}

func registeredModel(m registeredModelJSON) domain.RegisteredModel {
	return domain.RegisteredModel{
		Name:        m.Name,
		Description: m.Description,
		CreatedAt:   millis(m.CreationTimestamp),
		UpdatedAt:   millis(m.LastUpdatedTimestamp),
	}
}
