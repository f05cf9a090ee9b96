package domain

import (
	"errors"
	"strings"
	"time"
)

// RegisteredModel is a named namespace of model versions.
type RegisteredModel struct {
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ModelVersion is a single registered version of a model.
type ModelVersion struct {
	Name         string
	Version      int64
	CurrentStage Stage
	Description  string
	RunID        string
	Source       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (v ModelVersion) Validate() error {
	if strings.TrimSpace(v.Name) == "" {
		return errors.New("model name is required")
	}
	if v.Version < 1 {
		return errors.New("model version must be positive")
	}
	if !v.CurrentStage.Valid() {
		return ErrInvalidStage
	}
	return nil
}

// StageTransitionRequest moves one version of a model to a stage.
// It is built, used once and discarded.
type StageTransitionRequest struct {
	ModelName       string
	Version         int64
	Stage           Stage
	ArchiveExisting bool
}

// Validate performs the local checks only; version existence and stage
// recognition are left to the registry.
func (r StageTransitionRequest) Validate() error {
	if strings.TrimSpace(r.ModelName) == "" {
		return errors.New("model name is required")
	}
	return nil
}
