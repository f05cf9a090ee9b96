package auditlog

import (
	"context"
	"fmt"
	"time"
)

const (
	ActionStageTransitioned = "model_version.stage_transitioned"
	ResourceModelVersion    = "model_version"
)

// StageTransition describes a completed model version stage change.
type StageTransition struct {
	OccurredAt      time.Time
	Actor           string
	RequestID       string
	Host            string
	ModelName       string
	Version         int64
	FromStage       string
	ToStage         string
	ArchiveExisting bool
	Description     string
}

// ModelVersionResource is the chain key for one model version.
func ModelVersionResource(modelName string, version int64) string {
	return fmt.Sprintf("%s/%d", modelName, version)
}

// AppendStageTransition chains a stage change onto the version's history.
func AppendStageTransition(ctx context.Context, q Querier, tr StageTransition) (Record, error) {
	payload := map[string]any{
		"model_name": tr.ModelName,
		"version":    tr.Version,
		"from":       tr.FromStage,
		"to":         tr.ToStage,
	}
	if tr.ArchiveExisting {
		payload["archive_existing"] = true
	}
	if tr.Description != "" {
		payload["description"] = tr.Description
	}
	return Append(ctx, q, Event{
		OccurredAt:   tr.OccurredAt,
		Actor:        tr.Actor,
		Action:       ActionStageTransitioned,
		ResourceType: ResourceModelVersion,
		ResourceID:   ModelVersionResource(tr.ModelName, tr.Version),
		RequestID:    tr.RequestID,
		Host:         tr.Host,
		Payload:      payload,
	})
}
