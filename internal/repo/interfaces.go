package repo

import (
	"context"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/auditlog"
)

// RunUpdate finalizes or updates a run's status.
type RunUpdate struct {
	Status  domain.RunStatus
	EndTime *time.Time
}

// RunBatch is a set of observations logged to a run in one call.
type RunBatch struct {
	Params  []domain.Param
	Metrics []domain.Metric
	Tags    map[string]string
}

// ExperimentRepository manages experiments. CreateExperiment places the
// experiment's artifacts under artifactRoot; a blank root leaves the choice
// to the backend.
type ExperimentRepository interface {
	CreateExperiment(ctx context.Context, name, artifactRoot string) (domain.Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error)
}

// RunRepository manages runs and their logged values.
type RunRepository interface {
	CreateRun(ctx context.Context, experimentID string, startTime time.Time, tags map[string]string) (domain.Run, error)
	GetRun(ctx context.Context, runID string) (domain.Run, error)
	LogBatch(ctx context.Context, runID string, batch RunBatch) error
	UpdateRun(ctx context.Context, runID string, update RunUpdate) error
}

// ModelRegistry manages registered models and their versions.
type ModelRegistry interface {
	CreateRegisteredModel(ctx context.Context, name, description string) (domain.RegisteredModel, error)
	GetRegisteredModel(ctx context.Context, name string) (domain.RegisteredModel, error)
	CreateModelVersion(ctx context.Context, name, source, runID string) (domain.ModelVersion, error)
	GetModelVersion(ctx context.Context, name string, version int64) (domain.ModelVersion, error)

	// GetLatestVersions returns, for the named model, the newest version in
	// each stage bucket. The order of the result is backend specific.
	GetLatestVersions(ctx context.Context, name string) ([]domain.ModelVersion, error)
	TransitionModelVersionStage(ctx context.Context, req domain.StageTransitionRequest) (domain.ModelVersion, error)
	UpdateModelVersionDescription(ctx context.Context, name string, version int64, description string) (domain.ModelVersion, error)
}

// AtomicStageTransitioner is implemented by registries able to apply a stage
// transition and its description in a single transaction.
type AtomicStageTransitioner interface {
	TransitionModelVersionStageWithDescription(ctx context.Context, req domain.StageTransitionRequest, description string) (domain.ModelVersion, error)
}

// StageAuditor is implemented by registries that keep a tamper-evident
// history of stage changes. StageHistory returns it oldest first and fails
// with auditlog.ErrChainBroken when the chain does not verify.
type StageAuditor interface {
	StageHistory(ctx context.Context, name string, version int64) ([]auditlog.Record, error)
}

// Backend is the full tracking service surface used by the command line tools.
type Backend interface {
	ExperimentRepository
	RunRepository
	ModelRegistry
	Close() error
}
