package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

// Registry is the part of the model registry transitions need.
type Registry interface {
	TransitionModelVersionStage(ctx context.Context, req domain.StageTransitionRequest) (domain.ModelVersion, error)
	UpdateModelVersionDescription(ctx context.Context, name string, version int64, description string) (domain.ModelVersion, error)
}

// PartialTransitionError reports a version whose stage changed but whose
// description could not be written.
type PartialTransitionError struct {
	ModelName string
	Version   int64
	Stage     domain.Stage
	Err       error
}

func (e *PartialTransitionError) Error() string {
	return fmt.Sprintf("model %s version %d moved to %s but description update failed: %v", e.ModelName, e.Version, e.Stage, e.Err)
}

func (e *PartialTransitionError) Unwrap() error {
	return e.Err
}

type Option func(*options)

type options struct {
	now    func() time.Time
	logger *slog.Logger
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

type Transitioner struct {
	registry Registry
	options
}

func NewTransitioner(registry Registry, opts ...Option) (*Transitioner, error) {
	if registry == nil {
		return nil, errors.New("model registry is required")
	}
	return &Transitioner{registry: registry, options: buildOptions(opts)}, nil
}

// Transition moves req's version to req.Stage and describes the change.
// Registry errors are returned wrapped; nothing is retried or rolled back.
func (t *Transitioner) Transition(ctx context.Context, req domain.StageTransitionRequest) (domain.ModelVersion, error) {
	if t == nil || t.registry == nil {
		return domain.ModelVersion{}, errors.New("transitioner not initialized")
	}
	if err := req.Validate(); err != nil {
		return domain.ModelVersion{}, err
	}
	req.ArchiveExisting = false
	description := Describe(req.Version, req.Stage, t.now())

	if atomic, ok := t.registry.(repo.AtomicStageTransitioner); ok {
		mv, err := atomic.TransitionModelVersionStageWithDescription(ctx, req, description)
		if err != nil {
			return domain.ModelVersion{}, fmt.Errorf("transition %s version %d to %s: %w", req.ModelName, req.Version, req.Stage, err)
		}
		t.logger.Info("model version transitioned", "model", req.ModelName, "version", req.Version, "stage", req.Stage.String())
		return mv, nil
	}

	if _, err := t.registry.TransitionModelVersionStage(ctx, req); err != nil {
		return domain.ModelVersion{}, fmt.Errorf("transition %s version %d to %s: %w", req.ModelName, req.Version, req.Stage, err)
	}
	t.logger.Info("model version transitioned", "model", req.ModelName, "version", req.Version, "stage", req.Stage.String())

	mv, err := t.registry.UpdateModelVersionDescription(ctx, req.ModelName, req.Version, description)
	if err != nil {
		t.logger.Warn("description update failed; will be repaired on next run", "model", req.ModelName, "version", req.Version, "error", err)
		return domain.ModelVersion{}, &PartialTransitionError{ModelName: req.ModelName, Version: req.Version, Stage: req.Stage, Err: err}
	}
	return mv, nil
}
