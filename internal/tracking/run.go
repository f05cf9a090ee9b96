package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/repo"
	"github.com/dustin/go-humanize"
	"github.com/klauspost/cpuid/v2"
)

// finalizeTimeout bounds the status update issued after a run ends, which
// runs detached from the caller's possibly cancelled context.
const finalizeTimeout = 10 * time.Second

const (
	TagSourceName  = "mlflow.source.name"
	TagSourceType  = "mlflow.source.type"
	TagUser        = "mlflow.user"
	TagSystemCPU   = "animus.system.cpu"
	TagSystemCores = "animus.system.cores"
)

// ActiveRun is a run between creation and finalization.
type ActiveRun struct {
	client *Client
	run    domain.Run
}

func (r *ActiveRun) ID() string {
	return r.run.ID
}

func (r *ActiveRun) Info() domain.Run {
	return r.run
}

// WithRun creates a run in experimentID, calls fn with it and always
// finalizes the run: FINISHED when fn returns nil, FAILED when it returns an
// error, KILLED when ctx is cancelled or fn panics. Panics are re-raised
// after finalization.
func (c *Client) WithRun(ctx context.Context, experimentID string, fn func(ctx context.Context, run *ActiveRun) error) error {
	if c == nil || c.backend == nil {
		return errors.New("tracking client not initialized")
	}
	run, err := c.backend.CreateRun(ctx, experimentID, c.now(), c.systemTags())
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	active := &ActiveRun{client: c, run: run}
	c.logger.Info("run started", "run_id", run.ID, "experiment_id", experimentID)

	defer func() {
		if p := recover(); p != nil {
			if err := c.finish(ctx, active, domain.RunStatusKilled); err != nil {
				c.logger.Error("run finalize failed", "run_id", run.ID, "error", err)
			}
			panic(p)
		}
	}()

	fnErr := fn(ctx, active)
	status := domain.RunStatusFinished
	switch {
	case ctx.Err() != nil:
		status = domain.RunStatusKilled
	case fnErr != nil:
		status = domain.RunStatusFailed
	}
	if finishErr := c.finish(ctx, active, status); finishErr != nil {
		return errors.Join(fnErr, finishErr)
	}
	return fnErr
}

func (c *Client) finish(ctx context.Context, run *ActiveRun, status domain.RunStatus) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	end := c.now()
	if err := c.backend.UpdateRun(ctx, run.run.ID, repo.RunUpdate{Status: status, EndTime: &end}); err != nil {
		return fmt.Errorf("finalize run %s: %w", run.run.ID, err)
	}
	run.run.Status = status
	run.run.EndTime = &end
	c.logger.Info("run ended", "run_id", run.run.ID, "status", status, "duration", end.Sub(run.run.StartTime).Round(time.Millisecond).String())
	return nil
}

func (c *Client) systemTags() map[string]string {
	tags := map[string]string{
		TagSourceType:  "LOCAL",
		TagSystemCores: strconv.Itoa(cpuid.CPU.PhysicalCores),
	}
	if c.sourceName != "" {
		tags[TagSourceName] = c.sourceName
	}
	if c.user != "" {
		tags[TagUser] = c.user
	}
	if brand := strings.TrimSpace(cpuid.CPU.BrandName); brand != "" {
		tags[TagSystemCPU] = brand
	}
	return tags
}

// LogParams records params in key order.
func (r *ActiveRun) LogParams(ctx context.Context, params map[string]string) error {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := repo.RunBatch{Params: make([]domain.Param, 0, len(keys))}
	for _, k := range keys {
		batch.Params = append(batch.Params, domain.Param{Key: k, Value: params[k]})
	}
	if err := r.client.backend.LogBatch(ctx, r.run.ID, batch); err != nil {
		return fmt.Errorf("log params: %w", err)
	}
	for _, p := range batch.Params {
		r.setParam(p.Key, p.Value)
	}
	return nil
}

func (r *ActiveRun) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	now := r.client.now()
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := repo.RunBatch{Metrics: make([]domain.Metric, 0, len(keys))}
	for _, k := range keys {
		batch.Metrics = append(batch.Metrics, domain.Metric{Key: k, Value: metrics[k], Timestamp: now})
	}
	if err := r.client.backend.LogBatch(ctx, r.run.ID, batch); err != nil {
		return fmt.Errorf("log metrics: %w", err)
	}
	if r.run.Metrics == nil {
		r.run.Metrics = map[string]float64{}
	}
	for k, v := range metrics {
		r.run.Metrics[k] = v
	}
	return nil
}

func (r *ActiveRun) LogMetric(ctx context.Context, key string, value float64) error {
	return r.LogMetrics(ctx, map[string]float64{key: value})
}

func (r *ActiveRun) SetTags(ctx context.Context, tags map[string]string) error {
	if err := r.client.backend.LogBatch(ctx, r.run.ID, repo.RunBatch{Tags: tags}); err != nil {
		return fmt.Errorf("set tags: %w", err)
	}
	if r.run.Tags == nil {
		r.run.Tags = map[string]string{}
	}
	for k, v := range tags {
		r.run.Tags[k] = v
	}
	return nil
}

// LogArtifact stores body under the run's artifact root.
func (r *ActiveRun) LogArtifact(ctx context.Context, artifactPath string, body []byte, contentType string) (Artifact, error) {
	if r.client.artifacts == nil {
		return Artifact{}, errors.New("artifact store not configured")
	}
	art, err := r.client.artifacts.Put(ctx, r.run, artifactPath, body, contentType)
	if err != nil {
		return Artifact{}, err
	}
	r.client.logger.Info("artifact logged",
		"run_id", r.run.ID,
		"path", art.Path,
		"uri", art.URI,
		"size", humanize.Bytes(uint64(art.SizeBytes)),
	)
	return art, nil
}

func (r *ActiveRun) setParam(key, value string) {
	if r.run.Params == nil {
		r.run.Params = map[string]string{}
	}
	r.run.Params[key] = value
}
