package mlflowrest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

type experimentJSON struct {
	ExperimentID     string    `json:"experiment_id"`
	Name             string    `json:"name"`
	ArtifactLocation string    `json:"artifact_location"`
	CreationTime     flexInt64 `json:"creation_time"`
}

func (e experimentJSON) toDomain() domain.Experiment {
	return domain.Experiment{
		ID:               e.ExperimentID,
		Name:             e.Name,
		ArtifactLocation: e.ArtifactLocation,
		CreatedAt:        millis(e.CreationTime),
	}
}

type runInfoJSON struct {
	RunID        string    `json:"run_id"`
	ExperimentID string    `json:"experiment_id"`
	Status       string    `json:"status"`
	StartTime    flexInt64 `json:"start_time"`
	EndTime      flexInt64 `json:"end_time"`
	ArtifactURI  string    `json:"artifact_uri"`
}

type metricJSON struct {
	Key       string    `json:"key"`
	Value     float64   `json:"value"`
	Timestamp flexInt64 `json:"timestamp"`
	Step      flexInt64 `json:"step"`
}

type runJSON struct {
	Info runInfoJSON `json:"info"`
	Data struct {
		Metrics []metricJSON `json:"metrics"`
		Params  []keyValue   `json:"params"`
		Tags    []keyValue   `json:"tags"`
	} `json:"data"`
}

func (r runJSON) toDomain() domain.Run {
	run := domain.Run{
		ID:           r.Info.RunID,
		ExperimentID: r.Info.ExperimentID,
		Status:       domain.RunStatus(r.Info.Status),
		StartTime:    millis(r.Info.StartTime),
		ArtifactURI:  r.Info.ArtifactURI,
		Params:       map[string]string{},
		Metrics:      map[string]float64{},
		Tags:         map[string]string{},
	}
	if r.Info.EndTime != 0 {
		end := millis(r.Info.EndTime)
		run.EndTime = &end
	}
	for _, p := range r.Data.Params {
		run.Params[p.Key] = p.Value
	}
	for _, t := range r.Data.Tags {
		run.Tags[t.Key] = t.Value
	}
	for _, m := range r.Data.Metrics {
		run.Metrics[m.Key] = m.Value
	}
	return run
}

func (c *Client) CreateExperiment(ctx context.Context, name, artifactRoot string) (domain.Experiment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Experiment{}, fmt.Errorf("experiment name is required")
	}
	in := map[string]any{"name": name}
	if root := strings.TrimSpace(artifactRoot); root != "" {
		in["artifact_location"] = root
	}
	var out struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.call(ctx, http.MethodPost, "experiments/create", nil, in, &out); err != nil {
		return domain.Experiment{}, err
	}
	return c.GetExperimentByName(ctx, name)
}

func (c *Client) GetExperimentByName(ctx context.Context, name string) (domain.Experiment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Experiment{}, fmt.Errorf("experiment name is required")
	}
	var out struct {
		Experiment experimentJSON `json:"experiment"`
	}
	if err := c.call(ctx, http.MethodGet, "experiments/get-by-name", url.Values{"experiment_name": {name}}, nil, &out); err != nil {
		return domain.Experiment{}, err
	}
	return out.Experiment.toDomain(), nil
}

func (c *Client) CreateRun(ctx context.Context, experimentID string, startTime time.Time, tags map[string]string) (domain.Run, error) {
	if startTime.IsZero() {
		startTime = time.Now()
	}
	in := map[string]any{
		"experiment_id": experimentID,
		"start_time":    startTime.UnixMilli(),
		"tags":          sortedKeyValues(tags),
	}
	var out struct {
		Run runJSON `json:"run"`
	}
	if err := c.call(ctx, http.MethodPost, "runs/create", nil, in, &out); err != nil {
		return domain.Run{}, err
	}
	return out.Run.toDomain(), nil
}

func (c *Client) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	var out struct {
		Run runJSON `json:"run"`
	}
	if err := c.call(ctx, http.MethodGet, "runs/get", url.Values{"run_id": {runID}}, nil, &out); err != nil {
		return domain.Run{}, err
	}
	return out.Run.toDomain(), nil
}

func (c *Client) LogBatch(ctx context.Context, runID string, batch repo.RunBatch) error {
	metrics := make([]map[string]any, 0, len(batch.Metrics))
	for _, m := range batch.Metrics {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		metrics = append(metrics, map[string]any{
			"key":       m.Key,
			"value":     m.Value,
			"timestamp": ts.UnixMilli(),
			"step":      m.Step,
		})
	}
	params := make([]keyValue, 0, len(batch.Params))
	for _, p := range batch.Params {
		params = append(params, keyValue{Key: p.Key, Value: p.Value})
	}
	in := map[string]any{
		"run_id":  runID,
		"metrics": metrics,
		"params":  params,
		"tags":    sortedKeyValues(batch.Tags),
	}
	return c.call(ctx, http.MethodPost, "runs/log-batch", nil, in, nil)
}

func (c *Client) UpdateRun(ctx context.Context, runID string, update repo.RunUpdate) error {
	in := map[string]any{
		"run_id": runID,
		"status": string(update.Status),
	}
	if update.EndTime != nil {
		in["end_time"] = update.EndTime.UnixMilli()
	}
	return c.call(ctx, http.MethodPost, "runs/update", nil, in, nil)
}

func sortedKeyValues(m map[string]string) []keyValue {
	out := make([]keyValue, 0, len(m))
	for k, v := range m {
		out = append(out, keyValue{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
