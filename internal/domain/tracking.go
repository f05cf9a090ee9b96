package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the terminal or running state of a tracked run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusFinished, RunStatusFailed, RunStatusKilled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further updates are expected for the run.
func (s RunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed || s == RunStatusKilled
}

// Experiment groups runs under a name.
type Experiment struct {
	ID               string
	Name             string
	ArtifactLocation string
	CreatedAt        time.Time
}

// Run represents a single tracked training execution.
type Run struct {
	ID           string
	ExperimentID string
	Status       RunStatus
	StartTime    time.Time
	EndTime      *time.Time
	ArtifactURI  string
	Params       map[string]string
	Metrics      map[string]float64
	Tags         map[string]string
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ExperimentID) == "" {
		return errors.New("experiment id is required")
	}
	if !r.Status.Valid() {
		return errors.New("invalid run status")
	}
	return nil
}

// Metric is a single logged metric observation.
type Metric struct {
	Key       string
	Value     float64
	Step      int64
	Timestamp time.Time
}

// Param is an immutable run parameter.
type Param struct {
	Key   string
	Value string
}
