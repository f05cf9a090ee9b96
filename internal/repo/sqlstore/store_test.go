package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/sqlite"
	"github.com/animus-labs/animus-tracking/internal/repo"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "tracking.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store, err := New(db, DialectSQLite, WithClock(func() time.Time { return clock }), WithAuditIdentity("tester", "ci"))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() err=%v", err)
	}
	return store
}

func seedVersions(t *testing.T, store *Store, name string, n int) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.CreateRegisteredModel(ctx, name, ""); err != nil {
		t.Fatalf("CreateRegisteredModel() err=%v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := store.CreateModelVersion(ctx, name, "file:///artifacts/model", "run-1"); err != nil {
			t.Fatalf("CreateModelVersion() err=%v", err)
		}
	}
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil, DialectSQLite); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() err=%v", err)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.GetExperimentByName(ctx, "random-forest-models"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	exp, err := store.CreateExperiment(ctx, "random-forest-models", "file:///tmp/artifacts/")
	if err != nil {
		t.Fatalf("CreateExperiment() err=%v", err)
	}
	if exp.ArtifactLocation != "file:///tmp/artifacts/"+exp.ID {
		t.Fatalf("ArtifactLocation=%q", exp.ArtifactLocation)
	}
	if _, err := store.CreateExperiment(ctx, "random-forest-models", ""); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, err := store.GetExperimentByName(ctx, "random-forest-models")
	if err != nil || got.ID != exp.ID {
		t.Fatalf("GetExperimentByName()=%+v err=%v", got, err)
	}
}

func TestRunLogging(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	exp, err := store.CreateExperiment(ctx, "exp", "file:///tmp/a")
	if err != nil {
		t.Fatalf("CreateExperiment() err=%v", err)
	}
	run, err := store.CreateRun(ctx, exp.ID, time.Time{}, map[string]string{"mlflow.user": "tester"})
	if err != nil {
		t.Fatalf("CreateRun() err=%v", err)
	}
	if !strings.HasSuffix(run.ArtifactURI, run.ID+"/artifacts") {
		t.Fatalf("ArtifactURI=%q", run.ArtifactURI)
	}

	batch := repo.RunBatch{
		Params: []domain.Param{{Key: "max_depth", Value: "10"}},
		Metrics: []domain.Metric{
			{Key: "val_rmse", Value: 2.0, Step: 0},
			{Key: "val_rmse", Value: 1.5, Step: 1},
		},
		Tags: map[string]string{"estimator_name": "RandomForestRegressor"},
	}
	if err := store.LogBatch(ctx, run.ID, batch); err != nil {
		t.Fatalf("LogBatch() err=%v", err)
	}
	// Same value again is accepted; a different value is a conflict.
	if err := store.LogBatch(ctx, run.ID, repo.RunBatch{Params: []domain.Param{{Key: "max_depth", Value: "10"}}}); err != nil {
		t.Fatalf("LogBatch() repeat err=%v", err)
	}
	if err := store.LogBatch(ctx, run.ID, repo.RunBatch{Params: []domain.Param{{Key: "max_depth", Value: "5"}}}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	end := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	if err := store.UpdateRun(ctx, run.ID, repo.RunUpdate{Status: domain.RunStatusFinished, EndTime: &end}); err != nil {
		t.Fatalf("UpdateRun() err=%v", err)
	}
	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	if got.Status != domain.RunStatusFinished || got.EndTime == nil || !got.EndTime.Equal(end) {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.Params["max_depth"] != "10" || got.Metrics["val_rmse"] != 1.5 || got.Tags["mlflow.user"] != "tester" {
		t.Fatalf("unexpected logged values %+v", got)
	}
	if err := store.LogBatch(ctx, run.ID, repo.RunBatch{Tags: map[string]string{"late": "x"}}); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected logging to a finished run to conflict, got %v", err)
	}
	if err := store.UpdateRun(ctx, "missing", repo.RunUpdate{Status: domain.RunStatusFailed}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateModelVersionNumbersSequentially(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	if _, err := store.CreateModelVersion(ctx, "model", "src", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unregistered model, got %v", err)
	}
	seedVersions(t, store, "model", 3)
	v, err := store.GetModelVersion(ctx, "model", 3)
	if err != nil {
		t.Fatalf("GetModelVersion() err=%v", err)
	}
	if v.CurrentStage != domain.StageNone || v.RunID != "run-1" {
		t.Fatalf("unexpected version %+v", v)
	}
	if _, err := store.CreateRegisteredModel(ctx, "model", ""); !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetLatestVersionsOnePerStage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedVersions(t, store, "model", 5)

	for _, tr := range []domain.StageTransitionRequest{
		{ModelName: "model", Version: 1, Stage: domain.StageArchived},
		{ModelName: "model", Version: 2, Stage: domain.StageProduction},
		{ModelName: "model", Version: 3, Stage: domain.StageProduction},
	} {
		if _, err := store.TransitionModelVersionStage(ctx, tr); err != nil {
			t.Fatalf("TransitionModelVersionStage(%d) err=%v", tr.Version, err)
		}
	}

	latest, err := store.GetLatestVersions(ctx, "model")
	if err != nil {
		t.Fatalf("GetLatestVersions() err=%v", err)
	}
	got := map[domain.Stage]int64{}
	for _, v := range latest {
		got[v.CurrentStage] = v.Version
	}
	want := map[domain.Stage]int64{domain.StageNone: 5, domain.StageProduction: 3, domain.StageArchived: 1}
	if len(got) != len(want) || len(latest) != 3 {
		t.Fatalf("latest=%v", got)
	}
	for stage, version := range want {
		if got[stage] != version {
			t.Fatalf("stage %s latest=%d, want %d", stage, got[stage], version)
		}
	}

	if _, err := store.GetLatestVersions(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitionErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedVersions(t, store, "model", 1)

	_, err := store.TransitionModelVersionStage(ctx, domain.StageTransitionRequest{ModelName: "model", Version: 9, Stage: domain.StageStaging})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = store.TransitionModelVersionStage(ctx, domain.StageTransitionRequest{ModelName: "model", Version: 1, Stage: domain.Stage("Canary")})
	if !errors.Is(err, domain.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage, got %v", err)
	}
}

func TestTransitionDoesNotArchiveByDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedVersions(t, store, "model", 2)
	for _, version := range []int64{1, 2} {
		if _, err := store.TransitionModelVersionStage(ctx, domain.StageTransitionRequest{ModelName: "model", Version: version, Stage: domain.StageStaging}); err != nil {
			t.Fatalf("transition %d: %v", version, err)
		}
	}
	v1, err := store.GetModelVersion(ctx, "model", 1)
	if err != nil {
		t.Fatalf("GetModelVersion() err=%v", err)
	}
	if v1.CurrentStage != domain.StageStaging {
		t.Fatalf("version 1 stage=%s, want Staging", v1.CurrentStage)
	}

	if _, err := store.TransitionModelVersionStage(ctx, domain.StageTransitionRequest{ModelName: "model", Version: 2, Stage: domain.StageStaging, ArchiveExisting: true}); err != nil {
		t.Fatalf("transition with archive: %v", err)
	}
	v1, _ = store.GetModelVersion(ctx, "model", 1)
	if v1.CurrentStage != domain.StageArchived {
		t.Fatalf("version 1 stage=%s, want Archived", v1.CurrentStage)
	}
}

func TestTransitionWithDescriptionIsAudited(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedVersions(t, store, "model", 1)

	desc := "The model version 1 was transitioned to Staging on 2024-05-01"
	v, err := store.TransitionModelVersionStageWithDescription(ctx, domain.StageTransitionRequest{ModelName: "model", Version: 1, Stage: domain.StageStaging}, desc)
	if err != nil {
		t.Fatalf("TransitionModelVersionStageWithDescription() err=%v", err)
	}
	if v.CurrentStage != domain.StageStaging || v.Description != desc {
		t.Fatalf("unexpected version %+v", v)
	}

	var action, resource, actor string
	row := store.db.QueryRowContext(ctx, `SELECT action, resource_id, actor FROM audit_events ORDER BY event_id DESC LIMIT 1`)
	if err := row.Scan(&action, &resource, &actor); err != nil {
		t.Fatalf("read audit event: %v", err)
	}
	if action != "model_version.stage_transitioned" || resource != "model/1" || actor != "tester" {
		t.Fatalf("unexpected audit event %s %s %s", action, resource, actor)
	}

	if _, err := store.TransitionModelVersionStage(ctx, domain.StageTransitionRequest{ModelName: "model", Version: 1, Stage: domain.StageProduction}); err != nil {
		t.Fatalf("TransitionModelVersionStage() err=%v", err)
	}
	history, err := store.StageHistory(ctx, "model", 1)
	if err != nil {
		t.Fatalf("StageHistory() err=%v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history)=%d, want 2", len(history))
	}
	if history[1].PrevDigest != history[0].Digest {
		t.Fatalf("history is not chained")
	}
}

func TestStageHistoryRequiresStore(t *testing.T) {
	var store *Store
	if _, err := store.StageHistory(context.Background(), "model", 1); err == nil {
		t.Fatalf("expected error for nil store")
	}
}

func TestUpdateModelVersionDescription(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedVersions(t, store, "model", 1)
	v, err := store.UpdateModelVersionDescription(ctx, "model", 1, "hand written")
	if err != nil {
		t.Fatalf("UpdateModelVersionDescription() err=%v", err)
	}
	if v.Description != "hand written" {
		t.Fatalf("Description=%q", v.Description)
	}
	if _, err := store.UpdateModelVersionDescription(ctx, "model", 4, "x"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewRejectsUnknownDialect(t *testing.T) {
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := New(db, Dialect("mysql")); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}
