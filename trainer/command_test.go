package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/animus-labs/animus-tracking/internal/platform/cli"
	"github.com/animus-labs/animus-tracking/internal/platform/config"
	"github.com/animus-labs/animus-tracking/internal/tracking"
)

// writePair writes ([[x, x%4], ...], [2x, ...]) as a protocol 2 pickle.
func writePair(t *testing.T, path string, n int) {
	t.Helper()
	var b bytes.Buffer
	b.Write([]byte{0x80, 0x02})
	float := func(v float64) {
		b.WriteByte('G')
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], math.Float64bits(v))
		b.Write(raw[:])
	}
	b.WriteString("](")
	for i := 0; i < n; i++ {
		b.WriteString("](")
		float(float64(i))
		float(float64(i % 4))
		b.WriteByte('e')
	}
	b.WriteByte('e')
	b.WriteString("](")
	for i := 0; i < n; i++ {
		float(float64(2 * i))
	}
	b.WriteByte('e')
	b.WriteByte(0x86)
	b.WriteByte('.')
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeSplits(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePair(t, filepath.Join(dir, "train.pkl"), 40)
	writePair(t, filepath.Join(dir, "val.pkl"), 10)
	writePair(t, filepath.Join(dir, "test.pkl"), 10)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestTrainerTracksRunAndRegistersModel(t *testing.T) {
	dataDir := writeSplits(t)
	trackingDir := t.TempDir()

	out, err := execute(t,
		"--data_path", dataDir,
		"--tracking_uri", trackingDir,
		"--register_model", "taxi-rf",
	)
	if err != nil {
		t.Fatalf("trainer err=%v", err)
	}
	for _, want := range []string{"train_rmse=", "val_rmse=", "test_rmse=", "registered taxi-rf version 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}

	cfg := config.Defaults(trackingDir, defaultExperiment)
	client, err := tracking.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open() err=%v", err)
	}
	defer client.Close()
	versions, err := client.Registry().GetLatestVersions(context.Background(), "taxi-rf")
	if err != nil {
		t.Fatalf("GetLatestVersions() err=%v", err)
	}
	if len(versions) != 1 || versions[0].CurrentStage.IsSet() {
		t.Fatalf("versions=%+v", versions)
	}
	run, err := client.Backend().GetRun(context.Background(), versions[0].RunID)
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	if run.Params["max_depth"] != "10" || run.Params["random_state"] != "0" {
		t.Fatalf("params=%v", run.Params)
	}
	for _, key := range []string{"training_root_mean_squared_error", "train_root_mean_squared_error", "val_root_mean_squared_error", "test_root_mean_squared_error"} {
		if _, ok := run.Metrics[key]; !ok {
			t.Fatalf("missing metric %s in %v", key, run.Metrics)
		}
	}
	if !strings.HasSuffix(versions[0].Source, "/artifacts/model") {
		t.Fatalf("source=%q", versions[0].Source)
	}
	if _, err := os.Stat(filepath.Join(trackingDir, "tracking.db")); err != nil {
		t.Fatalf("tracking db missing: %v", err)
	}
}

func TestTrainerMissingDataIsRuntimeError(t *testing.T) {
	_, err := execute(t, "--data_path", t.TempDir(), "--tracking_uri", t.TempDir())
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := cli.ExitCode(err); got != cli.ExitRuntime {
		t.Fatalf("ExitCode()=%d want %d", got, cli.ExitRuntime)
	}
}

func TestTrainerReportsFailureOnce(t *testing.T) {
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--data_path", t.TempDir(), "--tracking_uri", t.TempDir()})
	if code := cli.Run(cmd); code != cli.ExitRuntime {
		t.Fatalf("Run()=%d want %d", code, cli.ExitRuntime)
	}
	if n := strings.Count(stderr.String(), "train.pkl"); n != 1 {
		t.Fatalf("error reported %d times:\n%s", n, stderr.String())
	}
}

func TestTrainerInvalidLogLevelIsConfigError(t *testing.T) {
	_, err := execute(t, "--data_path", t.TempDir(), "--tracking_uri", t.TempDir(), "--log_level", "loud")
	if got := cli.ExitCode(err); got != cli.ExitConfig {
		t.Fatalf("ExitCode()=%d want %d (err=%v)", got, cli.ExitConfig, err)
	}
}

func TestTrainerObjectPathNeedsStoreConfig(t *testing.T) {
	_, err := execute(t, "--data_path", "s3://data/taxi", "--tracking_uri", t.TempDir())
	if got := cli.ExitCode(err); got != cli.ExitConfig {
		t.Fatalf("ExitCode()=%d want %d (err=%v)", got, cli.ExitConfig, err)
	}
}
