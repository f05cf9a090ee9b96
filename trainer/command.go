package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/animus-labs/animus-tracking/internal/dataset"
	"github.com/animus-labs/animus-tracking/internal/forest"
	"github.com/animus-labs/animus-tracking/internal/platform/cli"
	"github.com/animus-labs/animus-tracking/internal/platform/config"
	"github.com/animus-labs/animus-tracking/internal/platform/logging"
	"github.com/animus-labs/animus-tracking/internal/platform/objectstore"
	"github.com/animus-labs/animus-tracking/internal/tracking"
	"github.com/spf13/cobra"
)

const (
	defaultDataPath    = "./output"
	defaultTrackingURI = "./my_tracking_server"
	defaultExperiment  = "random-forest-models"
)

type options struct {
	dataPath      string
	configPath    string
	trackingURI   string
	experiment    string
	registerModel string
	logLevel      string
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "trainer",
		Short: "Train a random forest regressor on pickled splits and track the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return train(cmd.Context(), cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.dataPath, "data_path", defaultDataPath, "Directory or s3://bucket/prefix holding train.pkl, val.pkl and test.pkl")
	flags.StringVar(&opts.configPath, "config", "", "Configuration file (.yaml or .toml)")
	flags.StringVar(&opts.trackingURI, "tracking_uri", defaultTrackingURI, "Tracking URI: directory, sqlite://, postgres:// or http(s)://")
	flags.StringVar(&opts.experiment, "experiment", defaultExperiment, "Experiment name")
	flags.StringVar(&opts.registerModel, "register_model", "", "Register the trained model under this name")
	flags.StringVar(&opts.logLevel, "log_level", "info", "Log level: debug, info, warn or error")
	return cmd
}

func buildConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath, config.Defaults(defaultTrackingURI, defaultExperiment))
	if err != nil {
		return config.Config{}, cli.InvalidConfig(err)
	}
	cli.Override(cmd, "tracking_uri", &cfg.Tracking.URI, opts.trackingURI)
	cli.Override(cmd, "experiment", &cfg.Tracking.ExperimentName, opts.experiment)
	cli.Override(cmd, "log_level", &cfg.Log.Level, opts.logLevel)
	if strings.TrimSpace(opts.dataPath) == "" {
		return config.Config{}, cli.InvalidConfig(fmt.Errorf("--data_path is required"))
	}
	if dataset.IsObjectURI(opts.dataPath) && !cfg.ObjectStore.Enabled() {
		return config.Config{}, cli.InvalidConfig(fmt.Errorf("--data_path %s needs object store settings", opts.dataPath))
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, cli.InvalidConfig(err)
	}
	return cfg, nil
}

func train(ctx context.Context, cfg config.Config, opts options, stdout, stderr io.Writer) error {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.New(stderr, level, "trainer")

	src, err := dataSource(cfg, opts.dataPath)
	if err != nil {
		return err
	}
	splits, err := dataset.LoadAll(ctx, src)
	if err != nil {
		return err
	}
	logger.Info("datasets loaded",
		"data_path", src.String(),
		"train_rows", splits.Train.Rows(),
		"val_rows", splits.Validation.Rows(),
		"test_rows", splits.Test.Rows(),
	)

	client, err := tracking.Open(ctx, cfg, tracking.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open tracking backend %s: %w", cfg.Tracking.URI, err)
	}
	defer func() { _ = client.Close() }()

	exp, err := client.SetExperiment(ctx, cfg.Tracking.ExperimentName)
	if err != nil {
		return fmt.Errorf("set experiment %q: %w", cfg.Tracking.ExperimentName, err)
	}

	params := forest.DefaultParams()
	params.MaxDepth = 10
	params.RandomState = 0
	progress := newProgress(stderr, params.NEstimators)
	model, err := forest.New(params, forest.WithProgress(progress))
	if err != nil {
		return cli.InvalidConfig(err)
	}

	var result evaluation
	err = client.WithRun(ctx, exp.ID, func(ctx context.Context, run *tracking.ActiveRun) error {
		result.runID = run.ID()
		auto := run.Autolog(model)
		logger.Info("fitting model", "run_id", run.ID(), "estimators", params.NEstimators, "workers", forest.Workers(params))
		if err := auto.Fit(ctx, splits.Train.X, splits.Train.Y); err != nil {
			return err
		}
		for _, s := range []struct {
			name string
			pair dataset.Pair
			dst  *float64
		}{
			{"train", splits.Train, &result.train},
			{"val", splits.Validation, &result.val},
			{"test", splits.Test, &result.test},
		} {
			rmse, err := auto.RMSE(ctx, s.name, s.pair.X, s.pair.Y)
			if err != nil {
				return err
			}
			*s.dst = rmse
		}
		if name := strings.TrimSpace(opts.registerModel); name != "" {
			mv, err := client.RegisterModel(ctx, name, auto.ModelURI(), run.ID())
			if err != nil {
				return err
			}
			result.registered = fmt.Sprintf("%s version %d", mv.Name, mv.Version)
		}
		return nil
	})
	if err != nil {
		if result.runID != "" {
			return fmt.Errorf("run %s: %w", result.runID, err)
		}
		return err
	}
	result.log(logger)
	result.print(stdout)
	return nil
}

type evaluation struct {
	runID      string
	train      float64
	val        float64
	test       float64
	registered string
}

func (e evaluation) log(logger *slog.Logger) {
	logger.Info("training run finished",
		"run_id", e.runID,
		"train_rmse", e.train,
		"val_rmse", e.val,
		"test_rmse", e.test,
	)
}

func (e evaluation) print(w io.Writer) {
	fmt.Fprintf(w, "run %s: train_rmse=%.4f val_rmse=%.4f test_rmse=%.4f\n", e.runID, e.train, e.val, e.test)
	if e.registered != "" {
		fmt.Fprintf(w, "registered %s\n", e.registered)
	}
}

func dataSource(cfg config.Config, dataPath string) (dataset.Source, error) {
	if !dataset.IsObjectURI(dataPath) {
		return dataset.FileSource{Dir: dataPath}, nil
	}
	bucket, prefix, err := dataset.ParseObjectURI(dataPath)
	if err != nil {
		return nil, cli.InvalidConfig(err)
	}
	store, err := objectstore.NewMinioStore(cfg.ObjectStore)
	if err != nil {
		return nil, err
	}
	return dataset.ObjectSource{Store: store, Bucket: bucket, Prefix: prefix}, nil
}
