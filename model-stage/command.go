package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/cli"
	"github.com/animus-labs/animus-tracking/internal/platform/config"
	"github.com/animus-labs/animus-tracking/internal/platform/logging"
	"github.com/animus-labs/animus-tracking/internal/platform/requestid"
	"github.com/animus-labs/animus-tracking/internal/repo"
	"github.com/animus-labs/animus-tracking/internal/stages"
	"github.com/animus-labs/animus-tracking/internal/tracking"
	"github.com/spf13/cobra"
)

const (
	defaultModelName   = "model"
	defaultTrackingURI = "./my_tracking_uri"
	defaultExperiment  = "random-forest-best-models"
)

type options struct {
	modelName   string
	configPath  string
	trackingURI string
	experiment  string
	order       string
	dryRun      bool
	history     bool
	logLevel    string
	now         func() time.Time
}

func newRootCommand() *cobra.Command {
	return newCommand(time.Now)
}

func newCommand(now func() time.Time) *cobra.Command {
	opts := options{now: now}
	cmd := &cobra.Command{
		Use:   "model-stage",
		Short: "Move the first unstaged latest version of a registered model to Staging",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, order, err := buildConfig(cmd, opts)
			if err != nil {
				return err
			}
			return promote(cmd.Context(), cfg, order, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.modelName, "model_name", defaultModelName, "Registered model name")
	flags.StringVar(&opts.configPath, "config", "", "Configuration file (.yaml or .toml)")
	flags.StringVar(&opts.trackingURI, "tracking_uri", defaultTrackingURI, "Tracking URI: directory, sqlite://, postgres:// or http(s)://")
	flags.StringVar(&opts.experiment, "experiment", defaultExperiment, "Experiment name")
	flags.StringVar(&opts.order, "order", string(stages.OrderVersion), "Selection order: version (ascending) or registry (as returned)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Report the selected version and pending description repairs without changing them")
	flags.BoolVar(&opts.history, "history", false, "Print the verified stage change history of each latest version (SQL backends)")
	flags.StringVar(&opts.logLevel, "log_level", "info", "Log level: debug, info, warn or error")
	return cmd
}

func buildConfig(cmd *cobra.Command, opts options) (config.Config, stages.Order, error) {
	cfg, err := config.Load(opts.configPath, config.Defaults(defaultTrackingURI, defaultExperiment))
	if err != nil {
		return config.Config{}, "", cli.InvalidConfig(err)
	}
	cli.Override(cmd, "tracking_uri", &cfg.Tracking.URI, opts.trackingURI)
	cli.Override(cmd, "experiment", &cfg.Tracking.ExperimentName, opts.experiment)
	cli.Override(cmd, "log_level", &cfg.Log.Level, opts.logLevel)
	if strings.TrimSpace(opts.modelName) == "" {
		return config.Config{}, "", cli.InvalidConfig(errors.New("--model_name is required"))
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", cli.InvalidConfig(err)
	}
	order, err := stages.ParseOrder(opts.order)
	if err != nil {
		return config.Config{}, "", cli.InvalidConfig(err)
	}
	return cfg, order, nil
}

func promote(ctx context.Context, cfg config.Config, order stages.Order, opts options, stdout, stderr io.Writer) error {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.New(stderr, level, "model-stage")
	ctx = requestid.WithContext(ctx, requestid.New())
	name := strings.TrimSpace(opts.modelName)

	client, err := tracking.Open(ctx, cfg, tracking.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open tracking backend %s: %w", cfg.Tracking.URI, err)
	}
	defer func() { _ = client.Close() }()

	registry := client.Registry()
	auditor, canAudit := registry.(repo.StageAuditor)
	if opts.history && !canAudit {
		return cli.InvalidConfig(fmt.Errorf("--history needs a sqlite or postgres tracking uri, got %s", cfg.Tracking.URI))
	}

	if _, err := client.SetExperiment(ctx, cfg.Tracking.ExperimentName); err != nil {
		return fmt.Errorf("set experiment %q: %w", cfg.Tracking.ExperimentName, err)
	}

	versions, err := registry.GetLatestVersions(ctx, name)
	if err != nil {
		return fmt.Errorf("get latest versions of %s: %w", name, err)
	}

	stageOpts := []stages.Option{stages.WithClock(opts.now), stages.WithLogger(logger)}
	if opts.dryRun {
		fmt.Fprintln(stdout, renderVersions(versions, opts.now()))
		for _, v := range versions {
			if stages.NeedsRepair(v) {
				fmt.Fprintf(stdout, "dry run: would repair model %s version %d description\n", name, v.Version)
			}
		}
	} else {
		repairer, err := stages.NewRepairer(registry, stageOpts...)
		if err != nil {
			return err
		}
		versions, err = repairer.Repair(ctx, versions)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, renderVersions(versions, opts.now()))
	}

	if err := transition(ctx, registry, name, order, versions, opts, stageOpts, logger, stdout); err != nil {
		return err
	}
	if opts.history {
		return printHistory(ctx, auditor, name, versions, stdout)
	}
	return nil
}

func transition(ctx context.Context, registry repo.ModelRegistry, name string, order stages.Order, versions []domain.ModelVersion, opts options, stageOpts []stages.Option, logger *slog.Logger, stdout io.Writer) error {
	version, stage, ok := stages.Select(stages.Sort(versions, order))
	if !ok {
		logger.Info("no latest version without a stage", "model", name)
		fmt.Fprintln(stdout, "no action: every latest version already has a stage")
		return nil
	}
	logger.Info("version selected", "model", name, "version", version, "stage", stage.String(), "order", string(order))
	if opts.dryRun {
		fmt.Fprintf(stdout, "dry run: would change model %s version %d to %s\n", name, version, stage)
		return nil
	}

	transitioner, err := stages.NewTransitioner(registry, stageOpts...)
	if err != nil {
		return err
	}
	mv, err := transitioner.Transition(ctx, domain.StageTransitionRequest{
		ModelName: name,
		Version:   version,
		Stage:     stage,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "changed model %s version %d to %s\n", mv.Name, mv.Version, mv.CurrentStage)
	return nil
}

func printHistory(ctx context.Context, auditor repo.StageAuditor, name string, versions []domain.ModelVersion, stdout io.Writer) error {
	for _, v := range stages.Sort(versions, stages.OrderVersion) {
		records, err := auditor.StageHistory(ctx, name, v.Version)
		if err != nil {
			return fmt.Errorf("stage history of %s version %d: %w", name, v.Version, err)
		}
		fmt.Fprintf(stdout, "history of model %s version %d\n", name, v.Version)
		fmt.Fprintln(stdout, renderHistory(records))
	}
	return nil
}
