// Package tracking records experiments, runs and model artifacts against a
// tracking backend selected by URI.
package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/animus-labs/animus-tracking/internal/domain"
	"github.com/animus-labs/animus-tracking/internal/platform/auth"
	"github.com/animus-labs/animus-tracking/internal/platform/config"
	"github.com/animus-labs/animus-tracking/internal/platform/objectstore"
	"github.com/animus-labs/animus-tracking/internal/platform/postgres"
	"github.com/animus-labs/animus-tracking/internal/platform/sqlite"
	"github.com/animus-labs/animus-tracking/internal/repo"
	"github.com/animus-labs/animus-tracking/internal/repo/mlflowrest"
	"github.com/animus-labs/animus-tracking/internal/repo/sqlstore"
)

// Client is the tracking API used by both commands.
type Client struct {
	backend        repo.Backend
	artifacts      *ArtifactStore
	// experimentRoot is passed when creating experiments; empty lets the
	// backend choose.
	experimentRoot string
	user           string
	sourceName     string
	logger         *slog.Logger
	now            func() time.Time
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func WithUser(user string) Option {
	return func(c *Client) {
		c.user = strings.TrimSpace(user)
	}
}

// WithSourceName overrides the mlflow.source.name tag set on new runs.
func WithSourceName(name string) Option {
	return func(c *Client) {
		c.sourceName = strings.TrimSpace(name)
	}
}

// WithExperimentRoot sets the artifact location given to new experiments.
func WithExperimentRoot(root string) Option {
	return func(c *Client) {
		c.experimentRoot = strings.TrimSpace(root)
	}
}

// NewClient wires an already opened backend and artifact store.
func NewClient(backend repo.Backend, artifacts *ArtifactStore, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("tracking backend is required")
	}
	c := &Client{
		backend:        backend,
		artifacts:      artifacts,
		experimentRoot: artifacts.Root(),
		sourceName:     filepath.Base(os.Args[0]),
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Open resolves cfg.Tracking.URI to a backend and an artifact store.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	target, err := ParseURI(cfg.Tracking.URI)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Tracking.RequestTimeout()
	if err != nil {
		return nil, err
	}

	localArtifacts := filepath.Join(".", "mlartifacts")
	if target.Kind == BackendSQLite {
		localArtifacts = target.ArtifactDir()
	}
	artifacts, err := openArtifacts(ctx, cfg.ObjectStore, localArtifacts)
	if err != nil {
		return nil, err
	}

	host, _ := os.Hostname()
	var backend repo.Backend
	switch target.Kind {
	case BackendREST:
		httpClient, err := auth.HTTPClient(ctx, cfg.Registry, &http.Client{})
		if err != nil {
			return nil, fmt.Errorf("registry auth: %w", err)
		}
		backend, err = mlflowrest.New(target.URL, httpClient, timeout)
		if err != nil {
			return nil, err
		}
	case BackendPostgres:
		pgCfg, err := postgres.ParseConfig(target.URL)
		if err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		backend, err = openSQLStore(ctx, db, sqlstore.DialectPostgres, cfg.Tracking.User, host)
		if err != nil {
			return nil, err
		}
	case BackendSQLite:
		db, err := sqlite.Open(ctx, target.DatabasePath())
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		backend, err = openSQLStore(ctx, db, sqlstore.DialectSQLite, cfg.Tracking.User, host)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported backend %q", target.Kind)
	}

	base := []Option{WithUser(cfg.Tracking.User)}
	if target.Kind == BackendREST && !cfg.ObjectStore.Enabled() {
		base = append(base, WithExperimentRoot(""))
	}
	return NewClient(backend, artifacts, append(base, opts...)...)
}

func openSQLStore(ctx context.Context, db *sql.DB, dialect sqlstore.Dialect, user, host string) (*sqlstore.Store, error) {
	store, err := sqlstore.New(db, dialect, sqlstore.WithAuditIdentity(user, host))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate tracking schema: %w", err)
	}
	return store, nil
}

// openArtifacts uses the configured bucket when object storage is enabled
// and a file store under localDir otherwise.
func openArtifacts(ctx context.Context, cfg objectstore.Config, localDir string) (*ArtifactStore, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "mlartifacts"
	}
	if cfg.Enabled() {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("object store config: %w", err)
		}
		store, err := objectstore.NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx, bucket); err != nil {
			return nil, err
		}
		return NewArtifactStore(store, bucket, "s3://"+bucket)
	}
	store, err := objectstore.NewFileStore(localDir)
	if err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	root := "file://" + filepath.ToSlash(filepath.Join(store.Root(), bucket))
	return NewArtifactStore(store, bucket, root)
}

func (c *Client) Backend() repo.Backend {
	return c.backend
}

func (c *Client) Registry() repo.ModelRegistry {
	return c.backend
}

func (c *Client) Artifacts() *ArtifactStore {
	return c.artifacts
}

func (c *Client) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Close()
}

// SetExperiment returns the named experiment, creating it when missing.
func (c *Client) SetExperiment(ctx context.Context, name string) (domain.Experiment, error) {
	if c == nil || c.backend == nil {
		return domain.Experiment{}, errors.New("tracking client not initialized")
	}
	exp, err := c.backend.GetExperimentByName(ctx, name)
	if err == nil {
		return exp, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Experiment{}, fmt.Errorf("get experiment %q: %w", name, err)
	}
	exp, err = c.backend.CreateExperiment(ctx, name, c.experimentRoot)
	if errors.Is(err, repo.ErrConflict) {
		exp, err = c.backend.GetExperimentByName(ctx, name)
	}
	if err != nil {
		return domain.Experiment{}, fmt.Errorf("create experiment %q: %w", name, err)
	}
	c.logger.Info("experiment created", "experiment", exp.Name, "experiment_id", exp.ID)
	return exp, nil
}
